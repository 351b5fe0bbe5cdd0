package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jacentio/vellum/store"
)

// DefaultRetries is the conflict retry budget when AtomicOptions.Retries
// is zero.
const DefaultRetries = 3

// Transition is the outcome of a transition function: either a new
// desired entity state, or an explicit abort.
type Transition struct {
	entity *Entity
	abort  bool
}

// Continue produces the next desired state.
func Continue(e *Entity) Transition { return Transition{entity: e} }

// Abort cancels the retry cycle without error; the coordinator returns no
// entity and no error.
func Abort() Transition { return Transition{abort: true} }

// TransitionFunc computes the next state from the current one. prior is
// nil when no document exists yet. It may be invoked more than once per
// logical call, each time with freshly read state, so it must be safe to
// re-run; derive the result from prior rather than from captured state.
type TransitionFunc func(prior *Entity) (Transition, error)

// AtomicOptions configures an atomic read-transform-write cycle.
type AtomicOptions struct {
	// Retries is the conflict retry budget. Zero means DefaultRetries;
	// negative disables retries.
	Retries int

	// InitialValue, when set, is used as the candidate prior state for the
	// first attempt instead of reading the document.
	InitialValue *Entity

	// MustFind makes a missing document a hard failure instead of an
	// absent prior state.
	MustFind bool

	// SkipValidation bypasses whole-object validation on the write.
	SkipValidation bool

	// Request is forwarded verbatim to every store-level request.
	Request store.RequestOptions

	// rebind, when set, receives each freshly read state so callers
	// holding that entity observe consistent retries.
	rebind *Entity
}

func (o AtomicOptions) budget() uint64 {
	switch {
	case o.Retries == 0:
		return DefaultRetries
	case o.Retries < 0:
		return 0
	default:
		return uint64(o.Retries)
	}
}

// CreateOrUpdate performs a read-transform-write cycle against a single
// document, retrying on optimistic-concurrency conflict up to the budget.
// Conflicts are expected under contention on a single partition key;
// retries keep them invisible to most callers while the cap bounds
// worst-case latency. On abort it returns (nil, nil). An exhausted budget
// returns a RetriesExhaustedError wrapping the last conflict.
func (c *Collection) CreateOrUpdate(ctx context.Context, partitionKey any, id string, fn TransitionFunc, opts AtomicOptions) (*Entity, error) {
	var (
		prior     = opts.InitialValue
		havePrior = opts.InitialValue != nil
		result    *Entity
		aborted   bool
		attempts  int
	)

	op := func() error {
		attempts++
		if !havePrior {
			e, err := c.Read(ctx, partitionKey, id, opts.Request)
			switch {
			case errors.Is(err, store.ErrNotFound):
				if opts.MustFind {
					return backoff.Permanent(err)
				}
				e = nil
			case err != nil:
				return backoff.Permanent(err)
			}
			if e != nil && opts.rebind != nil {
				opts.rebind.adopt(e)
				e = opts.rebind
			}
			prior = e
			havePrior = true
		}

		next, err := fn(prior)
		if err != nil {
			return backoff.Permanent(err)
		}
		if next.abort {
			aborted = true
			return nil
		}
		if next.entity == nil {
			return backoff.Permanent(fmt.Errorf("vellum: transition returned neither entity nor abort"))
		}

		err = c.Save(ctx, next.entity, SaveOptions{SkipValidation: opts.SkipValidation, Request: opts.Request})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				// Drop the cached prior state so the next attempt re-reads.
				prior, havePrior = nil, false
				c.logger.Debug("conflicting write, retrying",
					"container", c.schema.ContainerID(),
					"id", id,
					"attempt", attempts,
				)
				return err
			}
			return backoff.Permanent(err)
		}
		result = next.entity
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newConflictBackoff(), opts.budget()), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, &RetriesExhaustedError{Attempts: attempts, Err: err}
		}
		return nil, err
	}
	if aborted {
		return nil, nil
	}
	return result, nil
}

// UpdateWith is CreateOrUpdate for an entity the caller already holds: the
// entity is the first attempt's prior state, the document must exist, and
// on every retry the entity's properties are re-bound to the freshly read
// state before the transition re-runs.
func (c *Collection) UpdateWith(ctx context.Context, e *Entity, fn TransitionFunc, opts AtomicOptions) (*Entity, error) {
	if err := c.usable(e); err != nil {
		return nil, err
	}
	pk, err := c.partitionKeyOf(c.schema.Serialize(e.props))
	if err != nil {
		return nil, err
	}
	opts.InitialValue = e
	opts.MustFind = true
	opts.rebind = e
	return c.CreateOrUpdate(ctx, pk, e.ID(), fn, opts)
}

// newConflictBackoff paces conflict retries. The contract is simply
// read-again-and-retry; the jitter avoids synchronized herds.
func newConflictBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.RandomizationFactor = 0.5
	return b
}
