package model

import "context"

// Hook observes or vetoes an entity lifecycle step. A nil hook is a no-op.
//
// Hooks run in a fixed order around every mutation:
// before<Op>, beforePersist, network write, afterPersist, after<Op>.
// A failing before-hook aborts the operation ahead of the network call.
// A failing after-hook propagates, but the store write has already
// committed; callers must treat that as "written, hook incomplete".
type Hook func(ctx context.Context, e *Entity) error

// Hooks configures the lifecycle hooks for one collection.
type Hooks struct {
	BeforePersist Hook
	AfterPersist  Hook

	BeforeCreate Hook
	AfterCreate  Hook

	BeforeUpdate Hook
	AfterUpdate  Hook

	// Delete runs only its own pair; persist hooks accompany writes that
	// produce a new document version.
	BeforeDelete Hook
	AfterDelete  Hook
}

func runHook(ctx context.Context, h Hook, e *Entity) error {
	if h == nil {
		return nil
	}
	return h(ctx, e)
}
