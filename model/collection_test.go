package model_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jacentio/vellum/memstore"
	"github.com/jacentio/vellum/model"
	"github.com/jacentio/vellum/schema"
	"github.com/jacentio/vellum/store"
)

var ctx = context.Background()

func accountSchema() *schema.Schema { return accountSchemaNamed("accounts") }

func accountSchemaNamed(container string) *schema.Schema {
	return schema.New(container).
		Field(schema.Field{Name: "email", Required: true, Validation: map[string]any{"type": "string", "minLength": 3}}).
		Field(schema.Field{Name: "visits", Validation: map[string]any{"type": "integer", "minimum": 0}})
}

func newCollection(t *testing.T, opts ...model.Option) (*model.Collection, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	coll, err := model.NewCollection(accountSchema(), mem, opts...)
	if err != nil {
		t.Fatalf("bind collection: %v", err)
	}
	return coll, mem
}

// countingClient wraps a store.Client and counts operations.
type countingClient struct {
	store.Client
	reads, inserts, replaces, deletes, upserts int
}

func (c *countingClient) ReadByID(ctx context.Context, container string, pk any, id string, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	c.reads++
	return c.Client.ReadByID(ctx, container, pk, id, opts)
}

func (c *countingClient) Insert(ctx context.Context, container string, doc store.Document, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	c.inserts++
	return c.Client.Insert(ctx, container, doc, opts)
}

func (c *countingClient) ConditionalReplace(ctx context.Context, container string, pk any, id string, doc store.Document, etag string, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	c.replaces++
	return c.Client.ConditionalReplace(ctx, container, pk, id, doc, etag, opts)
}

func (c *countingClient) ConditionalDelete(ctx context.Context, container string, pk any, id string, etag string, opts store.RequestOptions) error {
	c.deletes++
	return c.Client.ConditionalDelete(ctx, container, pk, id, etag, opts)
}

func (c *countingClient) Upsert(ctx context.Context, container string, doc store.Document, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	c.upserts++
	return c.Client.Upsert(ctx, container, doc, opts)
}

// --- Binding ---

func TestNewCollection_RejectsBrokenSchema(t *testing.T) {
	broken := schema.New("accounts").PartitionKey("/missing")
	if _, err := model.NewCollection(broken, memstore.New()); err == nil {
		t.Error("expected error for schema with configuration error")
	}
}

func TestNewCollection_NoClient(t *testing.T) {
	if _, err := model.NewCollection(accountSchema(), nil); !errors.Is(err, model.ErrNoClient) {
		t.Errorf("expected ErrNoClient, got %v", err)
	}
}

// --- Validate ---

func TestValidate_ReportsAllViolations(t *testing.T) {
	coll, _ := newCollection(t)
	e := coll.NewEntity(map[string]any{"id": "a1", "visits": -2})

	err := coll.Validate(e)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Violations) < 2 {
		t.Errorf("expected missing email and negative visits reported, got %v", ve.Violations)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	coll, _ := newCollection(t)
	e := coll.NewEntity(map[string]any{"id": "a1", "visits": -2})

	first := coll.Validate(e)
	second := coll.Validate(e)
	if (first == nil) != (second == nil) {
		t.Error("expected identical validation outcomes")
	}
	if v, _ := e.Get("visits"); v != -2 {
		t.Error("validation mutated the entity")
	}
}

// --- Create ---

func TestCreate(t *testing.T) {
	coll, _ := newCollection(t)
	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})

	if e.IsPersisted() {
		t.Fatal("fresh entity should not be persisted")
	}
	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.IsPersisted() {
		t.Error("expected concurrency token after create")
	}
	if _, ok := e.LastModified(); !ok {
		t.Error("expected last-modified timestamp after create")
	}
}

func TestCreate_GeneratesID(t *testing.T) {
	coll, _ := newCollection(t)
	e := coll.NewEntity(map[string]any{"email": "a@example.com"})

	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID() == "" {
		t.Error("expected generated id")
	}
}

func TestCreate_Conflict(t *testing.T) {
	coll, _ := newCollection(t)

	first := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, first, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := coll.NewEntity(map[string]any{"id": "a1", "email": "b@example.com"})
	if err := coll.Create(ctx, second, model.SaveOptions{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Force overwrites.
	if err := coll.Create(ctx, second, model.SaveOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := coll.Read(ctx, "a1", "a1", store.RequestOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := got.Get("email"); v != "b@example.com" {
		t.Errorf("expected forced create to overwrite, got %v", v)
	}
}

func TestCreate_ValidationBlocksNetwork(t *testing.T) {
	mem := memstore.New()
	counting := &countingClient{Client: mem}
	coll, err := model.NewCollection(accountSchema(), counting)
	if err != nil {
		t.Fatalf("bind collection: %v", err)
	}

	e := coll.NewEntity(map[string]any{"id": "a1"}) // missing required email
	err = coll.Create(ctx, e, model.SaveOptions{})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if counting.inserts+counting.upserts != 0 {
		t.Error("validation failure must not reach the store")
	}
}

func TestCreate_SkipValidation(t *testing.T) {
	coll, _ := newCollection(t)
	e := coll.NewEntity(map[string]any{"id": "a1"}) // invalid, but unchecked
	if err := coll.Create(ctx, e, model.SaveOptions{SkipValidation: true}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Update ---

func TestUpdate_OptimisticConflict(t *testing.T) {
	coll, _ := newCollection(t)

	a := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, a, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second writer advances the document out-of-band.
	b, err := coll.Read(ctx, "a1", "a1", store.RequestOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.Set("email", "b@example.com")
	if err := coll.Update(ctx, b, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A's token is now stale.
	a.Set("email", "c@example.com")
	if err := coll.Update(ctx, a, model.SaveOptions{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Force succeeds unconditionally.
	if err := coll.Update(ctx, a, model.SaveOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := coll.Read(ctx, "a1", "a1", store.RequestOptions{})
	if v, _ := got.Get("email"); v != "c@example.com" {
		t.Errorf("expected forced update to win, got %v", v)
	}
}

func TestUpdate_RefreshesMetadata(t *testing.T) {
	coll, _ := newCollection(t)

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := e.ETag()

	e.Set("email", "new@example.com")
	if err := coll.Update(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ETag() == before {
		t.Error("expected etag to advance after update")
	}
}

func TestUpdate_WithoutTokenIsUnconditional(t *testing.T) {
	coll, _ := newCollection(t)

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A detached entity without a token replaces unconditionally.
	detached := coll.NewEntity(map[string]any{"id": "a1", "email": "d@example.com"})
	if err := coll.Update(ctx, detached, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	coll, _ := newCollection(t)
	e := coll.NewEntity(map[string]any{"id": "ghost", "email": "g@example.com"})
	if err := coll.Update(ctx, e, model.SaveOptions{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- Delete ---

func TestDelete_PreconditionMissing(t *testing.T) {
	coll, mem := newCollection(t)

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A freshly constructed entity holds no token.
	fresh := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Delete(ctx, fresh, model.SaveOptions{}); !errors.Is(err, model.ErrPreconditionMissing) {
		t.Fatalf("expected ErrPreconditionMissing, got %v", err)
	}
	if mem.Len("accounts") != 1 {
		t.Error("precondition failure must not delete the document")
	}

	// Force deletes without a token.
	if err := coll.Delete(ctx, fresh, model.SaveOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mem.Len("accounts") != 0 {
		t.Error("expected document deleted")
	}
}

func TestDelete_Terminal(t *testing.T) {
	coll, _ := newCollection(t)

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := coll.Delete(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.IsDeleted() {
		t.Error("expected entity marked deleted")
	}

	if err := coll.Update(ctx, e, model.SaveOptions{}); !errors.Is(err, model.ErrEntityDeleted) {
		t.Errorf("expected ErrEntityDeleted on update, got %v", err)
	}
	if err := coll.Delete(ctx, e, model.SaveOptions{}); !errors.Is(err, model.ErrEntityDeleted) {
		t.Errorf("expected ErrEntityDeleted on delete, got %v", err)
	}
	if err := coll.Save(ctx, e, model.SaveOptions{}); !errors.Is(err, model.ErrEntityDeleted) {
		t.Errorf("expected ErrEntityDeleted on save, got %v", err)
	}
}

func TestDelete_StaleToken(t *testing.T) {
	coll, _ := newCollection(t)

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other, _ := coll.Read(ctx, "a1", "a1", store.RequestOptions{})
	other.Set("email", "x@example.com")
	if err := coll.Update(ctx, other, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := coll.Delete(ctx, e, model.SaveOptions{}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict for stale delete, got %v", err)
	}
}

// --- Save dispatch ---

func TestSave_Dispatch(t *testing.T) {
	mem := memstore.New()
	counting := &countingClient{Client: mem}
	coll, err := model.NewCollection(accountSchema(), counting)
	if err != nil {
		t.Fatalf("bind collection: %v", err)
	}

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Save(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counting.inserts != 1 || counting.replaces != 0 {
		t.Errorf("expected save to create, got %d inserts / %d replaces", counting.inserts, counting.replaces)
	}

	e.Set("email", "b@example.com")
	if err := coll.Save(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counting.inserts != 1 || counting.replaces != 1 {
		t.Errorf("expected save to update, got %d inserts / %d replaces", counting.inserts, counting.replaces)
	}
}

// --- Hooks ---

func TestHookOrdering_Create(t *testing.T) {
	var order []string
	hook := func(name string) model.Hook {
		return func(ctx context.Context, e *model.Entity) error {
			order = append(order, name)
			return nil
		}
	}

	coll, _ := newCollection(t, model.WithHooks(model.Hooks{
		BeforeCreate:  hook("beforeCreate"),
		BeforePersist: hook("beforePersist"),
		AfterPersist:  hook("afterPersist"),
		AfterCreate:   hook("afterCreate"),
		BeforeUpdate:  hook("beforeUpdate"),
		AfterUpdate:   hook("afterUpdate"),
	}))

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"beforeCreate", "beforePersist", "afterPersist", "afterCreate"}
	if fmt.Sprint(order) != fmt.Sprint(expected) {
		t.Errorf("expected hook order %v, got %v", expected, order)
	}
}

func TestHookOrdering_Update(t *testing.T) {
	var order []string
	hook := func(name string) model.Hook {
		return func(ctx context.Context, e *model.Entity) error {
			order = append(order, name)
			return nil
		}
	}

	coll, _ := newCollection(t, model.WithHooks(model.Hooks{
		BeforeUpdate:  hook("beforeUpdate"),
		BeforePersist: hook("beforePersist"),
		AfterPersist:  hook("afterPersist"),
		AfterUpdate:   hook("afterUpdate"),
	}))

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order = nil

	e.Set("email", "b@example.com")
	if err := coll.Update(ctx, e, model.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"beforeUpdate", "beforePersist", "afterPersist", "afterUpdate"}
	if fmt.Sprint(order) != fmt.Sprint(expected) {
		t.Errorf("expected hook order %v, got %v", expected, order)
	}
}

func TestBeforeHookFailureAbortsBeforeNetwork(t *testing.T) {
	mem := memstore.New()
	counting := &countingClient{Client: mem}
	boom := errors.New("vetoed")
	coll, err := model.NewCollection(accountSchema(), counting, model.WithHooks(model.Hooks{
		BeforePersist: func(ctx context.Context, e *model.Entity) error { return boom },
	}))
	if err != nil {
		t.Fatalf("bind collection: %v", err)
	}

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if counting.inserts != 0 {
		t.Error("before-hook failure must abort ahead of the network call")
	}
	if e.IsPersisted() {
		t.Error("entity must stay unpersisted")
	}
}

func TestAfterHookFailureLeavesWriteCommitted(t *testing.T) {
	boom := errors.New("post-commit hook failed")
	mem := memstore.New()
	coll, err := model.NewCollection(accountSchema(), mem, model.WithHooks(model.Hooks{
		AfterPersist: func(ctx context.Context, e *model.Entity) error { return boom },
	}))
	if err != nil {
		t.Fatalf("bind collection: %v", err)
	}

	e := coll.NewEntity(map[string]any{"id": "a1", "email": "a@example.com"})
	if err := coll.Create(ctx, e, model.SaveOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}

	// Written but hook incomplete: the document exists and the entity
	// carries fresh metadata.
	if mem.Len("accounts") != 1 {
		t.Error("expected document committed despite after-hook failure")
	}
	if !e.IsPersisted() {
		t.Error("expected entity metadata updated despite after-hook failure")
	}
}

// --- Query boundary ---

func TestQuery_Unsupported(t *testing.T) {
	coll, _ := newCollection(t)
	if _, err := coll.Query(ctx, store.Query{Statement: "SELECT *"}, store.RequestOptions{}); !errors.Is(err, store.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
