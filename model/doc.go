// Package model maps schema-typed entities onto a partitioned document
// store with optimistic concurrency control.
//
// Vellum gives each logical collection a typed schema, converts between
// wire documents and application objects through per-field codecs, and
// makes concurrent mutation of individual documents safe via the store's
// conditional-write primitive.
//
// # Entities
//
// An [Entity] is a property bag bound to a [github.com/jacentio/vellum/schema.Schema],
// moving through three states: never persisted (no concurrency token),
// persisted (token held), and deleted (terminal).
//
//	users := schema.New("users").
//		Field(schema.Field{Name: "email", Required: true,
//			Validation: map[string]any{"type": "string"}})
//
//	coll, err := model.NewCollection(users, client)
//	u := coll.NewEntity(map[string]any{"id": "u1", "email": "a@example.com"})
//	err = coll.Save(ctx, u, model.SaveOptions{})
//
// # Optimistic concurrency
//
// Update and Delete send the held token as an If-Match precondition; a
// stale token fails with [github.com/jacentio/vellum/store.ErrConflict].
// [Collection.CreateOrUpdate] and [Collection.UpdateWith] wrap the write
// in a read-transform-write retry loop for callers that can express the
// change as a [TransitionFunc]:
//
//	e, err := coll.CreateOrUpdate(ctx, "u1", "u1", func(prior *model.Entity) (model.Transition, error) {
//		if prior == nil {
//			prior = coll.NewEntity(map[string]any{"id": "u1", "visits": 1})
//			return model.Continue(prior), nil
//		}
//		n, _ := prior.Get("visits")
//		prior.Set("visits", n.(float64)+1)
//		return model.Continue(prior), nil
//	}, model.AtomicOptions{})
//
// # Errors
//
//   - [ValidationError] - whole-object validation failed; never sent to the store
//   - [ErrPreconditionMissing] - guarded operation without a held token
//   - [ErrEntityDeleted] - operation on a deleted entity
//   - [RetriesExhaustedError] - conflict retry budget consumed
//   - store.ErrNotFound / store.ErrConflict propagate from the driver
package model
