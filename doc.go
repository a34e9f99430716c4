// Package sharedstate is a keyed shared-state store. Independent components
// read and write the same named slot without passing values between them,
// and are notified when another component commits a new value.
//
// # Keys and bindings
//
// A Key fixes both the slot name and its Go type:
//
//	var todos = sharedstate.NewKey[[]Todo]("todos")
//
//	store := sharedstate.New(sharedstate.WithLogger(slog.Default()))
//
//	b, err := sharedstate.Bind(store, todos, func(v []Todo) {
//	    render(v)
//	}, sharedstate.WithDefault([]Todo{}))
//	defer b.Unsubscribe()
//
//	current, _ := b.Value()
//	b.Set(append(current, Todo{Title: "milk"}))
//
// The first default supplied for a key wins; later defaults are ignored.
// Accessing a key through a Key of a different type returns ErrTypeMismatch.
//
// # Writes
//
// Write runs the key's middleware chain, commits the result and then calls
// every subscriber synchronously in subscription order. A write of a value
// identical to the current one does nothing. Subscribers may write to the
// store while being notified; cycles between subscribers are not detected.
//
// # Middleware
//
// Middleware runs in registration order, each one seeing the output of the
// previous one:
//
//	id, _ := sharedstate.RegisterMiddleware(store, name, func(v string, next sharedstate.Next[string]) error {
//	    next(strings.TrimSpace(v))
//	    return nil
//	})
//	store.RemoveMiddleware(name.Name(), id)
//
// An error from middleware aborts the write and leaves the value unchanged.
//
// # Isolation
//
// Stores are explicit values. Tests can use a fresh store per test or call
// Reset and ResetAll.
package sharedstate
