package sharedstate

import (
	"context"
	"time"
)

// Observability receives hooks around writes and fan-out.
// Implementations must not call back into the store.
type Observability interface {
	// OnWriteStart is called before a write touches the entry
	OnWriteStart(ctx context.Context, key string) context.Context

	// OnWriteComplete is called once per write. changed is false for skipped
	// and failed writes.
	OnWriteComplete(ctx context.Context, key string, changed bool, duration time.Duration, err error)

	// OnNotify is called after a commit, before OnWriteComplete and before
	// any subscriber runs
	OnNotify(ctx context.Context, key string, subscribers int)
}

type noopObservability struct{}

func (noopObservability) OnWriteStart(ctx context.Context, _ string) context.Context { return ctx }

func (noopObservability) OnWriteComplete(context.Context, string, bool, time.Duration, error) {}

func (noopObservability) OnNotify(context.Context, string, int) {}

// MultiObservability forwards hooks to several Observability implementations
type MultiObservability struct {
	hooks []Observability
}

// NewMultiObservability creates a MultiObservability from the non-nil hooks.
// OnWriteStart contexts are threaded through the hooks in order.
func NewMultiObservability(hooks ...Observability) *MultiObservability {
	filtered := make([]Observability, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &MultiObservability{hooks: filtered}
}

func (m *MultiObservability) OnWriteStart(ctx context.Context, key string) context.Context {
	for _, h := range m.hooks {
		ctx = h.OnWriteStart(ctx, key)
	}
	return ctx
}

func (m *MultiObservability) OnWriteComplete(ctx context.Context, key string, changed bool, duration time.Duration, err error) {
	for _, h := range m.hooks {
		h.OnWriteComplete(ctx, key, changed, duration, err)
	}
}

func (m *MultiObservability) OnNotify(ctx context.Context, key string, subscribers int) {
	for _, h := range m.hooks {
		h.OnNotify(ctx, key, subscribers)
	}
}
