package sharedstate

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Subscriber is notified synchronously after a committed write
type Subscriber[T any] func(value T)

// Updater writes a new value to the key it is bound to
type Updater[T any] func(value T) error

// BindOption configures Bind
type BindOption[T any] func(*bindConfig[T])

type bindConfig[T any] struct {
	defaultValue T
	hasDefault   bool
}

// WithDefault supplies the value used when the key has none yet.
// The first default supplied for a key wins.
func WithDefault[T any](value T) BindOption[T] {
	return func(c *bindConfig[T]) {
		c.defaultValue = value
		c.hasDefault = true
	}
}

// Binding is one consumer's view of a key: the value read at bind time,
// an updater, and a subscription that lasts until Unsubscribe.
type Binding[T any] struct {
	store *Store
	key   Key[T]
	id    uuid.UUID

	value T
	ok    bool

	once sync.Once
}

// Bind reads key, applying any default, and subscribes onChange to future
// writes. onChange may be nil when the caller only needs the read and the
// updater.
func Bind[T any](s *Store, key Key[T], onChange Subscriber[T], opts ...BindOption[T]) (*Binding[T], error) {
	var cfg bindConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.ensureEntry(key.name, key.valueType())
	if err != nil {
		return nil, err
	}
	if cfg.hasDefault {
		s.setDefault(e, cfg.defaultValue)
	}

	b := &Binding[T]{
		store: s,
		key:   key,
		value: valueAs[T](e.value),
		ok:    e.set,
	}
	if onChange != nil {
		b.id = s.addSubscriber(e, func(v any) {
			onChange(valueAs[T](v))
		})
	}

	s.logger.Debug("key bound", "key", key.name, "subscribed", onChange != nil, "subscribers", e.subscribers.Len())
	return b, nil
}

// Value returns the value observed when the binding was created and whether
// the key had one
func (b *Binding[T]) Value() (T, bool) {
	return b.value, b.ok
}

// Current reads the key's value now
func (b *Binding[T]) Current() (T, bool) {
	v, ok, _ := Get(b.store, b.key)
	return v, ok
}

// Set writes value to the bound key
func (b *Binding[T]) Set(value T) error {
	return Write(b.store, b.key, value)
}

// SetContext writes value to the bound key with ctx
func (b *Binding[T]) SetContext(ctx context.Context, value T) error {
	return WriteContext(b.store, ctx, b.key, value)
}

// Updater returns Set as a standalone function
func (b *Binding[T]) Updater() Updater[T] {
	return b.Set
}

// Key returns the bound key
func (b *Binding[T]) Key() Key[T] {
	return b.key
}

// Unsubscribe stops notifications to the binding's subscriber.
// It is safe to call more than once.
func (b *Binding[T]) Unsubscribe() {
	if b.id == uuid.Nil {
		return
	}
	b.once.Do(func() {
		b.store.removeSubscriber(b.key.name, b.id)
	})
}
