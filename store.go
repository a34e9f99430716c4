package sharedstate

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrEmptyKey is returned when a key has an empty name
	ErrEmptyKey = errors.New("sharedstate: key name is empty")

	// ErrTypeMismatch is returned when a key is accessed with a value type
	// other than the one it was first bound to
	ErrTypeMismatch = errors.New("sharedstate: value type mismatch")

	// ErrMiddlewarePanic is reported to OnWriteComplete when a middleware
	// panics. The panic itself still propagates to the writer.
	ErrMiddlewarePanic = errors.New("sharedstate: middleware panicked")
)

// Key names one shared state slot and fixes its value type
type Key[T any] struct {
	name string
}

// NewKey creates a typed key
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's string identifier
func (k Key[T]) Name() string {
	return k.name
}

func (k Key[T]) valueType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// String implements fmt.Stringer
func (k Key[T]) String() string {
	return k.name
}

// PanicHandler is called when a subscriber panics during fan-out
type PanicHandler func(key string, value any, panicValue any)

// Option configures a Store
type Option func(*Store)

// WithLogger sets the structured logger used by the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPanicHandler recovers subscriber panics and reports them to handler.
// Without a panic handler a panicking subscriber aborts the write's fan-out.
func WithPanicHandler(handler PanicHandler) Option {
	return func(s *Store) {
		s.panicHandler = handler
	}
}

// WithObservability attaches write and notification hooks
func WithObservability(obs Observability) Option {
	return func(s *Store) {
		if obs != nil {
			s.observability = obs
		}
	}
}

// subscriber is one registered callback. notify receives the committed value.
type subscriber struct {
	id     uuid.UUID
	notify func(any)
}

// entry is the state slot for one key
type entry struct {
	key       string
	valueType reflect.Type
	value     any
	set       bool

	subscribers *list.List
	index       map[uuid.UUID]*list.Element
}

// Store is a keyed shared-state store. Entries and middleware chains are
// created on first reference and live until Reset or ResetAll.
//
// All operations run synchronously. The store is safe for concurrent use but
// no lock is held while middleware or subscribers run, so callbacks may
// re-enter the store.
type Store struct {
	entries     map[string]*entry
	middlewares map[string]*chain

	logger        *slog.Logger
	panicHandler  PanicHandler
	observability Observability

	mu sync.RWMutex
}

// New creates an empty Store
func New(opts ...Option) *Store {
	s := &Store{
		entries:       make(map[string]*entry),
		middlewares:   make(map[string]*chain),
		logger:        slog.New(slog.DiscardHandler),
		observability: noopObservability{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ensureEntry returns the entry for key, creating an unset one if absent.
// Callers must hold s.mu for writing.
func (s *Store) ensureEntry(key string, valueType reflect.Type) (*entry, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	if e, ok := s.entries[key]; ok {
		if e.valueType != valueType {
			return nil, mismatch(key, e.valueType, valueType)
		}
		return e, nil
	}
	if c, ok := s.middlewares[key]; ok && c.valueType != valueType {
		return nil, mismatch(key, c.valueType, valueType)
	}

	e := &entry{
		key:         key,
		valueType:   valueType,
		subscribers: list.New(),
		index:       make(map[uuid.UUID]*list.Element),
	}
	s.entries[key] = e
	s.logger.Debug("state entry created", "key", key, "type", valueType.String())
	return e, nil
}

func mismatch(key string, bound, got reflect.Type) error {
	return fmt.Errorf("%w: key %q holds %v, accessed as %v", ErrTypeMismatch, key, bound, got)
}

// setDefault assigns value when the entry has never been set.
// No middleware runs and no subscriber is notified.
func (s *Store) setDefault(e *entry, value any) bool {
	if e.set {
		return false
	}
	e.value = value
	e.set = true
	s.logger.Debug("default applied", "key", e.key)
	return true
}

// addSubscriber appends notify to the entry's subscriber list
func (s *Store) addSubscriber(e *entry, notify func(any)) uuid.UUID {
	sub := &subscriber{id: uuid.New(), notify: notify}
	e.index[sub.id] = e.subscribers.PushBack(sub)
	return sub.id
}

// removeSubscriber unlinks a subscription. Unknown ids are ignored.
func (s *Store) removeSubscriber(key string, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	if el, ok := e.index[id]; ok {
		e.subscribers.Remove(el)
		delete(e.index, id)
	}
}

// subscribersSnapshot copies the subscriber list so fan-out runs without the lock.
// Callers must hold s.mu.
func (e *entry) subscribersSnapshot() []*subscriber {
	subs := make([]*subscriber, 0, e.subscribers.Len())
	for el := e.subscribers.Front(); el != nil; el = el.Next() {
		subs = append(subs, el.Value.(*subscriber))
	}
	return subs
}

// Get returns the current value for key and whether one has been set
func Get[T any](s *Store, key Key[T]) (T, bool, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.ensureEntry(key.name, key.valueType())
	if err != nil {
		return zero, false, err
	}
	if !e.set {
		return zero, false, nil
	}
	return valueAs[T](e.value), true, nil
}

// valueAs converts a stored value back to T. A nil interface yields T's zero value.
func valueAs[T any](v any) T {
	t, _ := v.(T)
	return t
}

// SetDefault applies value to key only if the key has no value yet.
// It reports whether the default was applied.
func SetDefault[T any](s *Store, key Key[T], value T) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.ensureEntry(key.name, key.valueType())
	if err != nil {
		return false, err
	}
	return s.setDefault(e, value), nil
}

// SubscriberCount returns the number of live subscriptions for key
func (s *Store) SubscriberCount(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return 0
	}
	return e.subscribers.Len()
}

// Keys returns the names of all keys that have an entry, sorted
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of every committed value keyed by name.
// Unset entries are omitted.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.entries))
	for k, e := range s.entries {
		if e.set {
			out[k] = e.value
		}
	}
	return out
}

// Reset drops the entry and middleware chain for key.
// Existing bindings for key stop receiving notifications.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	delete(s.middlewares, key)
	s.logger.Debug("key reset", "key", key)
}

// ResetAll drops every entry and middleware chain
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.middlewares = make(map[string]*chain)
	s.logger.Debug("store reset")
}
