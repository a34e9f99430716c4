package sharedstate

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Next sets the value that later middleware in the chain observes
type Next[T any] func(value T)

// Middleware transforms a value before it is committed to a key.
// Calling next replaces the value seen by the rest of the chain; a middleware
// that never calls next leaves it unchanged. A non-nil error aborts the write.
type Middleware[T any] func(value T, next Next[T]) error

// MiddlewareID identifies one middleware registration
type MiddlewareID uuid.UUID

// String implements fmt.Stringer
func (id MiddlewareID) String() string {
	return uuid.UUID(id).String()
}

// MiddlewareError wraps an error returned by a middleware
type MiddlewareError struct {
	Key   string
	Index int
	Err   error
}

func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("sharedstate: middleware %d for key %q: %v", e.Index, e.Key, e.Err)
}

func (e *MiddlewareError) Unwrap() error {
	return e.Err
}

// step is one type-erased middleware in a chain
type step struct {
	id    MiddlewareID
	apply func(acc any) (any, error)
}

// chain is the ordered middleware list for one key
type chain struct {
	valueType reflect.Type
	steps     []step
}

// RegisterMiddleware appends mw to the chain for key. The chain may be
// registered before the key has any state. Every registration runs on each
// write, in registration order.
func RegisterMiddleware[T any](s *Store, key Key[T], mw Middleware[T]) (MiddlewareID, error) {
	if key.name == "" {
		return MiddlewareID{}, ErrEmptyKey
	}
	if mw == nil {
		return MiddlewareID{}, fmt.Errorf("sharedstate: nil middleware for key %q", key.name)
	}

	valueType := key.valueType()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key.name]; ok && e.valueType != valueType {
		return MiddlewareID{}, mismatch(key.name, e.valueType, valueType)
	}

	c, ok := s.middlewares[key.name]
	if !ok {
		c = &chain{valueType: valueType}
		s.middlewares[key.name] = c
	} else if c.valueType != valueType {
		return MiddlewareID{}, mismatch(key.name, c.valueType, valueType)
	}

	id := MiddlewareID(uuid.New())
	c.steps = append(c.steps, step{
		id: id,
		apply: func(acc any) (any, error) {
			out := valueAs[T](acc)
			if err := mw(out, func(v T) { out = v }); err != nil {
				return nil, err
			}
			return out, nil
		},
	})

	s.logger.Debug("middleware registered", "key", key.name, "id", id.String(), "chain", len(c.steps))
	return id, nil
}

// RemoveMiddleware removes a registration from key's chain.
// Removing an unknown id is a no-op.
func (s *Store) RemoveMiddleware(key string, id MiddlewareID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.middlewares[key]
	if !ok {
		return
	}

	for i, st := range c.steps {
		if st.id == id {
			// Copy so a resolve already holding the old slice is unaffected
			steps := make([]step, 0, len(c.steps)-1)
			steps = append(steps, c.steps[:i]...)
			c.steps = append(steps, c.steps[i+1:]...)
			s.logger.Debug("middleware removed", "key", key, "id", id.String())
			return
		}
	}
}

// MiddlewareCount returns the length of key's chain
func (s *Store) MiddlewareCount(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.middlewares[key]; ok {
		return len(c.steps)
	}
	return 0
}

// chainFor returns the current steps for key. Callers must hold s.mu.
func (s *Store) chainFor(key string) []step {
	if c, ok := s.middlewares[key]; ok {
		return c.steps
	}
	return nil
}

// resolve folds value through steps in order. Each step starts from the
// previous step's output.
func resolve(key string, steps []step, value any) (any, error) {
	acc := value
	for i, st := range steps {
		next, err := st.apply(acc)
		if err != nil {
			return nil, &MiddlewareError{Key: key, Index: i, Err: err}
		}
		acc = next
	}
	return acc, nil
}
