package sharedstate

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Write commits value to key and notifies the key's subscribers.
//
// A value identical to the current one is ignored: no middleware runs and no
// subscriber is called. Identity is == for comparable values and pointer
// identity for slices, maps and channels, so mutating a value in place
// and writing it back does not count as a change.
func Write[T any](s *Store, key Key[T], value T) error {
	return WriteContext(s, context.Background(), key, value)
}

// WriteContext is Write with a context passed to the observability hooks
func WriteContext[T any](s *Store, ctx context.Context, key Key[T], value T) error {
	return s.write(ctx, key.name, key.valueType(), value)
}

func (s *Store) write(ctx context.Context, key string, valueType reflect.Type, value any) error {
	start := time.Now()
	ctx = s.observability.OnWriteStart(ctx, key)

	s.mu.Lock()
	e, err := s.ensureEntry(key, valueType)
	if err != nil {
		s.mu.Unlock()
		s.observability.OnWriteComplete(ctx, key, false, time.Since(start), err)
		return err
	}
	if e.set && identical(e.value, value) {
		s.mu.Unlock()
		s.logger.Debug("write skipped, value unchanged", "key", key)
		s.observability.OnWriteComplete(ctx, key, false, time.Since(start), nil)
		return nil
	}
	steps := s.chainFor(key)
	s.mu.Unlock()

	resolved, err := s.resolveObserved(ctx, key, steps, value, start)
	if err != nil {
		s.logger.Error("middleware failed, write aborted", "key", key, "error", err)
		s.observability.OnWriteComplete(ctx, key, false, time.Since(start), err)
		return err
	}

	s.mu.Lock()
	if cur, ok := s.entries[key]; !ok || cur != e {
		// the key was reset while middleware ran; commit into the live entry
		e, err = s.ensureEntry(key, valueType)
		if err != nil {
			s.mu.Unlock()
			s.observability.OnWriteComplete(ctx, key, false, time.Since(start), err)
			return err
		}
	}
	e.value = resolved
	e.set = true
	subs := e.subscribersSnapshot()
	s.mu.Unlock()

	s.logger.Debug("value committed", "key", key, "subscribers", len(subs))
	s.observability.OnNotify(ctx, key, len(subs))
	s.observability.OnWriteComplete(ctx, key, true, time.Since(start), nil)

	s.notify(key, resolved, subs)
	return nil
}

// resolveObserved runs resolve and reports a middleware panic to the
// observability hooks before re-raising it
func (s *Store) resolveObserved(ctx context.Context, key string, steps []step, value any, start time.Time) (any, error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("middleware panicked, write aborted", "key", key, "panic", r)
			s.observability.OnWriteComplete(ctx, key, false, time.Since(start), fmt.Errorf("%w: key %q: %v", ErrMiddlewarePanic, key, r))
			panic(r)
		}
	}()
	return resolve(key, steps, value)
}

// notify calls every subscriber synchronously in subscription order
func (s *Store) notify(key string, value any, subs []*subscriber) {
	for _, sub := range subs {
		s.callSubscriber(key, value, sub)
	}
}

func (s *Store) callSubscriber(key string, value any, sub *subscriber) {
	if s.panicHandler != nil {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("subscriber panicked", "key", key, "subscription", sub.id.String(), "panic", r)
				s.panicHandler(key, value, r)
			}
		}()
	}
	sub.notify(value)
}

// identical reports whether a and b are the same value without looking
// through references
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Slice:
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	case reflect.Map, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Func:
		// closures from one literal share a code pointer
		return false
	}

	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}
