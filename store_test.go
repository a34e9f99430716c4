package sharedstate

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Todo struct {
	Title string
	Done  bool
}

func TestNewStore(t *testing.T) {
	s := New()
	require.NotNil(t, s)
	assert.Empty(t, s.Keys())
	assert.Empty(t, s.Snapshot())
}

func TestGetUnknownKeyCreatesUnsetEntry(t *testing.T) {
	s := New()
	key := NewKey[string]("greeting")

	v, ok, err := Get(s, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "", v)
	assert.Equal(t, []string{"greeting"}, s.Keys())
}

func TestEmptyKey(t *testing.T) {
	s := New()
	key := NewKey[int]("")

	_, _, err := Get(s, key)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = Bind(s, key, nil)
	assert.ErrorIs(t, err, ErrEmptyKey)

	assert.ErrorIs(t, Write(s, key, 1), ErrEmptyKey)
}

func TestSetDefaultFirstWins(t *testing.T) {
	s := New()
	key := NewKey[string]("x")

	applied, err := SetDefault(s, key, "hello")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = SetDefault(s, key, "ignored")
	require.NoError(t, err)
	assert.False(t, applied)

	v, ok, err := Get(s, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestSetDefaultDoesNotNotify(t *testing.T) {
	s := New()
	key := NewKey[int]("counter")

	calls := 0
	_, err := Bind(s, key, func(int) { calls++ })
	require.NoError(t, err)

	_, err = SetDefault(s, key, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestSetDefaultSkipsMiddleware(t *testing.T) {
	s := New()
	key := NewKey[string]("m")

	_, err := RegisterMiddleware(s, key, func(v string, next Next[string]) error {
		next(v + "x")
		return nil
	})
	require.NoError(t, err)

	_, err = SetDefault(s, key, "a")
	require.NoError(t, err)

	v, _, err := Get(s, key)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestTypeMismatch(t *testing.T) {
	s := New()
	asString := NewKey[string]("shared")
	asInt := NewKey[int]("shared")

	_, err := SetDefault(s, asString, "v")
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"get", func() error { _, _, err := Get(s, asInt); return err }},
		{"set default", func() error { _, err := SetDefault(s, asInt, 1); return err }},
		{"bind", func() error { _, err := Bind(s, asInt, nil); return err }},
		{"write", func() error { return Write(s, asInt, 2) }},
		{"middleware", func() error {
			_, err := RegisterMiddleware(s, asInt, func(v int, next Next[int]) error { return nil })
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTypeMismatch))
			assert.Contains(t, err.Error(), `"shared"`)
		})
	}

	v, _, err := Get(s, asString)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestTypeMismatchAgainstMiddlewareChain(t *testing.T) {
	s := New()

	_, err := RegisterMiddleware(s, NewKey[float64]("price"), func(v float64, next Next[float64]) error { return nil })
	require.NoError(t, err)

	_, _, err = Get(s, NewKey[string]("price"))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestInterfaceTypedKey(t *testing.T) {
	s := New()
	key := NewKey[any]("anything")

	require.NoError(t, Write[any](s, key, nil))
	v, ok, err := Get(s, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, v)

	require.NoError(t, Write[any](s, key, 42))
	v, _, err = Get(s, key)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestKeysAndSnapshot(t *testing.T) {
	s := New()

	_, err := SetDefault(s, NewKey[string]("b"), "two")
	require.NoError(t, err)
	_, err = SetDefault(s, NewKey[int]("a"), 1)
	require.NoError(t, err)
	_, _, err = Get(s, NewKey[bool]("c"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
	assert.Equal(t, map[string]any{"a": 1, "b": "two"}, s.Snapshot())
}

func TestReset(t *testing.T) {
	s := New()
	key := NewKey[string]("x")

	calls := 0
	_, err := Bind(s, key, func(string) { calls++ }, WithDefault("hello"))
	require.NoError(t, err)
	_, err = RegisterMiddleware(s, key, func(v string, next Next[string]) error {
		next(strings.ToUpper(v))
		return nil
	})
	require.NoError(t, err)

	s.Reset(key.Name())

	assert.Equal(t, 0, s.SubscriberCount(key.Name()))
	assert.Equal(t, 0, s.MiddlewareCount(key.Name()))

	_, ok, err := Get(s, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Write(s, key, "world"))
	v, _, _ := Get(s, key)
	assert.Equal(t, "world", v)
	assert.Equal(t, 0, calls)

	// the key may be rebound to another type after a reset
	s.Reset(key.Name())
	_, err = SetDefault(s, NewKey[int]("x"), 3)
	assert.NoError(t, err)
}

func TestResetAll(t *testing.T) {
	s := New()

	_, err := SetDefault(s, NewKey[string]("a"), "1")
	require.NoError(t, err)
	_, err = SetDefault(s, NewKey[string]("b"), "2")
	require.NoError(t, err)

	s.ResetAll()

	assert.Empty(t, s.Keys())
	assert.Empty(t, s.Snapshot())
}

func TestStoresAreIsolated(t *testing.T) {
	a, b := New(), New()
	key := NewKey[string]("x")

	require.NoError(t, Write(a, key, "from a"))

	_, ok, err := Get(b, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := New(WithLogger(logger))
	require.NoError(t, Write(s, NewKey[int]("n"), 1))

	out := buf.String()
	assert.Contains(t, out, "state entry created")
	assert.Contains(t, out, "value committed")
	assert.Contains(t, out, "key=n")
}

func TestWithNilOptionsKeepDefaults(t *testing.T) {
	s := New(WithLogger(nil), WithObservability(nil))
	require.NotNil(t, s.logger)
	require.NotNil(t, s.observability)
	assert.NoError(t, Write(s, NewKey[int]("n"), 1))
}
