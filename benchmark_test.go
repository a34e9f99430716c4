package sharedstate

import (
	"fmt"
	"testing"
)

// Benchmark a write with a single subscriber
func BenchmarkWrite(b *testing.B) {
	s := New()
	key := NewKey[int]("n")
	Bind(s, key, func(int) {})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Write(s, key, i)
	}
}

// Benchmark the identity short-circuit
func BenchmarkWriteUnchanged(b *testing.B) {
	s := New()
	key := NewKey[string]("s")
	Bind(s, key, func(string) {}, WithDefault("same"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Write(s, key, "same")
	}
}

// Benchmark fan-out to many subscribers
func BenchmarkFanOut(b *testing.B) {
	for _, n := range []int{1, 10, 100, 1000} {
		b.Run(fmt.Sprintf("subscribers=%d", n), func(b *testing.B) {
			s := New()
			key := NewKey[int]("n")
			for j := 0; j < n; j++ {
				Bind(s, key, func(int) {})
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				Write(s, key, i)
			}
		})
	}
}

// Benchmark middleware chains of increasing length
func BenchmarkMiddlewareChain(b *testing.B) {
	for _, n := range []int{1, 5, 20} {
		b.Run(fmt.Sprintf("middleware=%d", n), func(b *testing.B) {
			s := New()
			key := NewKey[int]("n")
			for j := 0; j < n; j++ {
				RegisterMiddleware(s, key, func(v int, next Next[int]) error {
					next(v + 1)
					return nil
				})
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				Write(s, key, i*n*2)
			}
		})
	}
}

// Benchmark subscribe/unsubscribe churn
func BenchmarkBindUnsubscribe(b *testing.B) {
	s := New()
	key := NewKey[int]("n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		binding, _ := Bind(s, key, func(int) {})
		binding.Unsubscribe()
	}
}

// Benchmark parallel writes to distinct keys
func BenchmarkParallelWrites(b *testing.B) {
	s := New()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := NewKey[int](fmt.Sprintf("k%d", i%16))
			Write(s, key, i)
			i++
		}
	})
}
