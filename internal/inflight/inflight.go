// Package inflight de-duplicates concurrent work on the same key.
package inflight

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned by a wrapped call while another call for the same key runs.
var ErrBusy = errors.New("already in flight")

// Set tracks keys with work in progress.
type Set[K comparable] struct {
	mu   sync.Mutex
	keys map[K]struct{}
}

// NewSet returns an empty set.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{keys: make(map[K]struct{})}
}

// Acquire marks key in flight. It returns false if it already was.
func (s *Set[K]) Acquire(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Release clears key.
func (s *Set[K]) Release(key K) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

// Has reports whether key is in flight.
func (s *Set[K]) Has(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of keys in flight.
func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Wrap returns fn guarded by set: a call whose key is already in flight
// returns ErrBusy without running fn. The key is released when fn returns or
// panics.
func Wrap[K comparable, A, R any](set *Set[K], key func(A) K, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		k := key(arg)
		if !set.Acquire(k) {
			var zero R
			return zero, ErrBusy
		}
		defer set.Release(k)
		return fn(ctx, arg)
	}
}
