// Package notify is a tiny synchronous listener registry used for
// connectivity and session change subscriptions.
package notify

import (
	"slices"
	"sync"
)

// Set holds listeners for values of type T. The zero value is ready to use.
type Set[T any] struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]func(T)
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (s *Set[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[uint64]func(T))
	}
	id := s.next
	s.next++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Emit calls every listener with v on the caller's goroutine, in
// subscription order. Listeners may subscribe or unsubscribe while being
// called.
func (s *Set[T]) Emit(v T) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	slices.Sort(ids)

	for _, id := range ids {
		s.mu.Lock()
		fn, ok := s.listeners[id]
		s.mu.Unlock()
		if ok {
			fn(v)
		}
	}
}

// Len reports the number of registered listeners.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
