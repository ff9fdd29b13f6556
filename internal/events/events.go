// Package events delivers in-process change notifications. Subscribers are
// invoked synchronously in registration order so callers observe a consistent
// ordering of updates.
package events

import (
	"sync"

	"github.com/apex-authority/backoffice/internal/domain/application"
	"github.com/apex-authority/backoffice/internal/domain/contact"
	"github.com/apex-authority/backoffice/internal/domain/content"
	"github.com/apex-authority/backoffice/internal/domain/settings"
)

// Stream fans one value type out to its subscribers.
type Stream[T any] struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(T)
	order    []int
}

// NewStream creates an empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{handlers: make(map[int]func(T))}
}

// Subscribe registers a handler and returns its cancel function. Cancel is
// idempotent.
func (s *Stream[T]) Subscribe(h func(T)) func() {
	if h == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers, id)
			for i, existing := range s.order {
				if existing == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish invokes every subscriber with v. A panicking handler does not stop
// delivery to the rest.
func (s *Stream[T]) Publish(v T) {
	s.mu.RLock()
	handlers := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		if h, ok := s.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		invoke(h, v)
	}
}

func invoke[T any](h func(T), v T) {
	defer func() {
		_ = recover()
	}()
	h(v)
}

// Len reports the current subscriber count.
func (s *Stream[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Notifier bundles the streams the back office publishes on.
type Notifier struct {
	Settings     *Stream[settings.Site]
	Applications *Stream[application.Application]
	Contacts     *Stream[contact.Contact]
	Content      *Stream[content.Block]
}

// NewNotifier creates a notifier with all streams initialised.
func NewNotifier() *Notifier {
	return &Notifier{
		Settings:     NewStream[settings.Site](),
		Applications: NewStream[application.Application](),
		Contacts:     NewStream[contact.Contact](),
		Content:      NewStream[content.Block](),
	}
}
