package events

import (
	"context"
	"sync"
)

// StubPublisher records published events for tests.
type StubPublisher struct {
	mu        sync.Mutex
	Published []PublishedEvent
}

type PublishedEvent struct {
	Topic string
	Key   string
	Event interface{}
}

func (s *StubPublisher) Publish(_ context.Context, topic, key string, event interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Published = append(s.Published, PublishedEvent{Topic: topic, Key: key, Event: event})
	return nil
}

func (s *StubPublisher) Events() []PublishedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PublishedEvent, len(s.Published))
	copy(out, s.Published)
	return out
}
