// Package events fans newly persisted checks out to live subscribers.
package events

import (
	"sync"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

type Event struct {
	Site  domain.Site  `json:"site"`
	Check domain.Check `json:"check"`
}

// Hub never blocks a publisher: a subscriber whose buffer is full misses the
// event and its Dropped counter grows.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

type Subscription struct {
	C       <-chan Event
	c       chan Event
	hub     *Hub
	once    sync.Once
	mu      sync.Mutex
	dropped int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	c := make(chan Event, buffer)
	s := &Subscription{C: c, c: c, hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.c <- ev:
		default:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.c)
	})
}

func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
