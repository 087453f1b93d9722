// Package threads keeps a bounded message history per conversation.
package threads

import (
	"sync"

	"mentionwatch/internal/model"
)

// Store maps conversation ids to their history. Each history holds at most
// limit messages; the oldest are evicted first.
type Store struct {
	mu      sync.Mutex
	limit   int
	threads map[string][]model.Message
}

// New returns a store capped at limit messages per thread. A limit below 1 is treated as 1.
func New(limit int) *Store {
	if limit < 1 {
		limit = 1
	}
	return &Store{limit: limit, threads: make(map[string][]model.Message)}
}

// Limit returns the per-thread cap.
func (s *Store) Limit() int { return s.limit }

// GetOrCreate returns a copy of the thread, creating it empty if needed.
func (s *Store) GetOrCreate(threadID string) model.ThreadContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.threads[threadID]
	if !ok {
		h = []model.Message{}
		s.threads[threadID] = h
	}
	return model.ThreadContext{ThreadID: threadID, History: append([]model.Message(nil), h...)}
}

// Append adds msg to the thread and drops the oldest entries above the limit.
func (s *Store) Append(threadID string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.threads[threadID], msg)
	if over := len(h) - s.limit; over > 0 {
		// copy into a fresh slice so evicted messages are released
		h = append(make([]model.Message, 0, s.limit), h[over:]...)
	}
	s.threads[threadID] = h
}

// History returns a copy of the thread's messages, oldest first, or nil if unknown.
func (s *Store) History(threadID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return append([]model.Message(nil), h...)
}

// Len returns the number of known threads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

// Reset forgets every thread.
func (s *Store) Reset() {
	s.mu.Lock()
	s.threads = make(map[string][]model.Message)
	s.mu.Unlock()
}
