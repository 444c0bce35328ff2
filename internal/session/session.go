// Package session holds in-flight conversation state, keyed per user.
// One session exists per user at a time; setting a new one replaces any
// prior session. Sessions are in-memory only: losing them on restart
// abandons the dialogue, never scheduled data.
package session

import "sync"

// Store is a mutex-guarded per-user session map.
type Store[T any] struct {
	mu       sync.RWMutex
	sessions map[int64]T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{sessions: make(map[int64]T)}
}

func (s *Store[T]) Get(userID int64) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.sessions[userID]
	return v, ok
}

func (s *Store[T]) Set(userID int64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = v
}

func (s *Store[T]) Remove(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
