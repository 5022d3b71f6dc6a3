// Package session holds the indexed document of each caller session.
package session

import (
	"sort"
	"sync"
	"time"

	"pdfchat/internal/vectorstore"
)

// DocumentInfo describes the document a session's index was built from.
type DocumentInfo struct {
	ID             string
	Filename       string
	Pages          int
	ChunkCount     int
	EmbeddingModel string
	Dimension      int
}

// State is one session's indexed document. A State is never mutated after it
// has been handed to Store.Replace.
type State struct {
	Document DocumentInfo
	Index    vectorstore.Index
	LoadedAt time.Time
}

// Store maps session IDs to their current State.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*State)}
}

// Get returns the session's current state.
func (s *Store) Get(id string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	return st, ok
}

// Replace installs state for the session and returns the state it replaced, if any.
// The caller owns the returned state and should close its index.
func (s *Store) Replace(id string, state *State) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[id]
	s.sessions[id] = state
	return prev
}

// Reset removes the session and returns the removed state.
func (s *Store) Reset(id string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return st, ok
}

// Len returns the number of sessions holding a document.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the session IDs in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
