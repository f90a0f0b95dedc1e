package services

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tepstack/tep-sentinel/internal/config"
	"github.com/tepstack/tep-sentinel/internal/engine"
	"github.com/tepstack/tep-sentinel/internal/models"
	"github.com/tepstack/tep-sentinel/internal/utils"
)

// session owns one event detector. Its mutex serialises Feed calls so a
// single session's state is only ever mutated by one goroutine at a time;
// distinct sessions never share state.
type session struct {
	mu       sync.Mutex
	detector *engine.EventDetector
}

// SessionStore is the registry of live streaming sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionStore constructs an empty registry.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session)}
}

// Open creates a session around a fresh detector and returns its id.
func (s *SessionStore) Open(cfg config.StreamConfig) (string, error) {
	detector, err := engine.NewEventDetector(cfg)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{detector: detector}
	s.mu.Unlock()
	return id, nil
}

// Feed routes one decision into the named session under its private lock.
func (s *SessionStore) Feed(id string, step int, decision models.CascadeDecision) ([]models.Event, models.EventDetectorState, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, models.EventDetectorState{}, utils.SessionNotFoundError("services.Feed", id)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	events, err := sess.detector.Feed(step, decision)
	if err != nil {
		return nil, models.EventDetectorState{}, err
	}
	return events, sess.detector.State(), nil
}

// Close discards a session's state. Closing an unknown id is an error so
// callers can distinguish double-closes.
func (s *SessionStore) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return utils.SessionNotFoundError("services.Close", id)
	}
	delete(s.sessions, id)
	return nil
}

// Len reports the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
