package session

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrDuplicateSession = errors.New("session id already exists")
	ErrSessionNotFound  = errors.New("session not found")
	ErrEmptySessionID   = errors.New("session id is empty")
)

// Init carries the creation-time fields issued by the avatar service.
type Init struct {
	ID          string
	AccessToken string
	StreamURL   string
	Language    Language
}

// Registry is the single source of truth for active sessions. All state is
// in-memory and lost on restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry bootstraps an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create inserts a new active session. Ids originate from the avatar
// service and are assumed unique; a duplicate is rejected defensively.
func (r *Registry) Create(init Init) (*Session, error) {
	if init.ID == "" {
		return nil, ErrEmptySessionID
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:              init.ID,
		AccessToken:     init.AccessToken,
		StreamURL:       init.StreamURL,
		Language:        init.Language,
		CreatedAt:       now,
		lastInteraction: now,
		active:          true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[init.ID]; ok {
		return nil, ErrDuplicateSession
	}
	r.sessions[init.ID] = sess
	return sess, nil
}

// Get retrieves a session by identifier.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Touch updates the session's last-interaction timestamp. No-op if absent.
func (r *Registry) Touch(id string) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		sess.touch(time.Now().UTC())
	}
}

// DeactivateAndRemove flips the session inactive and drops it from the
// registry. Returns whether the id existed; a second call is a no-op.
func (r *Registry) DeactivateAndRemove(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	sess.deactivate()
	return true
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep deactivates and removes every session idle longer than maxIdle and
// returns the removed entries so the caller can stop their remote halves.
func (r *Registry) Sweep(maxIdle time.Duration) []*Session {
	cutoff := time.Now().UTC().Add(-maxIdle)

	r.mu.Lock()
	var swept []*Session
	for id, sess := range r.sessions {
		if sess.LastInteraction().Before(cutoff) {
			delete(r.sessions, id)
			swept = append(swept, sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range swept {
		sess.deactivate()
	}
	return swept
}
