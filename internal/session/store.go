// Package session provides in-memory per-identity flow state management.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashmarin/filebutler/internal/domain"
)

// Key identifies one conversation: the chat plus the user within it, so two
// users in the same group chat get independent sessions.
type Key struct {
	ChatID int64
	UserID int64
}

// Store owns all active sessions. Operations on different keys never block
// each other; operations on the same key are serialized through a per-key
// mutex so a rapid double-tap cannot race two mutations of one session.
type Store struct {
	mu       sync.RWMutex
	sessions map[Key]*domain.Session
	locks    map[Key]*sync.Mutex
	ttl      time.Duration

	now func() time.Time // overridable in tests
}

// New creates a session store with the given inactivity TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[Key]*domain.Session),
		locks:    make(map[Key]*sync.Mutex),
		ttl:      ttl,
		now:      time.Now,
	}
}

// keyLock returns the serialization mutex for a key, creating it on first
// use. Lock entries outlive the sessions they guard; the sweeper reaps them
// once no session remains.
func (s *Store) keyLock(key Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Start creates a session for key, unconditionally replacing any existing
// one. Issuing a new top-level command therefore discards whatever flow was
// previously in progress for that identity, collected inputs included. An
// in-flight transfer on the replaced session is cancelled.
func (s *Store) Start(key Key, flow string, stage domain.Stage, options map[string]string) *domain.Session {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	now := s.now()
	sess := &domain.Session{
		ChatID:       key.ChatID,
		UserID:       key.UserID,
		Flow:         flow,
		Stage:        stage,
		Options:      options,
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	if old, ok := s.sessions[key]; ok {
		slog.Info("Session replaced",
			"chat_id", key.ChatID,
			"old_flow", old.Flow,
			"old_stage", old.Stage,
			"items_discarded", len(old.Items))
		if old.Cancel != nil {
			old.Cancel()
		}
	}
	s.sessions[key] = sess
	s.mu.Unlock()

	return sess
}

// Get returns a point-in-time copy of the session for key, taken under the
// per-key lock so it never observes a mutation in progress. Callers must
// treat absence as "no active flow" rather than an error; writes go through
// Mutate, never through the returned copy.
func (s *Store) Get(key Key) (*domain.Session, bool) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	snap := *sess
	snap.Items = append([]domain.Item(nil), sess.Items...)
	if sess.Options != nil {
		snap.Options = make(map[string]string, len(sess.Options))
		for k, v := range sess.Options {
			snap.Options[k] = v
		}
	}
	return &snap, true
}

// Mutate applies fn to the session for key under the per-key lock and
// refreshes its activity timestamp. It reports whether a session existed;
// when absent fn is not called.
func (s *Store) Mutate(key Key, fn func(*domain.Session)) bool {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	fn(sess)
	sess.LastActivity = s.now()
	return true
}

// End removes the session for key. Idempotent.
func (s *Store) End(key Key) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	if sess, ok := s.sessions[key]; ok {
		if sess.Cancel != nil {
			sess.Cancel()
		}
		delete(s.sessions, key)
	}
	s.mu.Unlock()
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
