package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashmarin/filebutler/internal/domain"
)

const sweepInterval = time.Minute

// EvictCallback is called for each session removed by the TTL sweeper, after
// the session is already gone from the store.
type EvictCallback func(key Key, sess *domain.Session)

// StartSweeper runs a background goroutine that periodically evicts sessions
// idle past the store's TTL and reaps lock entries with no session behind
// them. It stops when ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, onEvict EvictCallback) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", sweepInterval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				s.sweep(onEvict)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (s *Store) sweep(onEvict EvictCallback) {
	cutoff := s.now().Add(-s.ttl)

	s.mu.RLock()
	var expired []Key
	for key, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			expired = append(expired, key)
		}
	}
	s.mu.RUnlock()

	for _, key := range expired {
		l := s.keyLock(key)
		l.Lock()

		s.mu.Lock()
		sess, ok := s.sessions[key]
		// Re-check under the lock: a handler may have touched the session
		// between the scan and now.
		if ok && sess.LastActivity.Before(cutoff) {
			if sess.Cancel != nil {
				sess.Cancel()
			}
			delete(s.sessions, key)
		} else {
			ok = false
		}
		s.mu.Unlock()
		l.Unlock()

		if ok {
			slog.Info("Session evicted by TTL",
				"chat_id", key.ChatID,
				"flow", sess.Flow,
				"stage", sess.Stage,
				"idle", s.now().Sub(sess.LastActivity))
			if onEvict != nil {
				onEvict(key, sess)
			}
		}
	}

	// Reap lock entries whose sessions are gone so the map does not grow
	// unboundedly with one-off identities.
	s.mu.Lock()
	for key := range s.locks {
		if _, live := s.sessions[key]; !live {
			delete(s.locks, key)
		}
	}
	s.mu.Unlock()
}
