// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
sessions.go - Restore Session Store

Sessions track the progress of each restore for status polling. Finished
sessions expire after the TTL and the oldest finished sessions are evicted
beyond the cap. Running sessions are never evicted.
*/

//nolint:staticcheck // File documentation, not package doc
package restore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
)

// Session is the polled view of a restore.
type Session struct {
	RestoreID  string         `json:"restore_id"`
	BackupID   string         `json:"backup_id"`
	Status     Status         `json:"status"`
	Message    string         `json:"message"`
	Percent    int            `json:"percent"`
	Path       Path           `json:"path,omitempty"`
	Error      string         `json:"error,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Running reports whether the restore has not finished.
func (s *Session) Running() bool {
	return s.FinishedAt == nil
}

func (s *Session) clone() *Session {
	c := *s
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	if s.Details != nil {
		c.Details = make(map[string]any, len(s.Details))
		for k, v := range s.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// SessionStore holds restore sessions in memory.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	max      int
	now      func() time.Time
}

// NewSessionStore creates a store. Non-positive ttl or max use the defaults.
func NewSessionStore(ttl time.Duration, maxSessions int) *SessionStore {
	def := DefaultConfig()
	if ttl <= 0 {
		ttl = def.SessionTTL
	}
	if maxSessions <= 0 {
		maxSessions = def.MaxSessions
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		max:      maxSessions,
		now:      time.Now,
	}
}

func (s *SessionStore) create(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.RestoreID] = sess
	s.pruneLocked(s.now())
	s.mu.Unlock()
	s.publishGauge()
}

func (s *SessionStore) update(id string, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		fn(sess)
		sess.UpdatedAt = s.now()
	}
}

// Get returns a copy of the session.
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// List returns copies of every session, newest first.
func (s *SessionStore) List() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Delete removes a finished session. Running sessions cannot be removed.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if sess.Running() {
		s.mu.Unlock()
		return ErrRestoreInProgress
	}
	delete(s.sessions, id)
	s.mu.Unlock()
	s.publishGauge()
	return nil
}

// Len returns the number of sessions held.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune drops expired sessions and enforces the cap. It returns how many
// sessions were removed.
func (s *SessionStore) Prune() int {
	s.mu.Lock()
	n := s.pruneLocked(s.now())
	s.mu.Unlock()
	if n > 0 {
		s.publishGauge()
	}
	return n
}

func (s *SessionStore) pruneLocked(now time.Time) int {
	removed := 0
	finished := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if sess.Running() {
			continue
		}
		if now.Sub(*sess.FinishedAt) > s.ttl {
			delete(s.sessions, id)
			removed++
			continue
		}
		finished = append(finished, sess)
	}

	excess := len(s.sessions) - s.max
	if excess <= 0 {
		return removed
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt.Before(*finished[j].FinishedAt)
	})
	for i := 0; i < excess && i < len(finished); i++ {
		delete(s.sessions, finished[i].RestoreID)
		removed++
	}
	return removed
}

func (s *SessionStore) publishGauge() {
	metrics.SetRestoreSessions(s.Len())
}

// Serve runs the janitor until ctx is cancelled. It implements
// suture.Service.
func (s *SessionStore) Serve(ctx context.Context) error {
	interval := max(s.ttl/4, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				logging.Debug().Int("removed", n).Msg("Pruned restore sessions")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *SessionStore) String() string {
	return "restore-session-janitor"
}
