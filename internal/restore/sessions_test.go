// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package restore

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func newClockedStore(ttl time.Duration, maxSessions int, now *time.Time) *SessionStore {
	s := NewSessionStore(ttl, maxSessions)
	s.now = func() time.Time { return *now }
	return s
}

func addSession(s *SessionStore, id string, started time.Time, finished *time.Time) {
	s.create(&Session{RestoreID: id, Status: StatusStarted, StartedAt: started})
	if finished != nil {
		f := *finished
		s.update(id, func(sess *Session) {
			sess.Status = StatusCompleted
			sess.FinishedAt = &f
		})
	}
}

func TestSessionStoreTTL(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)
	recent := now.Add(-10 * time.Minute)

	// create prunes as well, so every session is added before the clock
	// reaches the point where "expired" is past its TTL.
	clock := old
	s := newClockedStore(time.Hour, 100, &clock)
	addSession(s, "expired", old, &old)
	addSession(s, "recent", recent, &recent)
	addSession(s, "running", old, nil)
	if s.Len() != 3 {
		t.Fatalf("expected 3 sessions before pruning, got %d", s.Len())
	}

	clock = now
	if n := s.Prune(); n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if _, err := s.Get("expired"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected expired session gone, got %v", err)
	}
	if _, err := s.Get("running"); err != nil {
		t.Errorf("expected running session kept, got %v", err)
	}
	if _, err := s.Get("recent"); err != nil {
		t.Errorf("expected recent session kept, got %v", err)
	}
}

func TestSessionStoreCap(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newClockedStore(time.Hour, 3, &now)

	addSession(s, "running-1", now, nil)
	addSession(s, "running-2", now, nil)
	for i := 0; i < 3; i++ {
		finished := now.Add(time.Duration(i) * time.Minute)
		addSession(s, fmt.Sprintf("done-%d", i), finished, &finished)
	}
	s.Prune()

	if s.Len() != 3 {
		t.Fatalf("expected 3 sessions, got %d", s.Len())
	}
	for _, id := range []string{"running-1", "running-2", "done-2"} {
		if _, err := s.Get(id); err != nil {
			t.Errorf("expected %s kept, got %v", id, err)
		}
	}
}

func TestSessionStoreNeverEvictsRunning(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newClockedStore(time.Hour, 1, &now)

	addSession(s, "a", now, nil)
	addSession(s, "b", now, nil)

	if s.Len() != 2 {
		t.Errorf("expected both running sessions kept, got %d", s.Len())
	}
}

func TestSessionStoreListAndDelete(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newClockedStore(time.Hour, 10, &now)

	first := now.Add(-time.Minute)
	addSession(s, "first", first, &first)
	addSession(s, "second", now, nil)

	list := s.List()
	if len(list) != 2 || list[0].RestoreID != "second" {
		t.Errorf("expected newest first, got %d sessions", len(list))
	}

	list[0].Status = StatusFailed
	if got, _ := s.Get("second"); got.Status != StatusStarted {
		t.Error("expected List to return copies")
	}

	if err := s.Delete("second"); !errors.Is(err, ErrRestoreInProgress) {
		t.Errorf("expected ErrRestoreInProgress, got %v", err)
	}
	if err := s.Delete("first"); err != nil {
		t.Errorf("expected delete to succeed, got %v", err)
	}
	if err := s.Delete("first"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
