// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pashagolub/pgxmock/v4"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func seedEntries(t *testing.T, s Store) time.Time {
	t.Helper()
	base := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "a", ScheduleID: "nightly", BackupID: "b1", Status: StatusSuccess, Timestamp: base},
		{ID: "b", ScheduleID: ScheduleManual, BackupID: "b2", Status: StatusPartial, Timestamp: base.Add(time.Hour), ErrorMessage: "s3: upload failed"},
		{ID: "c", ScheduleID: ScheduleRestore, BackupID: "b1", Status: StatusFailed, Timestamp: base.Add(2 * time.Hour),
			Metadata: map[string]any{"path": "online"}},
		{ID: "d", ScheduleID: ScheduleCleanup, Status: StatusSuccess, Timestamp: base.Add(3 * time.Hour)},
	}
	for i := range entries {
		if err := s.Save(context.Background(), &entries[i]); err != nil {
			t.Fatalf("failed to save entry %s: %v", entries[i].ID, err)
		}
	}
	return base
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i := range entries {
		out[i] = entries[i].ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStores(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore(0) },
		"badger": func(t *testing.T) Store { return NewBadgerStore(openTestBadger(t)) },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := newStore(t)
			base := seedEntries(t, s)
			ctx := context.Background()

			tests := []struct {
				name   string
				filter Filter
				want   []string
			}{
				{"all newest first", Filter{}, []string{"d", "c", "b", "a"}},
				{"by schedule", Filter{ScheduleID: ScheduleRestore}, []string{"c"}},
				{"by backup", Filter{BackupID: "b1"}, []string{"c", "a"}},
				{"by status", Filter{Status: StatusSuccess}, []string{"d", "a"}},
				{"since", Filter{Since: base.Add(90 * time.Minute)}, []string{"d", "c"}},
				{"limit", Filter{Limit: 2}, []string{"d", "c"}},
			}
			for _, tt := range tests {
				got, err := s.List(ctx, tt.filter)
				if err != nil {
					t.Fatalf("%s: unexpected error: %v", tt.name, err)
				}
				if !equalIDs(ids(got), tt.want) {
					t.Errorf("%s: expected %v, got %v", tt.name, tt.want, ids(got))
				}
			}

			got, err := s.Get(ctx, "c")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Metadata["path"] != "online" {
				t.Errorf("expected metadata path online, got %v", got.Metadata["path"])
			}

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrEntryNotFound) {
				t.Errorf("expected ErrEntryNotFound, got %v", err)
			}
		})
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(10)
	base := time.Now()
	for i := 0; i < 11; i++ {
		e := Entry{ID: string(rune('a' + i)), Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := s.Save(context.Background(), &e); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := s.List(context.Background(), Filter{})
	if len(got) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(got))
	}
	if _, err := s.Get(context.Background(), "a"); err == nil {
		t.Error("expected oldest entry to be evicted")
	}
}

type failingStore struct {
	MemoryStore
}

func (f *failingStore) Save(context.Context, *Entry) error { return errors.New("disk full") }

func TestRecorderFillsDefaults(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	rec := NewRecorder(store)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry := &Entry{ScheduleID: ScheduleRestore, BackupID: "b1", Status: StatusFailed}
	rec.Record(ctx, entry)

	if entry.ID == "" {
		t.Error("expected generated ID")
	}
	if !entry.Timestamp.Equal(fixed) {
		t.Errorf("expected timestamp %v, got %v", fixed, entry.Timestamp)
	}
	got, err := store.Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("expected entry saved despite cancelled context: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}

	// Store failures are swallowed.
	NewRecorder(&failingStore{}).Record(context.Background(), &Entry{ScheduleID: ScheduleManual})
}

func TestPostgresStoreSave(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	ts := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO dbwarden_audit_log`).
		WithArgs("e1", ScheduleManual, "b1", "partial", ts, "gcs: quota", []byte(`{"failed":1}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresStore(mock)
	err = s.Save(context.Background(), &Entry{
		ID:           "e1",
		ScheduleID:   ScheduleManual,
		BackupID:     "b1",
		Status:       StatusPartial,
		Timestamp:    ts,
		ErrorMessage: "gcs: quota",
		Metadata:     map[string]any{"failed": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreList(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	ts := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "schedule_id", "backup_id", "status", "timestamp", "error_message", "metadata"}).
		AddRow("c", ScheduleRestore, "b1", "failed", ts, "restore failed", []byte(`{"path":"exclusive"}`)).
		AddRow("a", "nightly", "b1", "success", ts.Add(-time.Hour), "", []byte(`{}`))
	mock.ExpectQuery(`FROM dbwarden_audit_log WHERE backup_id = \$1 ORDER BY timestamp DESC LIMIT \$2`).
		WithArgs("b1", 5).
		WillReturnRows(rows)

	got, err := NewPostgresStore(mock).List(context.Background(), Filter{BackupID: "b1", Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equalIDs(ids(got), []string{"c", "a"}) {
		t.Errorf("expected [c a], got %v", ids(got))
	}
	if got[0].Metadata["path"] != "exclusive" {
		t.Errorf("expected decoded metadata, got %v", got[0].Metadata)
	}
	if got[1].Metadata != nil {
		t.Errorf("expected nil metadata for empty object, got %v", got[1].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
