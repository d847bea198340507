package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	s, err := newWithDB(db)
	if err != nil {
		t.Fatalf("newWithDB: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewCreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sqldash.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	v, err := s.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != 1 {
		t.Errorf("expected migration version 1, got %d", v)
	}

	// Reopening must not re-run migrations.
	s.Close()
	s2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Close()
}

func TestAddAndListHistory(t *testing.T) {
	s := newTestStore(t)

	s.AddHistory("SELECT 1", "warehouse", 100*time.Millisecond, 1, "")
	s.AddHistory("SELECT 2", "analytics", 200*time.Millisecond, 5, "")
	s.AddHistory("SELECT 3", "warehouse", 50*time.Millisecond, 0, "some error")

	entries, err := s.ListHistory(10)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// Newest first
	if entries[0].SQL != "SELECT 3" {
		t.Errorf("expected newest entry first, got %q", entries[0].SQL)
	}
	if entries[2].SQL != "SELECT 1" {
		t.Errorf("expected oldest entry last, got %q", entries[2].SQL)
	}
	if entries[0].Error != "some error" {
		t.Errorf("expected error field, got %q", entries[0].Error)
	}
	if entries[0].Connection != "warehouse" {
		t.Errorf("expected connection warehouse, got %q", entries[0].Connection)
	}
	if entries[1].Duration != 200*time.Millisecond {
		t.Errorf("expected 200ms duration, got %v", entries[1].Duration)
	}

	limited, err := s.ListHistory(2)
	if err != nil {
		t.Fatalf("ListHistory(2): %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 entries with limit, got %d", len(limited))
	}
}

func TestClearHistory(t *testing.T) {
	s := newTestStore(t)

	s.AddHistory("SELECT 1", "warehouse", 0, 0, "")
	s.AddHistory("SELECT 2", "warehouse", 0, 0, "")

	if err := s.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}

	entries, err := s.ListHistory(10)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries after clear, got %d", len(entries))
	}
}

func TestListRecentConnections(t *testing.T) {
	s := newTestStore(t)

	s.AddHistory("SELECT 1", "old", 0, 0, "")
	s.AddHistory("SELECT 2", "mid", 0, 0, "")
	s.AddHistory("SELECT 3", "new", 0, 0, "")
	s.AddHistory("SELECT 4", "old", 0, 0, "")
	s.AddHistory("SELECT 5", "", 0, 0, "")

	names, err := s.ListRecentConnections(10)
	if err != nil {
		t.Fatalf("ListRecentConnections: %v", err)
	}
	want := []string{"old", "new", "mid"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], names[i])
		}
	}

	limited, _ := s.ListRecentConnections(2)
	if len(limited) != 2 {
		t.Fatalf("expected 2 connections with limit, got %d", len(limited))
	}
}

func TestGetSetSetting(t *testing.T) {
	s := newTestStore(t)

	val, err := s.GetSetting("nonexistent")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if val != "" {
		t.Errorf("expected empty for missing key, got %q", val)
	}

	if err := s.SetSetting("theme", "dark"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	val, err = s.GetSetting("theme")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if val != "dark" {
		t.Errorf("expected 'dark', got %q", val)
	}

	if err := s.SetSetting("theme", "light"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	val, _ = s.GetSetting("theme")
	if val != "light" {
		t.Errorf("expected 'light' after overwrite, got %q", val)
	}
}

func TestNotFoundIsWrapped(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetConnection(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConnection: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetConnectionByName("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConnectionByName: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetReport(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReport: expected ErrNotFound, got %v", err)
	}
	if _, err := s.SaveReport(Report{ID: 42, Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveReport update: expected ErrNotFound, got %v", err)
	}
}
