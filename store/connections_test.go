package store

import (
	"errors"
	"testing"
)

func TestSaveAndGetConnection(t *testing.T) {
	s := newTestStore(t)

	id, err := s.SaveConnection(Connection{
		Name: "shop", Kind: "postgres", Host: "db.local", Port: 5432,
		Database: "shop", User: "reporter", Password: "secret", SSLMode: "disable",
	})
	if err != nil {
		t.Fatalf("SaveConnection: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a row id")
	}

	c, err := s.GetConnection(id)
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if c.Host != "db.local" || c.Port != 5432 || c.Password != "secret" || c.SSLMode != "disable" {
		t.Errorf("unexpected connection: %+v", c)
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	byName, err := s.GetConnectionByName("shop")
	if err != nil {
		t.Fatalf("GetConnectionByName: %v", err)
	}
	if byName.ID != id {
		t.Errorf("expected id %d, got %d", id, byName.ID)
	}
}

func TestUpdateConnection(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.SaveConnection(Connection{Name: "bq", Kind: "bigquery", Project: "p1", Dataset: "d1"})
	if _, err := s.SaveConnection(Connection{ID: id, Name: "bq", Kind: "bigquery", Project: "p2", Dataset: "d2"}); err != nil {
		t.Fatalf("SaveConnection update: %v", err)
	}

	c, _ := s.GetConnection(id)
	if c.Project != "p2" || c.Dataset != "d2" {
		t.Errorf("expected updated project/dataset, got %+v", c)
	}

	if _, err := s.SaveConnection(Connection{ID: 999, Name: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestConnectionNameRules(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SaveConnection(Connection{Kind: "postgres"}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := s.SaveConnection(Connection{Name: "dup", Kind: "postgres"}); err != nil {
		t.Fatalf("SaveConnection: %v", err)
	}
	if _, err := s.SaveConnection(Connection{Name: "dup", Kind: "postgres"}); err == nil {
		t.Error("expected unique constraint error for duplicate name")
	}
}

func TestListConnectionsSorted(t *testing.T) {
	s := newTestStore(t)

	s.SaveConnection(Connection{Name: "zeta", Kind: "postgres"})
	s.SaveConnection(Connection{Name: "alpha", Kind: "bigquery"})

	conns, err := s.ListConnections()
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(conns))
	}
	if conns[0].Name != "alpha" || conns[1].Name != "zeta" {
		t.Errorf("expected [alpha zeta], got [%s %s]", conns[0].Name, conns[1].Name)
	}
}

func TestDeleteConnectionRemovesReports(t *testing.T) {
	s := newTestStore(t)

	keep, _ := s.SaveConnection(Connection{Name: "keep", Kind: "postgres"})
	drop, _ := s.SaveConnection(Connection{Name: "drop", Kind: "postgres"})
	s.SaveReport(Report{Name: "a", SQL: "SELECT 1", ConnectionID: keep})
	s.SaveReport(Report{Name: "b", SQL: "SELECT 2", ConnectionID: drop})

	if err := s.DeleteConnection(drop); err != nil {
		t.Fatalf("DeleteConnection: %v", err)
	}

	if _, err := s.GetConnection(drop); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted connection to be gone, got %v", err)
	}
	reports, _ := s.ListReports(0)
	if len(reports) != 1 || reports[0].Name != "a" {
		t.Errorf("expected only report a to remain, got %+v", reports)
	}
}
