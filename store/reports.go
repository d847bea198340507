package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Report is a saved query with placeholders, bound to one connection.
type Report struct {
	ID           int64
	Name         string
	SQL          string
	ConnectionID int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SaveReport inserts r when r.ID is zero and updates it otherwise.
func (s *Store) SaveReport(r Report) (int64, error) {
	if r.Name == "" {
		return 0, fmt.Errorf("report name is required")
	}
	now := time.Now()
	if r.ID == 0 {
		res, err := s.db.Exec(
			`INSERT INTO reports (name, sql_text, connection_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			r.Name, r.SQL, r.ConnectionID, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert report %q: %w", r.Name, err)
		}
		return res.LastInsertId()
	}

	res, err := s.db.Exec(
		`UPDATE reports SET name = ?, sql_text = ?, connection_id = ?, updated_at = ? WHERE id = ?`,
		r.Name, r.SQL, r.ConnectionID, now, r.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("update report %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("report %d: %w", r.ID, ErrNotFound)
	}
	return r.ID, nil
}

func (s *Store) GetReport(id int64) (Report, error) {
	var r Report
	err := s.db.QueryRow(
		`SELECT id, name, sql_text, connection_id, created_at, updated_at FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.SQL, &r.ConnectionID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	return r, err
}

// ListReports returns reports ordered by name. A non-zero connectionID
// restricts the list to that connection.
func (s *Store) ListReports(connectionID int64) ([]Report, error) {
	query := `SELECT id, name, sql_text, connection_id, created_at, updated_at FROM reports`
	var args []any
	if connectionID != 0 {
		query += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Name, &r.SQL, &r.ConnectionID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *Store) DeleteReport(id int64) error {
	_, err := s.db.Exec(`DELETE FROM reports WHERE id = ?`, id)
	return err
}
