package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Connection is a saved database target.
type Connection struct {
	ID        int64
	Name      string
	Kind      string
	Host      string
	Port      int
	Database  string
	User      string
	Password  string
	SSLMode   string
	Project   string
	Dataset   string
	CreatedAt time.Time
}

const connectionColumns = `id, name, kind, host, port, database_name, username, password, sslmode, project, dataset, created_at`

// SaveConnection inserts c when c.ID is zero and updates it otherwise. It
// returns the row ID.
func (s *Store) SaveConnection(c Connection) (int64, error) {
	if c.Name == "" {
		return 0, fmt.Errorf("connection name is required")
	}
	if c.ID == 0 {
		res, err := s.db.Exec(
			`INSERT INTO connections (name, kind, host, port, database_name, username, password, sslmode, project, dataset, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Name, c.Kind, c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode, c.Project, c.Dataset, time.Now(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert connection %q: %w", c.Name, err)
		}
		return res.LastInsertId()
	}

	res, err := s.db.Exec(
		`UPDATE connections SET name = ?, kind = ?, host = ?, port = ?, database_name = ?, username = ?, password = ?,
		 sslmode = ?, project = ?, dataset = ? WHERE id = ?`,
		c.Name, c.Kind, c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode, c.Project, c.Dataset, c.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("update connection %d: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("connection %d: %w", c.ID, ErrNotFound)
	}
	return c.ID, nil
}

func (s *Store) GetConnection(id int64) (Connection, error) {
	row := s.db.QueryRow(`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Connection{}, fmt.Errorf("connection %d: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *Store) GetConnectionByName(name string) (Connection, error) {
	row := s.db.QueryRow(`SELECT `+connectionColumns+` FROM connections WHERE name = ?`, name)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Connection{}, fmt.Errorf("connection %q: %w", name, ErrNotFound)
	}
	return c, err
}

func (s *Store) ListConnections() ([]Connection, error) {
	rows, err := s.db.Query(`SELECT ` + connectionColumns + ` FROM connections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var conns []Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// DeleteConnection removes the connection and its reports.
func (s *Store) DeleteConnection(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reports WHERE connection_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM connections WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(r scanner) (Connection, error) {
	var c Connection
	err := r.Scan(&c.ID, &c.Name, &c.Kind, &c.Host, &c.Port, &c.Database, &c.User, &c.Password,
		&c.SSLMode, &c.Project, &c.Dataset, &c.CreatedAt)
	return c, err
}
