package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type HistoryEntry struct {
	ID         int64
	SQL        string
	Connection string
	Timestamp  time.Time
	Duration   time.Duration
	RowCount   int64
	Error      string
}

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and applies
// migrations.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s, err := newWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newWithDB(db *sql.DB) (*Store, error) {
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases alive across queries.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.Up(s.db, "migrations")
}

// Version returns the applied migration version.
func (s *Store) Version() (int64, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(s.db)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// History

func (s *Store) AddHistory(sqlText, connection string, dur time.Duration, rowCount int64, queryErr string) error {
	_, err := s.db.Exec(
		`INSERT INTO history (sql_text, connection, timestamp, duration_ms, row_count, error) VALUES (?, ?, ?, ?, ?, ?)`,
		sqlText, connection, time.Now(), dur.Milliseconds(), rowCount, queryErr,
	)
	return err
}

func (s *Store) ListHistory(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		`SELECT id, sql_text, connection, timestamp, duration_ms, row_count, error FROM history ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ms int64
		if err := rows.Scan(&e.ID, &e.SQL, &e.Connection, &e.Timestamp, &ms, &e.RowCount, &e.Error); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) ClearHistory() error {
	_, err := s.db.Exec(`DELETE FROM history`)
	return err
}

// ListRecentConnections returns connection names ordered by their most
// recent query.
func (s *Store) ListRecentConnections(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT connection FROM history WHERE connection != '' GROUP BY connection ORDER BY MAX(timestamp) DESC, MAX(id) DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Settings

func (s *Store) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}
