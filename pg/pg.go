// Package pg implements warehouse.Connector for PostgreSQL over the pgx
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/farbodahm/sqldash/placeholder"
	"github.com/farbodahm/sqldash/warehouse"
)

const (
	defaultPort    = 5432
	defaultSSLMode = "prefer"
	defaultSchema  = "public"
)

const schemaQuery = `
SELECT t.table_name, c.column_name
FROM information_schema.tables t
LEFT JOIN information_schema.columns c
  ON c.table_schema = t.table_schema AND c.table_name = t.table_name
WHERE t.table_schema = $1
ORDER BY t.table_name, c.ordinal_position`

type Connector struct {
	db     *sql.DB
	schema string
	log    logr.Logger
}

var _ warehouse.Connector = (*Connector)(nil)

// Open prepares a connection pool for cfg. No round trip happens until the
// first call. cfg.Dataset, when set, selects the Postgres schema to
// introspect instead of public.
func Open(_ context.Context, cfg warehouse.Config, log logr.Logger) (warehouse.Connector, error) {
	db, err := sql.Open("pgx", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	schema := cfg.Dataset
	if schema == "" {
		schema = defaultSchema
	}
	log.V(1).Info("postgres pool ready", "host", cfg.Host, "database", cfg.Database, "schema", schema)
	return newWithDB(db, schema, log), nil
}

func newWithDB(db *sql.DB, schema string, log logr.Logger) *Connector {
	return &Connector{db: db, schema: schema, log: log}
}

// DSN builds a postgres:// URL for cfg, escaping credentials.
func DSN(cfg warehouse.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = defaultSSLMode
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	return u.String()
}

func (c *Connector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Schema returns every table of the configured schema with its columns in
// ordinal order. Tables are ordered by name.
func (c *Connector) Schema(ctx context.Context) (*placeholder.SchemaIndex, error) {
	rows, err := c.db.QueryContext(ctx, schemaQuery, c.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []placeholder.Table
	for rows.Next() {
		var table string
		var column sql.NullString
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if n := len(tables); n == 0 || tables[n-1].Name != table {
			tables = append(tables, placeholder.Table{Name: table})
		}
		if column.Valid {
			last := &tables[len(tables)-1]
			last.Columns = append(last.Columns, column.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return placeholder.NewSchemaIndex(tables...), nil
}

// Run executes sqlText and renders every value as text. NULL is shown as
// "NULL". Reading stops after maxRows rows.
func (c *Connector) Run(ctx context.Context, sqlText string, maxRows int) (*warehouse.Result, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	result := &warehouse.Result{Columns: cols}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if maxRows > 0 && result.RowCount >= int64(maxRows) {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read row: %w", err)
	}
	result.Duration = time.Since(start)
	c.log.V(1).Info("query finished", "rows", result.RowCount, "duration", result.Duration.String())
	return result, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (c *Connector) Close() error {
	return c.db.Close()
}
