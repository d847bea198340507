package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/farbodahm/sqldash/placeholder"
)

const (
	KindPostgres = "postgres"
	KindBigQuery = "bigquery"
)

var (
	ErrUnknownKind   = errors.New("unknown connection kind")
	ErrInvalidConfig = errors.New("missing database configuration details")
)

// Config describes how to reach one database. Postgres uses the host
// fields; BigQuery uses Project and Dataset.
type Config struct {
	Kind     string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	Project  string
	Dataset  string
}

func (c Config) Validate() error {
	var missing []string
	switch c.Kind {
	case KindPostgres:
		if c.Host == "" {
			missing = append(missing, "host")
		}
		if c.Database == "" {
			missing = append(missing, "database")
		}
		if c.User == "" {
			missing = append(missing, "user")
		}
		if c.Port < 0 || c.Port > 65535 {
			return fmt.Errorf("%w: port out of range: %d", ErrInvalidConfig, c.Port)
		}
	case KindBigQuery:
		if c.Project == "" {
			missing = append(missing, "project")
		}
		if c.Dataset == "" {
			missing = append(missing, "dataset")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

type Result struct {
	Columns        []string
	Rows           [][]string
	RowCount       int64
	Duration       time.Duration
	BytesProcessed int64
}

// Connector is an open connection to one database.
type Connector interface {
	Ping(ctx context.Context) error
	// Schema lists the tables and their columns in a stable order.
	Schema(ctx context.Context) (*placeholder.SchemaIndex, error)
	// Run executes sqlText and returns at most maxRows rows.
	Run(ctx context.Context, sqlText string, maxRows int) (*Result, error)
	Close() error
}

// OpenFunc opens a Connector for cfg.
type OpenFunc func(ctx context.Context, cfg Config, log logr.Logger) (Connector, error)
