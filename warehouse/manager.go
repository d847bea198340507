package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/farbodahm/sqldash/placeholder"
)

// Manager opens connectors by kind and caches them per saved connection.
// It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	openers map[string]OpenFunc
	kinds   []string
	conns   map[int64]Connector

	rowLimit int
	maxRows  int
	log      logr.Logger
}

type ManagerOption func(*Manager)

// WithLimits sets the LIMIT enforced on report queries and the hard cap on
// rows read back.
func WithLimits(rowLimit, maxRows int) ManagerOption {
	return func(m *Manager) {
		m.rowLimit = rowLimit
		m.maxRows = maxRows
	}
}

func WithOpener(kind string, fn OpenFunc) ManagerOption {
	return func(m *Manager) {
		if _, ok := m.openers[kind]; !ok {
			m.kinds = append(m.kinds, kind)
		}
		m.openers[kind] = fn
	}
}

func NewManager(log logr.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		openers:  make(map[string]OpenFunc),
		conns:    make(map[int64]Connector),
		rowLimit: 10,
		maxRows:  10000,
		log:      log.WithName("warehouse"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Kinds returns the registered connection kinds in registration order.
func (m *Manager) Kinds() []string {
	return append([]string(nil), m.kinds...)
}

func (m *Manager) open(ctx context.Context, cfg Config) (Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	fn, ok := m.openers[cfg.Kind]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	return fn(ctx, cfg, m.log.WithValues("kind", cfg.Kind))
}

// Open returns the cached connector for id, opening it on first use.
func (m *Manager) Open(ctx context.Context, id int64, cfg Config) (Connector, error) {
	m.mu.Lock()
	c, ok := m.conns[id]
	m.mu.Unlock()
	if ok {
		return c, nil
	}

	c, err := m.open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.conns[id]; ok {
		c.Close()
		return existing, nil
	}
	m.conns[id] = c
	m.log.V(1).Info("connection opened", "id", id)
	return c, nil
}

// Ping checks cfg with a throwaway connector, as the connection form does
// before saving.
func (m *Manager) Ping(ctx context.Context, cfg Config) error {
	c, err := m.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Schema introspects the tables and columns of connection id.
func (m *Manager) Schema(ctx context.Context, id int64, cfg Config) (*placeholder.SchemaIndex, error) {
	c, err := m.Open(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	idx, err := c.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect schema: %w", err)
	}
	m.log.Info("schema loaded", "id", id, "tables", idx.Len(), "duration", time.Since(start).String())
	return idx, nil
}

// Run resolves placeholders in a report query, enforces the row limit and
// executes it on connection id.
func (m *Manager) Run(ctx context.Context, id int64, cfg Config, query string) (*Result, error) {
	c, err := m.Open(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	sqlText := Prepare(query, m.rowLimit)
	m.log.V(1).Info("running query", "id", id, "sql", sqlText)
	res, err := c.Run(ctx, sqlText, m.maxRows)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Forget closes and drops the cached connector for id so the next call
// reopens it with fresh settings.
func (m *Manager) Forget(id int64) {
	m.mu.Lock()
	c, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if ok {
		if err := c.Close(); err != nil {
			m.log.Error(err, "close connection", "id", id)
		}
	}
}

func (m *Manager) Close() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[int64]Connector)
	m.mu.Unlock()
	for id, c := range conns {
		if err := c.Close(); err != nil {
			m.log.Error(err, "close connection", "id", id)
		}
	}
}
