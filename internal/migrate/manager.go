// Package migrate applies the embedded Postgres schema with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

const (
	defaultMigrationsTable = "schema_migrations"
	migrationsDir          = "sql"
)

// gooseMu serializes access to goose's package-level settings.
var gooseMu sync.Mutex

// Manager runs the embedded migrations against db.
type Manager struct {
	db    *sql.DB
	table string
	log   goose.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.table = name
		}
	}
}

// WithLogger routes goose output to l.
func WithLogger(l goose.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, table: defaultMigrationsTable, log: goose.NopLogger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FS exposes the embedded migration files.
func FS() fs.FS {
	sub, err := fs.Sub(migrationsFS, migrationsDir)
	if err != nil {
		panic(err)
	}
	return sub
}

func (m *Manager) with(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(m.table)
	goose.SetLogger(m.log)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn()
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.with(func() error { return goose.UpContext(ctx, m.db, migrationsDir) })
}

// Down rolls back the most recent migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.with(func() error { return goose.DownContext(ctx, m.db, migrationsDir) })
}

// Version returns the current schema version.
func (m *Manager) Version(ctx context.Context) (int64, error) {
	var v int64
	err := m.with(func() error {
		var err error
		v, err = goose.GetDBVersionContext(ctx, m.db)
		return err
	})
	return v, err
}

// Status lists every known migration with whether it is applied.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	var out []string
	err := m.with(func() error {
		current, err := goose.GetDBVersionContext(ctx, m.db)
		if err != nil {
			return err
		}
		migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			state := "pending"
			if mig.Version <= current {
				state = "applied"
			}
			out = append(out, fmt.Sprintf("%05d %s", mig.Version, state))
		}
		return nil
	})
	return out, err
}
