package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrator applies the embedded goose migrations through the shared pool.
type Migrator struct {
	provider *goose.Provider
}

func NewMigrator(pool *pgxpool.Pool, migrations fs.FS) (*Migrator, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool), migrations)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration and returns the versions applied.
func (m *Migrator) Up(ctx context.Context) ([]int64, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	return appliedVersions(results), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) (int64, error) {
	result, err := m.provider.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate down: %w", err)
	}
	if result == nil || result.Source == nil {
		return 0, nil
	}
	return result.Source.Version, nil
}

// MigrationStatus is one row of `migrate status`.
type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
	// AppliedAt is empty for pending migrations.
	AppliedAt string
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		ms := MigrationStatus{Version: s.Source.Version, Path: s.Source.Path}
		if s.State == goose.StateApplied {
			ms.Applied = true
			ms.AppliedAt = s.AppliedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		out = append(out, ms)
	}
	return out, nil
}

// Version returns the current schema version and whether migrations are pending.
func (m *Migrator) Version(ctx context.Context) (int64, bool, error) {
	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("schema version: %w", err)
	}
	pending, err := m.provider.HasPending(ctx)
	if err != nil {
		return version, false, fmt.Errorf("pending migrations: %w", err)
	}
	return version, pending, nil
}

func appliedVersions(results []*goose.MigrationResult) []int64 {
	versions := make([]int64, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil || r.Empty {
			continue
		}
		versions = append(versions, r.Source.Version)
	}
	return versions
}
