package store

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsDir = "migrations"

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// Migration describes one embedded schema migration.
type Migration struct {
	Version int64
	Name    string
	Applied bool
}

func (d *DB) prepareGoose() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(d.driver); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	return nil
}

// Migrate applies all pending migrations.
func (d *DB) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := d.prepareGoose(); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, d.db, migrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// MigrationStatus lists embedded migrations and whether each is applied.
func (d *DB) MigrationStatus(ctx context.Context) ([]Migration, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := d.prepareGoose(); err != nil {
		return nil, err
	}

	current, err := goose.GetDBVersionContext(ctx, d.db)
	if err != nil {
		return nil, fmt.Errorf("goose version: %w", err)
	}

	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("goose collect: %w", err)
	}

	out := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, Migration{
			Version: m.Version,
			Name:    path.Base(m.Source),
			Applied: m.Version <= current,
		})
	}
	return out, nil
}
