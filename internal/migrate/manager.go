package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"

	"github.com/pressly/goose/v3"

	"keystile.org/migrations"
)

// seams over goose for tests
var (
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	}
	gooseDown = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	}
	gooseVersion = func(ctx context.Context, db *sql.DB) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

// Manager applies the embedded SQL migrations with goose.
type Manager struct {
	db *sql.DB
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

func (m *Manager) prepare() error {
	if m.db == nil {
		return errors.New("migrate: database is not configured")
	}
	goose.SetBaseFS(migrations.FS)
	return goose.SetDialect("pgx")
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.prepare(); err != nil {
		return err
	}
	if err := gooseUp(ctx, m.db, "."); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.prepare(); err != nil {
		return err
	}
	if err := gooseDown(ctx, m.db, "."); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status returns one line per known migration, in order, marked applied or pending.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.prepare(); err != nil {
		return nil, err
	}
	current, err := gooseVersion(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	known, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	out := make([]string, 0, len(known))
	for _, mig := range known {
		state := "pending"
		if mig.Version <= current {
			state = "applied"
		}
		out = append(out, fmt.Sprintf("%-8s %s", state, path.Base(mig.Source)))
	}
	return out, nil
}
