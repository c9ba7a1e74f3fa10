package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
	ErrSave         = errors.New("save error")
	ErrDelete       = errors.New("delete error")
)

type RunRepository interface {
	Save(ctx context.Context, r fl.RunRecord) error
	Get(ctx context.Context, id string) (fl.RunRecord, error)
	List(ctx context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error)
	Delete(ctx context.Context, id string) error
}

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_runs",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS runs (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						status TEXT NOT NULL,
						error TEXT,
						config TEXT NOT NULL,
						history TEXT NOT NULL,
						total_epsilon REAL NOT NULL DEFAULT 0,
						total_delta REAL NOT NULL DEFAULT 0,
						privacy TEXT,
						final_parameters BLOB,
						baseline TEXT,
						started_at TIMESTAMP NOT NULL,
						finished_at TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at, id)`,
				},
				Down: []string{
					`DROP INDEX IF EXISTS idx_runs_started_at`,
					`DROP TABLE IF EXISTS runs`,
				},
			},
			{
				Id: "2_add_run_resources",
				Up: []string{
					`ALTER TABLE runs ADD COLUMN resources TEXT`,
				},
				Down: []string{
					`ALTER TABLE runs DROP COLUMN resources`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
