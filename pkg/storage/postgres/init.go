package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fedround/pkg/fl"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
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

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)

	return NewDatabaseFromDSN(dsn)
}

func NewDatabaseFromDSN(dsn string) (*Database, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
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
						id VARCHAR(64) PRIMARY KEY,
						name VARCHAR(255) NOT NULL,
						status VARCHAR(16) NOT NULL,
						error TEXT,
						config JSONB NOT NULL,
						history JSONB NOT NULL,
						total_epsilon DOUBLE PRECISION NOT NULL DEFAULT 0,
						total_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
						privacy JSONB,
						final_parameters BYTEA,
						baseline JSONB,
						started_at TIMESTAMPTZ NOT NULL,
						finished_at TIMESTAMPTZ
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
					`ALTER TABLE runs ADD COLUMN resources JSONB`,
				},
				Down: []string{
					`ALTER TABLE runs DROP COLUMN resources`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
