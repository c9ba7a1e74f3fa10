package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/absmach/fedround/pkg/storage/badger"
	"github.com/absmach/fedround/pkg/storage/file"
	"github.com/absmach/fedround/pkg/storage/postgres"
	s3repo "github.com/absmach/fedround/pkg/storage/s3"
	"github.com/absmach/fedround/pkg/storage/sqlite"
)

const (
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeBadger   = "badger"
	TypeS3       = "s3"
)

type Config struct {
	Type string `env:"TYPE" envDefault:"memory"`

	PostgresHost    string `env:"POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"POSTGRES_USER"    envDefault:"fedround"`
	PostgresPass    string `env:"POSTGRES_PASS"    envDefault:"fedround"`
	PostgresDB      string `env:"POSTGRES_DB"      envDefault:"fedround"`
	PostgresSSLMode string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"./fedround.db"`

	BadgerPath string `env:"BADGER_PATH" envDefault:"./data/badger"`

	FileDir string `env:"FILE_DIR" envDefault:"./data/runs"`

	S3 s3repo.Config `envPrefix:"S3_"`
}

type Repositories struct {
	Runs RunRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for backends without one.
	Closer io.Closer
}

func NewRepositories(ctx context.Context, cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case TypePostgres:
		db, err := postgres.NewDatabase(
			cfg.PostgresHost,
			cfg.PostgresPort,
			cfg.PostgresUser,
			cfg.PostgresPass,
			cfg.PostgresDB,
			cfg.PostgresSSLMode,
		)
		if err != nil {
			return nil, err
		}

		return &Repositories{Runs: postgres.NewRunRepository(db), Closer: db}, nil
	case TypeSQLite:
		db, err := sqlite.NewDatabase(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		return &Repositories{Runs: sqlite.NewRunRepository(db), Closer: db}, nil
	case TypeBadger:
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}

		return &Repositories{Runs: badger.NewRunRepository(db), Closer: db}, nil
	case TypeFile:
		repo, err := file.NewRepository(cfg.FileDir)
		if err != nil {
			return nil, err
		}

		return &Repositories{Runs: repo}, nil
	case TypeS3:
		client, err := s3repo.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}

		return &Repositories{Runs: s3repo.NewRepository(client, cfg.S3.Bucket, cfg.S3.Prefix)}, nil
	case TypeMemory, "":
		return &Repositories{Runs: NewMemoryRunRepository(NewInMemoryStorage())}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, cfg.Type)
	}
}

func (r *Repositories) Close() error {
	if r.Closer == nil {
		return nil
	}

	return r.Closer.Close()
}
