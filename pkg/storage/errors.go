package storage

import "errors"

var (
	ErrDBConnection = errors.New("database connection error")
	ErrMigration    = errors.New("database migration error")
	ErrUnsupported  = errors.New("unsupported storage type")
)
