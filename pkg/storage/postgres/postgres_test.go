package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/absmach/fedround/pkg/storage/postgres"
	"github.com/absmach/fedround/pkg/storage/testutil"
	"github.com/stretchr/testify/require"
)

// The tests need a disposable database, for example
// FEDROUND_TEST_POSTGRES_DSN="host=localhost port=5432 user=test password=test dbname=test sslmode=disable".
func newDatabase(t *testing.T) *postgres.Database {
	t.Helper()
	dsn := os.Getenv("FEDROUND_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FEDROUND_TEST_POSTGRES_DSN not set")
	}

	db, err := postgres.NewDatabaseFromDSN(dsn)
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), `TRUNCATE runs`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestRunRepository(t *testing.T) {
	db := newDatabase(t)
	testutil.RunRepositoryContract(t, postgres.NewRunRepository(db))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newDatabase(t)
	require.NoError(t, db.Migrate())
}
