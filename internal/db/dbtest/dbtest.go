// Package dbtest opens migrated PostgreSQL databases for integration tests.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/yigit/unisphere-enrollment/internal/app/migrations"
	"github.com/yigit/unisphere-enrollment/internal/db"
)

// DSNEnv names the variable holding the connection string. Tests are skipped when it is unset.
const DSNEnv = "TEST_DATABASE_DSN"

// Open returns a database whose search_path is a freshly migrated schema.
// Each package passes its own schema so packages tested in parallel do not share tables.
func Open(t testing.TB, schema string) *db.PostgresDB {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", DSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	ident := pgx.Identifier{schema}.Sanitize()
	_, err = admin.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+ident)
	require.NoError(t, err)
	require.NoError(t, admin.Close(ctx))

	poolConfig, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	poolConfig.ConnConfig.RuntimeParams["search_path"] = schema
	poolConfig.MaxConns = 16

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.NewMigrator(pool, zerolog.Nop()).Migrate(ctx, migrations.Files()))
	return db.NewFromPool(pool, 10*time.Second)
}
