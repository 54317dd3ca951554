package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgdrive/botmanager/internal/config"
	"go.uber.org/zap"
)

func TestMigrateSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.DBConfig{DataSource: filepath.Join(t.TempDir(), "nested", "bots.db")}

	db, err := OpenSQLite(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateDB(db, DialectSQLite, zap.NewNop()))
	// Re-running is a no-op.
	require.NoError(t, MigrateDB(db, DialectSQLite, zap.NewNop()))

	_, err = db.ExecContext(ctx, `INSERT INTO users (username, password, created_at, updated_at) VALUES ('alice', 'x', '', '')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO users (username, password, created_at, updated_at) VALUES ('alice', 'y', '', '')`)
	require.Error(t, err)
	assert.True(t, IsKeyConflictErr(err))
}

func TestMigrateUnknownDialect(t *testing.T) {
	assert.Error(t, MigrateDB(nil, "mysql", zap.NewNop()))
}

func TestIsKeyConflictErr(t *testing.T) {
	cases := []struct {
		Name string
		Err  error
		Want bool
	}{
		{Name: "nil", Err: nil, Want: false},
		{Name: "plain", Err: errors.New("boom"), Want: false},
		{Name: "pg unique", Err: &pgconn.PgError{Code: "23505"}, Want: true},
		{Name: "pg wrapped", Err: errors.Wrap(&pgconn.PgError{Code: "23505"}, "insert"), Want: true},
		{Name: "pg other", Err: &pgconn.PgError{Code: "23503"}, Want: false},
	}
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Want, IsKeyConflictErr(tc.Err))
		})
	}
}
