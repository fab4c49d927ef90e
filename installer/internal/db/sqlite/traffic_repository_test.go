package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
	"github.com/irgordon/trafficx/installer/internal/db/sqlite"
)

func seed(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "x-ui.db")
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return path
}

func TestTrafficRepository_Probe(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewTrafficRepository()

	t.Run("missing file", func(t *testing.T) {
		err := repo.Probe(ctx, filepath.Join(t.TempDir(), "nope.db"))
		assert.ErrorIs(t, err, domain.ErrDatabaseMissing)
	})

	t.Run("missing table", func(t *testing.T) {
		path := seed(t, `CREATE TABLE inbounds (id INTEGER PRIMARY KEY, settings TEXT)`)
		err := repo.Probe(ctx, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "client_traffics")
	})

	t.Run("panel schema", func(t *testing.T) {
		path := seed(t,
			`CREATE TABLE inbounds (id INTEGER PRIMARY KEY, settings TEXT)`,
			`CREATE TABLE client_traffics (id INTEGER PRIMARY KEY, inbound_id INTEGER, email TEXT, up INTEGER, down INTEGER, total INTEGER, expiry_time INTEGER)`,
			`INSERT INTO client_traffics (inbound_id, email, up, down, total, expiry_time) VALUES (1, 'a@example.com', 1, 2, 3, 0)`,
		)
		require.NoError(t, repo.Probe(ctx, path))

		n, err := repo.CountClients(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
