// Package sqlite reads the x-ui panel database the deployed service serves
// usage data from. The installer only inspects it; it never writes.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

// RequiredTables are the tables the service queries.
var RequiredTables = []string{"client_traffics", "inbounds"}

// TrafficRepository opens the panel database read-only.
type TrafficRepository struct {
	open func(path string) (*sqlx.DB, error)
}

func NewTrafficRepository() *TrafficRepository {
	return &TrafficRepository{
		open: func(path string) (*sqlx.DB, error) {
			return sqlx.Open("sqlite", "file:"+path+"?mode=ro")
		},
	}
}

// Probe checks that path is a readable database with the expected tables.
func (r *TrafficRepository) Probe(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrDatabaseMissing, path)
	}

	db, err := r.open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	var names []string
	query := `SELECT name FROM sqlite_master WHERE type = 'table'`
	if err := db.SelectContext(ctx, &names, query); err != nil {
		return fmt.Errorf("read schema of %s: %w", path, err)
	}

	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, t := range RequiredTables {
		if !have[t] {
			return fmt.Errorf("%s: missing table %q", path, t)
		}
	}
	return nil
}

// CountClients returns the number of rows in client_traffics.
func (r *TrafficRepository) CountClients(ctx context.Context, path string) (int, error) {
	db, err := r.open(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var n int
	err = db.GetContext(ctx, &n, `SELECT COUNT(*) FROM client_traffics`)
	return n, err
}
