package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id %[1]s,
    model_name TEXT NOT NULL,
    task TEXT NOT NULL,
    samples INTEGER NOT NULL,
    train_samples INTEGER NOT NULL,
    test_samples INTEGER NOT NULL,
    seed INTEGER NOT NULL,
    trees INTEGER NOT NULL,
    accuracy REAL,
    pos_precision REAL,
    pos_recall REAL,
    roc_auc REAL,
    mae REAL,
    mse REAL,
    r2 REAL,
    artifact_path TEXT NOT NULL,
    trained_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
    id %[1]s,
    model_name TEXT NOT NULL,
    driver_number INTEGER NOT NULL,
    features TEXT NOT NULL,
    output REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_model ON predictions (model_name);
`

// Store keeps the training run log and the optional prediction audit trail.
type Store struct {
	db *sqlx.DB
}

// Open connects to driver/dsn and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var idColumn string
	switch driver {
	case DriverSQLite:
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
	case DriverPostgres:
		idColumn = "SERIAL PRIMARY KEY"
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("database dsn required")
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	if driver == DriverSQLite {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ping %s database", driver)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(schema, idColumn)); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
