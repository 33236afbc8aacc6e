package database

import (
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// InitDB opens the SQLite database at dbPath and creates the schema if needed.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	// one writer keeps single-record read-modify-write atomic without busy retries
	db.SetMaxOpenConns(1)

	createTableQuery := `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		exchange_id TEXT NOT NULL DEFAULT '',
		exchange_name TEXT NOT NULL DEFAULT '',
		alert_type TEXT NOT NULL,
		condition TEXT NOT NULL,
		value REAL NOT NULL,
		base_price REAL,
		frequency TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		last_checked_price REAL,
		last_triggered_at INTEGER,
		trigger_count INTEGER NOT NULL DEFAULT 0,
		expires_at INTEGER,
		message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err = db.Exec(createTableQuery); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create alerts table")
	}

	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts (status);`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create alerts status index")
	}

	createMetricsTable := `
		CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`
	if _, err = db.Exec(createMetricsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create metrics table")
	}

	log.Debugf("Database initialized successfully at %s", dbPath)
	return db, nil
}
