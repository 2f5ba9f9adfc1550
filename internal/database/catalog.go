package database

import (
	"context"
	"database/sql"
	"time"

	"mysql-backup-porter/internal/errors"
	"mysql-backup-porter/internal/logging"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// Catalog provides the narrow read surface both pipelines need from a
// running MySQL endpoint: liveness, schema enumeration, and the metadata
// queries behind views, grants, and the verification snapshot.
type Catalog struct {
	db     *sql.DB
	logger *logging.Logger
}

// Connect opens a catalog connection and verifies it with a ping. A failed
// connection test is fatal to the run that requested it.
func Connect(config Config, logger *logging.Logger) (*Catalog, error) {
	start := time.Now()

	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, errors.NewFatal(errors.ErrorTypeConnection,
			"failed to open database connection", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewFatal(errors.ErrorTypeConnection,
			"connection test failed for "+config.Address(), err)
	}

	logger.WithFields(map[string]interface{}{
		"address":  config.Address(),
		"duration": time.Since(start).String(),
	}).Debug("Catalog connection established")

	return &Catalog{db: db, logger: logger}, nil
}

// NewCatalog wraps an existing connection; used by tests with sqlmock.
func NewCatalog(db *sql.DB, logger *logging.Logger) *Catalog {
	return &Catalog{db: db, logger: logger}
}

// DB exposes the underlying handle for pipeline queries.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// Ping reports service liveness; bootstrap probes through this.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the connection pool.
func (c *Catalog) Close() {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		c.logger.WithField("error", err.Error()).Warn("Failed to close catalog connection")
	}
}

// ListSchemas returns every schema the service reports, unfiltered and in
// catalog order. Discovery applies the exclusion set on top of this.
func (c *Catalog) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT SCHEMA_NAME FROM information_schema.SCHEMATA ORDER BY SCHEMA_NAME")
	if err != nil {
		return nil, errors.WrapError(err, "failed to list schemas")
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.WrapError(err, "failed to scan schema name")
		}
		schemas = append(schemas, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, "error iterating schema rows")
	}

	return schemas, nil
}

// SchemaExists reports whether the named schema is present in the catalog.
func (c *Catalog) SchemaExists(ctx context.Context, name string) (bool, error) {
	var found string
	err := c.db.QueryRowContext(ctx,
		"SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?",
		name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.WrapError(err, "failed to check schema existence")
	}
	return true, nil
}

// EnsureDatabase creates the named database when absent; import runs this
// so re-imports are idempotent with respect to database creation.
func (c *Catalog) EnsureDatabase(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS `"+name+"`")
	if err != nil {
		return errors.WrapError(err, "failed to ensure database "+name)
	}
	return nil
}
