// Package discovery resolves which logical databases an export run covers,
// either from an explicit operator selection or from the service's schema
// catalog minus the MySQL system schemas.
package discovery

import (
	"context"
	"strings"

	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/errors"
	"mysql-backup-porter/internal/logging"
)

// SystemSchemas are never exported when resolving "all databases".
// Matching is exact and case-sensitive.
var SystemSchemas = []string{
	"information_schema",
	"performance_schema",
	"mysql",
	"sys",
}

// Selection is either an explicit ordered list of database names or empty,
// which means "all user databases".
type Selection struct {
	Databases []string
}

// All reports whether the selection asks for every user database.
func (s Selection) All() bool {
	return len(s.Databases) == 0
}

// Resolver turns a selection into the ordered database list an export run
// iterates.
type Resolver struct {
	catalog *database.Catalog
	logger  *logging.Logger
}

// NewResolver creates a resolver bound to the export service's catalog.
func NewResolver(catalog *database.Catalog, logger *logging.Logger) *Resolver {
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve returns the databases to export. An explicit selection is
// returned verbatim (names trimmed, order preserved) without an existence
// check; existence is verified per database during export so one typo does
// not sink the remaining names. Resolving "all" against an instance with
// no user databases is fatal.
func (r *Resolver) Resolve(ctx context.Context, selection Selection) ([]string, error) {
	if !selection.All() {
		var names []string
		for _, name := range selection.Databases {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				names = append(names, trimmed)
			}
		}
		if len(names) == 0 {
			return nil, errors.NewFatal(errors.ErrorTypeDiscovery,
				"database selection contained only empty names", nil)
		}
		r.logger.WithField("databases", names).Debug("Using explicit database selection")
		return names, nil
	}

	schemas, err := r.catalog.ListSchemas(ctx)
	if err != nil {
		return nil, errors.NewFatal(errors.ErrorTypeDiscovery,
			"failed to enumerate schemas", err)
	}

	var databases []string
	for _, schema := range schemas {
		if isSystemSchema(schema) {
			continue
		}
		databases = append(databases, schema)
	}

	if len(databases) == 0 {
		return nil, errors.NewFatal(errors.ErrorTypeDiscovery,
			"no user databases found in the restored backup", nil)
	}

	r.logger.WithFields(map[string]interface{}{
		"count":     len(databases),
		"databases": databases,
	}).Info("Resolved databases for export")

	return databases, nil
}

func isSystemSchema(name string) bool {
	for _, system := range SystemSchemas {
		if name == system {
			return true
		}
	}
	return false
}
