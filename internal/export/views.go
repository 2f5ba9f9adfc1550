package export

import (
	"context"
	"database/sql"
	"fmt"
	"io"
)

// synthesizeViews writes a self-contained script recreating every view in
// dbName. Views cannot be isolated through a dump mode, so the definitions
// are reconstructed from the catalog: each view gets a DROP IF EXISTS guard
// followed by its reported CREATE statement.
func synthesizeViews(ctx context.Context, db *sql.DB, dbName string, w io.Writer) error {
	rows, err := db.QueryContext(ctx,
		"SELECT TABLE_NAME FROM information_schema.VIEWS WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME",
		dbName)
	if err != nil {
		return fmt.Errorf("enumerate views for %s: %w", dbName, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan view name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("enumerate views for %s: %w", dbName, err)
	}

	if len(names) == 0 {
		_, err := fmt.Fprintf(w, "-- No views defined in database `%s`.\n", dbName)
		return err
	}

	if _, err := fmt.Fprintf(w, "USE `%s`;\n\n", dbName); err != nil {
		return err
	}

	for _, name := range names {
		definition, err := showCreateView(ctx, db, dbName, name)
		if err != nil {
			return fmt.Errorf("reconstruct view %s.%s: %w", dbName, name, err)
		}
		if _, err := fmt.Fprintf(w, "DROP VIEW IF EXISTS `%s`;\n%s;\n\n", name, definition); err != nil {
			return err
		}
	}

	return nil
}

func showCreateView(ctx context.Context, db *sql.DB, dbName, viewName string) (string, error) {
	var (
		name       string
		definition string
		charset    string
		collation  string
	)
	row := db.QueryRowContext(ctx, fmt.Sprintf("SHOW CREATE VIEW `%s`.`%s`", dbName, viewName))
	if err := row.Scan(&name, &definition, &charset, &collation); err != nil {
		return "", err
	}
	return definition, nil
}
