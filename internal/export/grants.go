package export

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

// Accounts holding a grant scoped to dbName or to every database. Global
// accounts are matched through their global SELECT privilege.
const grantHoldersQuery = `SELECT User, Host FROM mysql.db WHERE Db = ? OR Db = '%'
UNION
SELECT User, Host FROM mysql.user WHERE Select_priv = 'Y'
ORDER BY User, Host`

// synthesizeGrants writes GRANT statements for every account that holds a
// privilege on dbName. Grants have no dump mode at all; the statements come
// from SHOW GRANTS per account, filtered to lines that reference this
// database or carry a blanket ALL PRIVILEGES grant. The filter is a
// substring match on the backticked database name, which can over-match
// when one database name contains another; known fidelity gap, kept as-is.
func synthesizeGrants(ctx context.Context, db *sql.DB, dbName string, w io.Writer) error {
	rows, err := db.QueryContext(ctx, grantHoldersQuery, dbName)
	if err != nil {
		return fmt.Errorf("enumerate grant holders for %s: %w", dbName, err)
	}
	defer rows.Close()

	type account struct{ user, host string }
	var accounts []account
	for rows.Next() {
		var a account
		if err := rows.Scan(&a.user, &a.host); err != nil {
			return fmt.Errorf("scan grant holder: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("enumerate grant holders for %s: %w", dbName, err)
	}

	marker := "`" + dbName + "`"
	var kept []string
	for _, a := range accounts {
		statements, err := showGrants(ctx, db, a.user, a.host)
		if err != nil {
			// An account can disappear between enumeration and SHOW GRANTS.
			continue
		}
		for _, stmt := range statements {
			if strings.Contains(stmt, marker) || strings.Contains(stmt, "ALL PRIVILEGES") {
				kept = append(kept, stmt)
			}
		}
	}

	if len(kept) == 0 {
		_, err := fmt.Fprintf(w, "-- No grants reference database `%s`.\n", dbName)
		return err
	}

	for _, stmt := range kept {
		if _, err := fmt.Fprintf(w, "%s;\n", stmt); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "FLUSH PRIVILEGES;"); err != nil {
		return err
	}

	return nil
}

func showGrants(ctx context.Context, db *sql.DB, user, host string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SHOW GRANTS FOR '%s'@'%s'", user, host))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statements []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, rows.Err()
}
