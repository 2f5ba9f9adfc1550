package importer

import (
	"context"
)

const verificationQuery = `SELECT COUNT(*), COALESCE(SUM(TABLE_ROWS), 0)
FROM information_schema.TABLES WHERE TABLE_SCHEMA = ?`

// verify attaches a best-effort snapshot of the target database to the
// ledger: total table count and the aggregate row count the catalog
// reports. Row counts are storage-engine estimates, good enough for a
// sanity check. A query failure degrades both counts to unknown and never
// fails the run.
func (p *Pipeline) verify(ctx context.Context, dbName string, ledger *Ledger) {
	var tables, rows int64
	err := p.catalog.DB().QueryRowContext(ctx, verificationQuery, dbName).Scan(&tables, &rows)
	if err != nil {
		p.logger.WithFields(map[string]interface{}{
			"database": dbName,
			"error":    err.Error(),
		}).Warn("Verification snapshot unavailable")
		ledger.TableCount = -1
		ledger.RowCount = -1
		return
	}

	ledger.TableCount = tables
	ledger.RowCount = rows
}
