package importer

import (
	"context"
	"io"
	"strings"
	"time"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/display"
)

// OptimizedThreshold is the on-disk size above which a stage file is
// applied through the optimized strategy.
const OptimizedThreshold = 10 * 1024 * 1024

const optimizedPreamble = "SET FOREIGN_KEY_CHECKS=0;\n" +
	"SET UNIQUE_CHECKS=0;\n" +
	"SET AUTOCOMMIT=0;\n" +
	"SET SQL_LOG_BIN=0;\n"

const optimizedEpilogue = "COMMIT;\n" +
	"SET FOREIGN_KEY_CHECKS=1;\n" +
	"SET UNIQUE_CHECKS=1;\n"

// OptimizedStream brackets the stage content with the tuning preamble and
// the commit epilogue. The content itself flows through unmodified.
func OptimizedStream(content io.Reader) io.Reader {
	return io.MultiReader(
		strings.NewReader(optimizedPreamble),
		content,
		strings.NewReader(optimizedEpilogue),
	)
}

// runOptimized applies a large stage file with checks disabled and progress
// reporting. Byte-level progress goes through the relay when one is
// available; otherwise a background ticker reports elapsed time. Either way
// the reporter is stopped before the outcome is finalized, and its absence
// never affects correctness.
func (p *Pipeline) runOptimized(ctx context.Context, dbName string, file artifact.File, content io.Reader, opts Options) database.Result {
	stream := content
	if opts.Relay != nil {
		stream = opts.Relay.Wrap(content, file.SizeBytes)
	} else {
		ticker := display.NewStatusTicker(opts.StatusInterval, func(elapsed time.Duration) {
			p.logger.WithFields(map[string]interface{}{
				"database": dbName,
				"stage":    file.Stage.String(),
				"size":     display.FormatSize(file.SizeBytes),
				"elapsed":  display.FormatDuration(elapsed),
			}).Info("Import in progress")
		})
		ticker.Start()
		defer ticker.Stop()
	}

	return p.client.Execute(ctx, dbName, OptimizedStream(stream))
}
