package importer_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/export"
	"mysql-backup-porter/internal/importer"
	"mysql-backup-porter/internal/logging"
)

// roundTripDumper emits realistic content for schema and data and
// boilerplate-only output for the object-kind stages, the shape a database
// with one table and one view produces.
type roundTripDumper struct{}

func (roundTripDumper) Dump(ctx context.Context, db string, extraArgs []string, out io.Writer) database.Result {
	args := strings.Join(extraArgs, " ")
	switch {
	case strings.Contains(args, "--no-data") && !strings.Contains(args, "--triggers") &&
		!strings.Contains(args, "--routines") && !strings.Contains(args, "--events"):
		fmt.Fprintf(out, "CREATE TABLE `orders` (\n  `id` int NOT NULL AUTO_INCREMENT,\n"+
			"  `customer` varchar(255) NOT NULL,\n  `total` decimal(10,2) NOT NULL,\n"+
			"  `created_at` timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP,\n"+
			"  PRIMARY KEY (`id`),\n  KEY `idx_customer` (`customer`)\n"+
			") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;\n")
	case strings.Contains(args, "--no-create-info") && !strings.Contains(args, "--no-data"):
		fmt.Fprint(out, strings.Repeat("INSERT INTO `orders` VALUES (1,'alice',10.00);\n", 8))
	default:
		// Routines, triggers, events: header comments only.
		fmt.Fprintf(out, "-- Dump of %s\n", db)
	}
	return database.Result{ExitCode: 0}
}

type recordingExecutor struct {
	streams []string
}

func (re *recordingExecutor) Execute(ctx context.Context, db string, statements io.Reader) database.Result {
	content, _ := io.ReadAll(statements)
	re.streams = append(re.streams, string(content))
	return database.Result{ExitCode: 0}
}

func TestExportThenImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewDefaultLogger()

	// Export side: a catalog with one view and no database-scoped grants.
	exportDB, exportMock, err := sqlmock.New()
	require.NoError(t, err)
	defer exportDB.Close()

	exportMock.ExpectQuery("SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE").
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"SCHEMA_NAME"}).AddRow("shop"))
	exportMock.ExpectQuery("SELECT TABLE_NAME FROM information_schema.VIEWS").
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("order_summary"))
	exportMock.ExpectQuery("SHOW CREATE VIEW `shop`.`order_summary`").
		WillReturnRows(sqlmock.NewRows([]string{"View", "Create View", "character_set_client", "collation_connection"}).
			AddRow("order_summary",
				"CREATE ALGORITHM=UNDEFINED DEFINER=`root`@`localhost` SQL SECURITY DEFINER VIEW `order_summary` AS "+
					"SELECT `orders`.`customer` AS `customer`, SUM(`orders`.`total`) AS `spent`, COUNT(`orders`.`id`) AS `order_count` "+
					"FROM `orders` GROUP BY `orders`.`customer` ORDER BY `spent` DESC",
				"utf8mb4", "utf8mb4_general_ci"))
	exportMock.ExpectQuery("SELECT User, Host FROM mysql.db").
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"User", "Host"}))

	outputDir := t.TempDir()
	exportPipeline := export.NewPipeline(
		database.NewCatalog(exportDB, logger), roundTripDumper{}, logger)

	set, err := exportPipeline.ExportDatabase(ctx, "shop", export.Options{OutputDir: outputDir})
	require.NoError(t, err)
	require.Empty(t, set.Failed())

	// Import side: fresh catalog, fresh database name.
	importDB, importMock, err := sqlmock.New()
	require.NoError(t, err)
	defer importDB.Close()

	importMock.ExpectExec("CREATE DATABASE IF NOT EXISTS").
		WillReturnResult(sqlmock.NewResult(0, 0))
	importMock.ExpectQuery("SELECT COUNT").
		WithArgs("shop_copy").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)", "SUM(TABLE_ROWS)"}).AddRow(1, 8))

	exec := &recordingExecutor{}
	importPipeline := importer.NewPipeline(database.NewCatalog(importDB, logger), exec, logger)

	ledger, err := importPipeline.ImportArtifactSet(ctx, "shop_copy", importer.Options{Dir: set.Dir})
	require.NoError(t, err)

	want := map[artifact.Stage]importer.Outcome{
		artifact.StageSchema:   importer.OutcomeSucceeded,
		artifact.StageData:     importer.OutcomeSucceeded,
		artifact.StageViews:    importer.OutcomeSucceeded,
		artifact.StageRoutines: importer.OutcomeSkippedEmpty,
		artifact.StageTriggers: importer.OutcomeSkippedEmpty,
		artifact.StageEvents:   importer.OutcomeSkippedEmpty,
		artifact.StageGrants:   importer.OutcomeSkippedEmpty,
	}
	require.Len(t, ledger.Results, len(want))
	for _, result := range ledger.Results {
		assert.Equal(t, want[result.Stage], result.Outcome, "stage %s", result.Stage)
	}

	assert.EqualValues(t, 1, ledger.TableCount)
	assert.EqualValues(t, 8, ledger.RowCount)
	assert.False(t, ledger.Halted)

	// Only the three non-empty stages reached the client, in order.
	require.Len(t, exec.streams, 3)
	assert.Contains(t, exec.streams[0], "CREATE TABLE `orders`")
	assert.Contains(t, exec.streams[1], "INSERT INTO `orders`")
	assert.Contains(t, exec.streams[2], "DROP VIEW IF EXISTS `order_summary`")
}
