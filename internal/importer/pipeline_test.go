package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/logging"
)

type executedStage struct {
	database string
	content  string
}

type fakeExecutor struct {
	executions []executedStage
	failOn     map[string]bool
}

func (fe *fakeExecutor) Execute(ctx context.Context, db string, statements io.Reader) database.Result {
	content, _ := io.ReadAll(statements)
	fe.executions = append(fe.executions, executedStage{database: db, content: string(content)})
	for marker := range fe.failOn {
		if strings.Contains(string(content), marker) {
			return database.Result{ExitCode: 1, StderrExcerpt: "ERROR 1064 (42000): syntax error"}
		}
	}
	return database.Result{ExitCode: 0}
}

func newTestPipeline(t *testing.T, exec Executor) (*Pipeline, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	catalog := database.NewCatalog(db, logging.NewDefaultLogger())
	return NewPipeline(catalog, exec, logging.NewDefaultLogger()), mock
}

func writeStage(t *testing.T, dir string, stage artifact.Stage, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, stage.FileBase()), []byte(content), 0o644); err != nil {
		t.Fatalf("write stage file: %v", err)
	}
}

// Content long enough to clear the empty threshold.
func realContent(marker string) string {
	return "-- " + marker + "\n" + strings.Repeat("INSERT INTO t VALUES (1);\n", 10)
}

func expectEnsureDatabase(mock sqlmock.Sqlmock, name string) {
	mock.ExpectExec("CREATE DATABASE IF NOT EXISTS").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectVerification(mock sqlmock.Sqlmock, name string, tables, rows int64) {
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)", "SUM(TABLE_ROWS)"}).AddRow(tables, rows))
}

func TestImportProcessesStagesInCanonicalOrder(t *testing.T) {
	dir := t.TempDir()
	// Written out of order on purpose; processing order must not follow
	// the file system.
	writeStage(t, dir, artifact.StageGrants, realContent("grants"))
	writeStage(t, dir, artifact.StageData, realContent("data"))
	writeStage(t, dir, artifact.StageSchema, realContent("schema"))
	writeStage(t, dir, artifact.StageViews, realContent("views"))

	exec := &fakeExecutor{}
	pipeline, mock := newTestPipeline(t, exec)
	expectEnsureDatabase(mock, "shop_copy")
	expectVerification(mock, "shop_copy", 1, 42)

	ledger, err := pipeline.ImportArtifactSet(context.Background(), "shop_copy", Options{Dir: dir})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	wantMarkers := []string{"schema", "data", "views", "grants"}
	if len(exec.executions) != len(wantMarkers) {
		t.Fatalf("expected %d client invocations, got %d", len(wantMarkers), len(exec.executions))
	}
	for i, marker := range wantMarkers {
		if !strings.Contains(exec.executions[i].content, "-- "+marker) {
			t.Errorf("invocation %d: expected %s stage content", i, marker)
		}
	}

	counts := ledger.Counts()
	if counts[OutcomeSucceeded] != 4 {
		t.Errorf("expected 4 succeeded stages, got %d", counts[OutcomeSucceeded])
	}
	if counts[OutcomeSkippedAbsent] != 3 {
		t.Errorf("expected 3 absent stages, got %d", counts[OutcomeSkippedAbsent])
	}
	if ledger.TableCount != 1 || ledger.RowCount != 42 {
		t.Errorf("verification snapshot: expected 1/42, got %d/%d", ledger.TableCount, ledger.RowCount)
	}
}

func TestImportSkipsEmptyWithoutClientInvocation(t *testing.T) {
	dir := t.TempDir()
	writeStage(t, dir, artifact.StageViews, "-- No views defined in database `shop`.\n")

	exec := &fakeExecutor{}
	pipeline, mock := newTestPipeline(t, exec)
	expectEnsureDatabase(mock, "shop_copy")
	expectVerification(mock, "shop_copy", 0, 0)

	ledger, err := pipeline.ImportArtifactSet(context.Background(), "shop_copy", Options{Dir: dir})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if len(exec.executions) != 0 {
		t.Fatalf("empty stage must never reach the client, got %d invocations", len(exec.executions))
	}
	for _, r := range ledger.Results {
		if r.Stage == artifact.StageViews && r.Outcome != OutcomeSkippedEmpty {
			t.Errorf("placeholder views file: expected %s, got %s", OutcomeSkippedEmpty, r.Outcome)
		}
	}
}

func TestImportHaltLeavesLaterStagesUnrecorded(t *testing.T) {
	dir := t.TempDir()
	writeStage(t, dir, artifact.StageSchema, realContent("schema"))
	writeStage(t, dir, artifact.StageData, realContent("data"))
	writeStage(t, dir, artifact.StageViews, realContent("views"))

	exec := &fakeExecutor{failOn: map[string]bool{"-- data": true}}
	pipeline, mock := newTestPipeline(t, exec)
	expectEnsureDatabase(mock, "shop_copy")
	expectVerification(mock, "shop_copy", 1, 0)

	var decidedStage artifact.Stage
	ledger, err := pipeline.ImportArtifactSet(context.Background(), "shop_copy", Options{
		Dir: dir,
		Decide: func(stage artifact.Stage, cause error) bool {
			decidedStage = stage
			return false
		},
	})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if decidedStage != artifact.StageData {
		t.Errorf("decision callback: expected stage data, got %s", decidedStage)
	}
	if !ledger.Halted {
		t.Error("ledger must be marked halted")
	}
	if len(ledger.Results) != 2 {
		t.Fatalf("expected exactly 2 recorded stages (schema, data), got %d", len(ledger.Results))
	}
	last := ledger.Results[len(ledger.Results)-1]
	if last.Stage != artifact.StageData || last.Outcome != OutcomeFailed {
		t.Errorf("expected final record data/failed, got %s/%s", last.Stage, last.Outcome)
	}
	if last.Detail == "" {
		t.Error("failed stage must carry the stderr excerpt")
	}
}

func TestImportContinuesPastFailureByDefault(t *testing.T) {
	dir := t.TempDir()
	writeStage(t, dir, artifact.StageSchema, realContent("schema"))
	writeStage(t, dir, artifact.StageData, realContent("data"))
	writeStage(t, dir, artifact.StageGrants, realContent("grants"))

	exec := &fakeExecutor{failOn: map[string]bool{"-- data": true}}
	pipeline, mock := newTestPipeline(t, exec)
	expectEnsureDatabase(mock, "shop_copy")
	expectVerification(mock, "shop_copy", 1, 0)

	ledger, err := pipeline.ImportArtifactSet(context.Background(), "shop_copy", Options{Dir: dir})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if ledger.Halted {
		t.Error("default policy must continue past failures")
	}
	counts := ledger.Counts()
	if counts[OutcomeFailed] != 1 || counts[OutcomeSucceeded] != 2 {
		t.Errorf("expected 1 failed and 2 succeeded, got %v", counts)
	}
}

func TestImportMissingDirectoryIsFatal(t *testing.T) {
	pipeline, _ := newTestPipeline(t, &fakeExecutor{})

	_, err := pipeline.ImportArtifactSet(context.Background(), "shop_copy", Options{
		Dir: filepath.Join(t.TempDir(), "nope"),
	})
	if err == nil {
		t.Fatal("expected error for missing artifact directory")
	}
}

func TestImportVerificationFailureDegradesToUnknown(t *testing.T) {
	dir := t.TempDir()
	writeStage(t, dir, artifact.StageSchema, realContent("schema"))

	exec := &fakeExecutor{}
	pipeline, mock := newTestPipeline(t, exec)
	expectEnsureDatabase(mock, "shop_copy")
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("shop_copy").
		WillReturnError(io.ErrUnexpectedEOF)

	ledger, err := pipeline.ImportArtifactSet(context.Background(), "shop_copy", Options{Dir: dir})
	if err != nil {
		t.Fatalf("verification failure must never fail the run: %v", err)
	}

	if ledger.TableCount != -1 || ledger.RowCount != -1 {
		t.Errorf("expected unknown counts, got %d/%d", ledger.TableCount, ledger.RowCount)
	}
	if ledger.Counts()[OutcomeSucceeded] != 1 {
		t.Error("stage outcomes must survive a degraded verification")
	}
}
