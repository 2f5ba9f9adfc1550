package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/importer"
)

func sampleSet(t *testing.T) *artifact.Set {
	t.Helper()
	dir := t.TempDir()
	set := artifact.NewSet("shop", dir)
	for _, stage := range []artifact.Stage{artifact.StageSchema, artifact.StageData} {
		path := filepath.Join(dir, stage.FileBase())
		if err := os.WriteFile(path, []byte(strings.Repeat("x", 1024)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := set.Record(stage, path); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	set.RecordError(artifact.StageEvents, fmt.Errorf("mysqldump: events failed"))
	return set
}

func TestExportReportPreservesOrder(t *testing.T) {
	r := NewExportReport()
	r.AddSet(sampleSet(t))
	r.AddFailure("crm", fmt.Errorf("database crm not found"))
	r.Finish()

	if len(r.Databases) != 2 || r.Databases[0].Database != "shop" || r.Databases[1].Database != "crm" {
		t.Fatalf("database order not preserved: %+v", r.Databases)
	}

	stages := r.Databases[0].Stages
	if len(stages) != 3 {
		t.Fatalf("expected 3 stage entries, got %d", len(stages))
	}
	want := []string{"schema", "data", "events"}
	for i, s := range stages {
		if s.Stage != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], s.Stage)
		}
	}
	if stages[2].Outcome != "failed" || stages[2].Detail == "" {
		t.Error("failed stage must carry its cause")
	}

	if len(r.Succeeded) != 1 || len(r.Failed) != 1 {
		t.Errorf("expected 1 succeeded and 1 failed, got %d/%d", len(r.Succeeded), len(r.Failed))
	}
	if r.TotalSize != "2.0 KB" {
		t.Errorf("expected total 2.0 KB, got %s", r.TotalSize)
	}
	if r.RunID == "" {
		t.Error("report must carry a run ID")
	}
}

func TestExportReportRenderFormats(t *testing.T) {
	r := NewExportReport()
	r.AddSet(sampleSet(t))
	r.Finish()

	var text bytes.Buffer
	if err := r.Render(&text, FormatText); err != nil {
		t.Fatalf("text render: %v", err)
	}
	if !strings.Contains(text.String(), "shop (2.0 KB)") {
		t.Errorf("text output missing database line:\n%s", text.String())
	}

	var jsonBuf bytes.Buffer
	if err := r.Render(&jsonBuf, FormatJSON); err != nil {
		t.Fatalf("json render: %v", err)
	}
	var decoded ExportReport
	if err := json.Unmarshal(jsonBuf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output invalid: %v", err)
	}
	if decoded.RunID != r.RunID {
		t.Error("json round trip lost the run ID")
	}

	var yamlBuf bytes.Buffer
	if err := r.Render(&yamlBuf, FormatYAML); err != nil {
		t.Fatalf("yaml render: %v", err)
	}
	if !strings.Contains(yamlBuf.String(), "run_id: "+r.RunID) {
		t.Error("yaml output missing run_id")
	}
}

func TestWriteSummaryFile(t *testing.T) {
	r := NewExportReport()
	r.AddSet(sampleSet(t))
	r.Finish()

	dir := t.TempDir()
	path, err := r.WriteSummaryFile(dir)
	if err != nil {
		t.Fatalf("write summary: %v", err)
	}
	if filepath.Base(path) != SummaryFileName {
		t.Errorf("unexpected summary file name %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var decoded ExportReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("summary file is not valid JSON: %v", err)
	}
}

func TestImportReportFromLedger(t *testing.T) {
	ledger := &importer.Ledger{
		Database: "shop_copy",
		Results: []importer.StageResult{
			{Stage: artifact.StageSchema, Outcome: importer.OutcomeSucceeded, SizeBytes: 2048},
			{Stage: artifact.StageData, Outcome: importer.OutcomeFailed, SizeBytes: 4096, Detail: "syntax error"},
			{Stage: artifact.StageViews, Outcome: importer.OutcomeSkippedEmpty},
			{Stage: artifact.StageRoutines, Outcome: importer.OutcomeSkippedAbsent},
		},
		TotalBytes: 2048,
		Elapsed:    65 * time.Second,
		TableCount: 3,
		RowCount:   -1,
	}

	r := NewImportReport(ledger)

	if r.Succeeded != 1 || r.Failed != 1 || r.Skipped != 2 {
		t.Errorf("counts: expected 1/1/2, got %d/%d/%d", r.Succeeded, r.Failed, r.Skipped)
	}
	if r.TableCount != "3" {
		t.Errorf("expected table count 3, got %s", r.TableCount)
	}
	if r.RowCount != "unknown" {
		t.Errorf("degraded row count must render as unknown, got %s", r.RowCount)
	}
	if r.Elapsed != "1m 5s" {
		t.Errorf("expected elapsed 1m 5s, got %s", r.Elapsed)
	}

	want := []string{"schema", "data", "views", "routines"}
	for i, s := range r.Stages {
		if s.Stage != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], s.Stage)
		}
	}

	var text bytes.Buffer
	if err := r.Render(&text, FormatText); err != nil {
		t.Fatalf("text render: %v", err)
	}
	if !strings.Contains(text.String(), "unknown rows") {
		t.Errorf("verification line missing:\n%s", text.String())
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("empty format should default to text, got %s %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
