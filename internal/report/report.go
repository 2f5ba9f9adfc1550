// Package report aggregates per-stage outcomes into the structured summary
// every run ends with, renderable as text, JSON, or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/display"
	"mysql-backup-porter/internal/importer"
)

// Format selects the rendering of a report.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name from the CLI.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q (text, json, yaml)", name)
	}
}

// SummaryFileName is written next to the artifact sets after an export run.
const SummaryFileName = "export-summary.json"

// StageEntry is one rendered stage line.
type StageEntry struct {
	Stage   string `json:"stage" yaml:"stage"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Size    string `json:"size,omitempty" yaml:"size,omitempty"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// DatabaseReport lists one exported database's stages in canonical order.
type DatabaseReport struct {
	Database   string       `json:"database" yaml:"database"`
	Stages     []StageEntry `json:"stages" yaml:"stages"`
	TotalBytes int64        `json:"total_bytes" yaml:"total_bytes"`
	TotalSize  string       `json:"total_size" yaml:"total_size"`
}

// ExportReport is the final summary of one export run.
type ExportReport struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	Databases  []DatabaseReport `json:"databases" yaml:"databases"`
	Succeeded  []string         `json:"succeeded" yaml:"succeeded"`
	Failed     []string         `json:"failed" yaml:"failed"`
	TotalBytes int64            `json:"total_bytes" yaml:"total_bytes"`
	TotalSize  string           `json:"total_size" yaml:"total_size"`
	Elapsed    string           `json:"elapsed" yaml:"elapsed"`

	started time.Time
}

// NewExportReport starts an export summary with a fresh run ID.
func NewExportReport() *ExportReport {
	now := time.Now()
	return &ExportReport{
		RunID:     uuid.NewString(),
		StartedAt: now,
		started:   now,
	}
}

// AddSet folds one database's artifact set into the report, preserving the
// order databases were exported in. A partial set (some stages failed)
// still counts the database as succeeded; only a whole-database failure
// lands in Failed.
func (r *ExportReport) AddSet(set *artifact.Set) {
	dbReport := DatabaseReport{
		Database:   set.Database,
		TotalBytes: set.TotalBytes(),
		TotalSize:  display.FormatSize(set.TotalBytes()),
	}
	for _, stage := range artifact.ExportStages(true) {
		if f, ok := set.Files[stage]; ok {
			dbReport.Stages = append(dbReport.Stages, StageEntry{
				Stage:   stage.String(),
				Outcome: "succeeded",
				Size:    display.FormatSize(f.SizeBytes),
			})
			continue
		}
		if err, ok := set.StageErrors[stage]; ok {
			dbReport.Stages = append(dbReport.Stages, StageEntry{
				Stage:   stage.String(),
				Outcome: "failed",
				Detail:  err.Error(),
			})
		}
	}

	r.Databases = append(r.Databases, dbReport)
	r.Succeeded = append(r.Succeeded, set.Database)
	r.TotalBytes += set.TotalBytes()
}

// AddFailure records a database whose export failed outright.
func (r *ExportReport) AddFailure(database string, err error) {
	r.Failed = append(r.Failed, database)
	r.Databases = append(r.Databases, DatabaseReport{
		Database: database,
		Stages: []StageEntry{{
			Stage:   "export",
			Outcome: "failed",
			Detail:  err.Error(),
		}},
	})
}

// Finish closes the report's clock and derived fields.
func (r *ExportReport) Finish() {
	r.TotalSize = display.FormatSize(r.TotalBytes)
	r.Elapsed = display.FormatDuration(time.Since(r.started))
}

// Render writes the report in the selected format.
func (r *ExportReport) Render(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, r)
	case FormatYAML:
		return renderYAML(w, r)
	default:
		return r.renderText(w)
	}
}

func (r *ExportReport) renderText(w io.Writer) error {
	fmt.Fprintf(w, "Export run %s\n", r.RunID)
	for _, db := range r.Databases {
		fmt.Fprintf(w, "\n%s (%s)\n", db.Database, db.TotalSize)
		for _, s := range db.Stages {
			if s.Detail != "" {
				fmt.Fprintf(w, "  %-10s %-10s %s\n", s.Stage, s.Outcome, s.Detail)
			} else {
				fmt.Fprintf(w, "  %-10s %-10s %s\n", s.Stage, s.Outcome, s.Size)
			}
		}
	}
	fmt.Fprintf(w, "\nSucceeded: %d  Failed: %d  Total: %s  Elapsed: %s\n",
		len(r.Succeeded), len(r.Failed), r.TotalSize, r.Elapsed)
	return nil
}

// WriteSummaryFile persists the report as JSON next to the artifact sets.
func (r *ExportReport) WriteSummaryFile(outputDir string) (string, error) {
	path := filepath.Join(outputDir, SummaryFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create summary file: %w", err)
	}
	defer f.Close()

	if err := renderJSON(f, r); err != nil {
		return "", fmt.Errorf("write summary file: %w", err)
	}
	return path, nil
}

// ImportReport is the final summary of one import run, derived from the
// pipeline's ledger with stage order preserved.
type ImportReport struct {
	RunID      string       `json:"run_id" yaml:"run_id"`
	Database   string       `json:"database" yaml:"database"`
	Stages     []StageEntry `json:"stages" yaml:"stages"`
	Halted     bool         `json:"halted" yaml:"halted"`
	Succeeded  int          `json:"succeeded" yaml:"succeeded"`
	Failed     int          `json:"failed" yaml:"failed"`
	Skipped    int          `json:"skipped" yaml:"skipped"`
	TotalSize  string       `json:"total_size" yaml:"total_size"`
	Elapsed    string       `json:"elapsed" yaml:"elapsed"`
	TableCount string       `json:"table_count" yaml:"table_count"`
	RowCount   string       `json:"row_count" yaml:"row_count"`
}

// NewImportReport derives the final summary from a ledger.
func NewImportReport(ledger *importer.Ledger) *ImportReport {
	r := &ImportReport{
		RunID:      uuid.NewString(),
		Database:   ledger.Database,
		Halted:     ledger.Halted,
		TotalSize:  display.FormatSize(ledger.TotalBytes),
		Elapsed:    display.FormatDuration(ledger.Elapsed),
		TableCount: unknownable(ledger.TableCount),
		RowCount:   unknownable(ledger.RowCount),
	}

	for _, result := range ledger.Results {
		entry := StageEntry{
			Stage:   result.Stage.String(),
			Outcome: string(result.Outcome),
			Detail:  result.Detail,
		}
		if result.Outcome == importer.OutcomeSucceeded || result.Outcome == importer.OutcomeFailed {
			entry.Size = display.FormatSize(result.SizeBytes)
		}
		r.Stages = append(r.Stages, entry)

		switch result.Outcome {
		case importer.OutcomeSucceeded:
			r.Succeeded++
		case importer.OutcomeFailed:
			r.Failed++
		default:
			r.Skipped++
		}
	}

	return r
}

func unknownable(count int64) string {
	if count < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", count)
}

// Render writes the report in the selected format.
func (r *ImportReport) Render(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, r)
	case FormatYAML:
		return renderYAML(w, r)
	default:
		return r.renderText(w)
	}
}

func (r *ImportReport) renderText(w io.Writer) error {
	fmt.Fprintf(w, "Import run %s into %s\n\n", r.RunID, r.Database)
	for _, s := range r.Stages {
		if s.Detail != "" {
			fmt.Fprintf(w, "  %-10s %-15s %s\n", s.Stage, s.Outcome, s.Detail)
		} else {
			fmt.Fprintf(w, "  %-10s %-15s %s\n", s.Stage, s.Outcome, s.Size)
		}
	}
	if r.Halted {
		fmt.Fprintln(w, "\nRun halted by operator after stage failure.")
	}
	fmt.Fprintf(w, "\nSucceeded: %d  Failed: %d  Skipped: %d  Total: %s  Elapsed: %s\n",
		r.Succeeded, r.Failed, r.Skipped, r.TotalSize, r.Elapsed)
	fmt.Fprintf(w, "Verification: %s tables, %s rows\n", r.TableCount, r.RowCount)
	return nil
}

func renderJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}
