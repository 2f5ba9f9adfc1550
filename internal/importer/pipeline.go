// Package importer applies an artifact set to a target database in
// dependency order, with size-adaptive execution, operator-controlled
// continuation past stage failures, and a best-effort verification
// snapshot.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/codec"
	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/display"
	"mysql-backup-porter/internal/errors"
	"mysql-backup-porter/internal/logging"
)

// Outcome is the per-stage result recorded in the ledger.
type Outcome string

const (
	OutcomeSucceeded     Outcome = "succeeded"
	OutcomeFailed        Outcome = "failed"
	OutcomeSkippedAbsent Outcome = "skipped_absent"
	OutcomeSkippedEmpty  Outcome = "skipped_empty"
)

// StageResult is one ledger line.
type StageResult struct {
	Stage     artifact.Stage `json:"stage"`
	Outcome   Outcome        `json:"outcome"`
	SizeBytes int64          `json:"size_bytes"`
	Duration  time.Duration  `json:"duration"`
	Detail    string         `json:"detail,omitempty"`
}

// Ledger aggregates one import run's outcomes in processed order. Stages
// after a halt are left unrecorded.
type Ledger struct {
	Database   string        `json:"database"`
	Results    []StageResult `json:"results"`
	Halted     bool          `json:"halted"`
	TotalBytes int64         `json:"total_bytes"`
	Elapsed    time.Duration `json:"elapsed"`

	// Verification snapshot; -1 means the count could not be determined.
	TableCount int64 `json:"table_count"`
	RowCount   int64 `json:"row_count"`
}

// Counts tallies results per outcome.
func (l *Ledger) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, r := range l.Results {
		counts[r.Outcome]++
	}
	return counts
}

// DecisionFunc decides whether the run continues after a stage failure.
// Interactive runs back this with a prompt; automated runs supply a fixed
// policy.
type DecisionFunc func(stage artifact.Stage, cause error) bool

// AlwaysContinue proceeds past every stage failure.
func AlwaysContinue(artifact.Stage, error) bool { return true }

// AlwaysHalt stops at the first stage failure.
func AlwaysHalt(artifact.Stage, error) bool { return false }

// Executor is the slice of the shell client the pipeline needs.
type Executor interface {
	Execute(ctx context.Context, database string, statements io.Reader) database.Result
}

// Options holds the immutable per-run settings for one import.
type Options struct {
	Dir            string
	Encryptor      *codec.Encryptor
	Decide         DecisionFunc
	Relay          display.Relay
	StatusInterval time.Duration
}

// Pipeline applies artifact sets to a target endpoint.
type Pipeline struct {
	catalog *database.Catalog
	client  Executor
	logger  *logging.Logger
}

// NewPipeline creates an import pipeline writing through catalog and client.
func NewPipeline(catalog *database.Catalog, client Executor, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		catalog: catalog,
		client:  client,
		logger:  logger,
	}
}

// ImportArtifactSet applies the artifact set in opts.Dir to dbName,
// processing stages strictly in canonical order. Absent files record
// SkippedAbsent, files at or under the empty threshold record SkippedEmpty
// without a client invocation, and a declined continuation halts the ledger
// with later stages unrecorded.
func (p *Pipeline) ImportArtifactSet(ctx context.Context, dbName string, opts Options) (*Ledger, error) {
	if _, err := os.Stat(opts.Dir); err != nil {
		return nil, errors.NewFatal(errors.ErrorTypeImport,
			fmt.Sprintf("artifact directory %s is not accessible", opts.Dir), err)
	}

	if err := p.catalog.EnsureDatabase(ctx, dbName); err != nil {
		return nil, errors.NewFatal(errors.ErrorTypeImport,
			fmt.Sprintf("failed to ensure target database %s", dbName), err)
	}

	decide := opts.Decide
	if decide == nil {
		decide = AlwaysContinue
	}

	ledger := &Ledger{Database: dbName, TableCount: -1, RowCount: -1}
	start := time.Now()

	for _, stage := range artifact.ImportOrder() {
		file, ok := artifact.Locate(opts.Dir, stage)
		if !ok {
			p.record(ledger, StageResult{Stage: stage, Outcome: OutcomeSkippedAbsent}, dbName)
			continue
		}
		if file.Empty() {
			p.record(ledger, StageResult{Stage: stage, Outcome: OutcomeSkippedEmpty, SizeBytes: file.SizeBytes}, dbName)
			continue
		}

		stageStart := time.Now()
		result := p.applyStage(ctx, dbName, file, opts)
		elapsed := time.Since(stageStart)

		if result.Ok() {
			ledger.TotalBytes += file.SizeBytes
			p.record(ledger, StageResult{
				Stage:     stage,
				Outcome:   OutcomeSucceeded,
				SizeBytes: file.SizeBytes,
				Duration:  elapsed,
			}, dbName)
			continue
		}

		cause := result.Err()
		p.record(ledger, StageResult{
			Stage:     stage,
			Outcome:   OutcomeFailed,
			SizeBytes: file.SizeBytes,
			Duration:  elapsed,
			Detail:    result.StderrExcerpt,
		}, dbName)

		if !decide(stage, cause) {
			ledger.Halted = true
			break
		}
	}

	ledger.Elapsed = time.Since(start)
	p.verify(ctx, dbName, ledger)

	return ledger, nil
}

func (p *Pipeline) record(ledger *Ledger, result StageResult, dbName string) {
	ledger.Results = append(ledger.Results, result)
	p.logger.LogStageOutcome("import", dbName, result.Stage.String(), string(result.Outcome),
		result.SizeBytes, result.Duration)
}

// applyStage decodes the stage file and runs it through the size-selected
// strategy. Decode failures surface as a failed result so they feed the
// same continuation decision as client failures.
func (p *Pipeline) applyStage(ctx context.Context, dbName string, file artifact.File, opts Options) database.Result {
	rc, err := codec.OpenArtifact(file.Path, opts.Encryptor)
	if err != nil {
		return database.Result{ExitCode: -1, RunError: err, StderrExcerpt: err.Error()}
	}
	defer rc.Close()

	if file.SizeBytes > OptimizedThreshold {
		return p.runOptimized(ctx, dbName, file, rc, opts)
	}
	return p.client.Execute(ctx, dbName, rc)
}
