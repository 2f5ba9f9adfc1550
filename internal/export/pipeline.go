// Package export decomposes one logical database into typed, dependency
// ordered SQL artifacts: one file per stage, views and grants synthesized
// from catalog queries instead of dump modes.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/codec"
	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/errors"
	"mysql-backup-porter/internal/logging"
)

// Dumper is the slice of the shell client the pipeline needs.
type Dumper interface {
	Dump(ctx context.Context, database string, extraArgs []string, out io.Writer) database.Result
}

// Options holds the immutable per-run settings for one export.
type Options struct {
	OutputDir   string
	IncludeFull bool
	Compression codec.Compression
	Encryptor   *codec.Encryptor
}

// Pipeline exports databases from a running service.
type Pipeline struct {
	catalog *database.Catalog
	dumper  Dumper
	logger  *logging.Logger
}

// NewPipeline creates an export pipeline reading through catalog and dumper.
func NewPipeline(catalog *database.Catalog, dumper Dumper, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		catalog: catalog,
		dumper:  dumper,
		logger:  logger,
	}
}

// Per-stage dump argument sets. Each stage isolates its own object kind;
// everything else is suppressed.
var stageDumpArgs = map[artifact.Stage][]string{
	artifact.StageSchema:   {"--no-data", "--skip-triggers"},
	artifact.StageData:     {"--no-create-info", "--skip-triggers"},
	artifact.StageRoutines: {"--no-create-info", "--no-data", "--skip-triggers", "--routines"},
	artifact.StageTriggers: {"--no-create-info", "--no-data", "--triggers"},
	artifact.StageEvents:   {"--no-create-info", "--no-data", "--skip-triggers", "--events"},
	artifact.StageFull:     {"--routines", "--triggers", "--events", "--single-transaction"},
}

// ExportDatabase produces the artifact set for dbName under
// opts.OutputDir/dbName. Every stage runs even when an earlier stage
// failed; per-stage failures are recorded on the set, not returned.
func (p *Pipeline) ExportDatabase(ctx context.Context, dbName string, opts Options) (*artifact.Set, error) {
	exists, err := p.catalog.SchemaExists(ctx, dbName)
	if err != nil {
		return nil, errors.WrapError(err,
			fmt.Sprintf("failed to check whether database %s exists", dbName))
	}
	if !exists {
		available, listErr := p.catalog.ListSchemas(ctx)
		diag := "catalog listing unavailable"
		if listErr == nil {
			diag = strings.Join(available, ", ")
		}
		return nil, errors.NewRecoverable(errors.ErrorTypeExport,
			fmt.Sprintf("database %s not found; available: %s", dbName, diag), nil)
	}

	dir := filepath.Join(opts.OutputDir, dbName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewFatal(errors.ErrorTypeExport,
			fmt.Sprintf("failed to create artifact directory %s", dir), err)
	}

	set := artifact.NewSet(dbName, dir)
	for _, stage := range artifact.ExportStages(opts.IncludeFull) {
		start := time.Now()
		path, err := p.exportStage(ctx, dbName, dir, stage, opts)
		if err != nil {
			set.RecordError(stage, err)
			p.logger.LogStageOutcome("export", dbName, stage.String(), "failed", 0, time.Since(start))
			continue
		}
		if err := set.Record(stage, path); err != nil {
			set.RecordError(stage, err)
			p.logger.LogStageOutcome("export", dbName, stage.String(), "failed", 0, time.Since(start))
			continue
		}
		p.logger.LogStageOutcome("export", dbName, stage.String(), "succeeded",
			set.Files[stage].SizeBytes, time.Since(start))
	}

	return set, nil
}

func (p *Pipeline) exportStage(ctx context.Context, dbName, dir string, stage artifact.Stage, opts Options) (string, error) {
	switch stage {
	case artifact.StageViews:
		return p.writeStage(dir, stage, opts, func(w io.Writer) error {
			return synthesizeViews(ctx, p.catalog.DB(), dbName, w)
		})
	case artifact.StageGrants:
		return p.writeStage(dir, stage, opts, func(w io.Writer) error {
			return synthesizeGrants(ctx, p.catalog.DB(), dbName, w)
		})
	default:
		return p.writeStage(dir, stage, opts, func(w io.Writer) error {
			result := p.dumper.Dump(ctx, dbName, stageDumpArgs[stage], w)
			return result.Err()
		})
	}
}

// writeStage streams produce through the configured codec chain to the
// stage's file and returns the final on-disk path. A failed stage leaves no
// file behind.
func (p *Pipeline) writeStage(dir string, stage artifact.Stage, opts Options, produce func(io.Writer) error) (string, error) {
	path := filepath.Join(dir, stage.FileBase()+opts.Compression.Suffix())

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create stage file: %w", err)
	}

	w, err := opts.Compression.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}

	produceErr := produce(w)
	closeErr := w.Close()
	if err := f.Close(); produceErr == nil && closeErr == nil && err != nil {
		closeErr = err
	}
	if produceErr != nil || closeErr != nil {
		os.Remove(path)
		if produceErr != nil {
			return "", produceErr
		}
		return "", closeErr
	}

	if opts.Encryptor != nil {
		sealed, err := opts.Encryptor.SealFile(path)
		if err != nil {
			os.Remove(path)
			return "", err
		}
		path = sealed
	}

	return path, nil
}
