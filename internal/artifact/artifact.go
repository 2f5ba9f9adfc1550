package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Stage identifies one category of SQL artifact produced for a database.
type Stage int

const (
	// StageSchema contains structural CREATE statements only.
	StageSchema Stage = iota
	// StageData contains row content only.
	StageData
	// StageViews contains reconstructed view definitions.
	StageViews
	// StageRoutines contains stored procedures and functions.
	StageRoutines
	// StageTriggers contains trigger definitions.
	StageTriggers
	// StageEvents contains scheduled event definitions.
	StageEvents
	// StageGrants contains synthesized GRANT statements.
	StageGrants
	// StageFull is an optional combined dump, never consumed by import
	// in preference to the individual stages.
	StageFull
)

// EmptyThreshold is the file size in bytes at or below which a stage file
// is considered to contain only boilerplate and no importable content.
const EmptyThreshold = 200

var stageNames = map[Stage]string{
	StageSchema:   "schema",
	StageData:     "data",
	StageViews:    "views",
	StageRoutines: "routines",
	StageTriggers: "triggers",
	StageEvents:   "events",
	StageGrants:   "grants",
	StageFull:     "full",
}

// String returns the lowercase stage name used in file names and reports.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// FileBase returns the canonical plain file name for the stage.
func (s Stage) FileBase() string {
	return s.String() + ".sql"
}

// ParseStage converts a stage name back into a Stage value.
func ParseStage(name string) (Stage, error) {
	for stage, n := range stageNames {
		if n == name {
			return stage, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// ImportOrder returns the canonical dependency-respecting order in which
// import must process stages. StageFull is deliberately excluded; it is
// applied independently when requested and never as part of a staged import.
func ImportOrder() []Stage {
	return []Stage{
		StageSchema,
		StageData,
		StageViews,
		StageRoutines,
		StageTriggers,
		StageEvents,
		StageGrants,
	}
}

// ExportStages returns the stages an export run produces. The full dump is
// appended only when requested.
func ExportStages(includeFull bool) []Stage {
	stages := ImportOrder()
	if includeFull {
		stages = append(stages, StageFull)
	}
	return stages
}

// File is one stage's materialized output for one database.
type File struct {
	Stage     Stage  `json:"stage"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Empty reports whether the file holds only boilerplate output.
func (f File) Empty() bool {
	return f.SizeBytes <= EmptyThreshold
}

// Set is the collection of stage files produced for one database by one
// export run. Files are keyed by stage; iteration must go through
// ImportOrder or ExportStages to preserve the canonical ordering.
type Set struct {
	Database    string          `json:"database"`
	Dir         string          `json:"dir"`
	Files       map[Stage]File  `json:"files"`
	StageErrors map[Stage]error `json:"-"`
}

// NewSet creates an empty artifact set rooted at dir for the named database.
func NewSet(database, dir string) *Set {
	return &Set{
		Database:    database,
		Dir:         dir,
		Files:       make(map[Stage]File),
		StageErrors: make(map[Stage]error),
	}
}

// Record registers a stage file with its on-disk size.
func (s *Set) Record(stage Stage, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat stage file %q: %w", path, err)
	}
	s.Files[stage] = File{Stage: stage, Path: path, SizeBytes: info.Size()}
	return nil
}

// RecordError notes a per-stage extraction failure without aborting the set.
func (s *Set) RecordError(stage Stage, err error) {
	s.StageErrors[stage] = err
}

// Failed returns the stages whose extraction failed, in canonical order.
func (s *Set) Failed() []Stage {
	var failed []Stage
	for _, stage := range ExportStages(true) {
		if _, ok := s.StageErrors[stage]; ok {
			failed = append(failed, stage)
		}
	}
	return failed
}

// TotalBytes sums the sizes of all recorded stage files.
func (s *Set) TotalBytes() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.SizeBytes
	}
	return total
}

// Stage file suffixes understood by Locate, in lookup order. A stage file
// may be compressed, encrypted, or both (compression applied first).
var locateSuffixes = []string{
	"",
	".gz",
	".zst",
	".lz4",
	".enc",
	".gz.enc",
	".zst.enc",
	".lz4.enc",
}

// Locate finds the on-disk file for a stage inside dir, trying the plain
// name first and then every known codec suffix. The second return value is
// false when no candidate exists.
func Locate(dir string, stage Stage) (File, bool) {
	for _, suffix := range locateSuffixes {
		path := filepath.Join(dir, stage.FileBase()+suffix)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		return File{Stage: stage, Path: path, SizeBytes: info.Size()}, true
	}
	return File{}, false
}

// Encoded reports whether the file name carries a codec or encryption suffix.
func (f File) Encoded() bool {
	return !strings.HasSuffix(f.Path, ".sql")
}
