package core

import (
	"context"
	"io"
	"math"
	"time"
)

// ImportMode controls how rows that match an existing record are handled.
type ImportMode string

const (
	ModeSkip   ImportMode = "skip"
	ModeUpdate ImportMode = "update"
	ModeCreate ImportMode = "create"
)

// MatchBy selects the key used to detect existing records.
type MatchBy string

const (
	MatchTitle      MatchBy = "title"
	MatchExternalID MatchBy = "external_id"
	MatchBoth       MatchBy = "both"
)

// ImportOptions is the configuration captured when a job is created.
// It is never mutated afterwards.
type ImportOptions struct {
	CreateTerms    bool       `json:"create_terms"`
	DryRun         bool       `json:"dry_run"`
	ImportMode     ImportMode `json:"import_mode"`
	MatchBy        MatchBy    `json:"match_by"`
	DownloadImages bool       `json:"download_images"`
	Geocode        bool       `json:"geocode"`
}

// RowAction is the outcome of processing a single row.
type RowAction string

const (
	ActionImported RowAction = "imported"
	ActionUpdated  RowAction = "updated"
	ActionSkipped  RowAction = "skipped"
)

// Row is one data row keyed by normalized header name.
type Row map[string]string

// Get returns the trimmed value for a column, or "" if absent.
func (r Row) Get(col string) string {
	return trimCell(r[col])
}

// RowProcessor maps one row onto a domain record.
// A returned error is recorded against the row and counted as skipped;
// it never aborts the chunk.
type RowProcessor interface {
	ProcessRow(ctx context.Context, row Row, opts ImportOptions) (RowAction, error)
}

// RowProcessorFunc adapts a function to the RowProcessor interface.
type RowProcessorFunc func(ctx context.Context, row Row, opts ImportOptions) (RowAction, error)

// ProcessRow calls f(ctx, row, opts).
func (f RowProcessorFunc) ProcessRow(ctx context.Context, row Row, opts ImportOptions) (RowAction, error) {
	return f(ctx, row, opts)
}

// Results holds the cumulative outcome of a job.
type Results struct {
	Imported        int      `json:"imported"`
	Updated         int      `json:"updated"`
	Skipped         int      `json:"skipped"`
	Errors          []string `json:"errors"`
	ErrorsTruncated bool     `json:"errors_truncated,omitempty"`
}

// BatchResult holds the outcome of a single chunk.
type BatchResult struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// ImportJob is the persisted state of one import.
type ImportJob struct {
	Headers   []string      `json:"headers"`
	Rows      [][]string    `json:"rows"`
	Options   ImportOptions `json:"options"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Results   Results       `json:"results"`
	FileName  string        `json:"file_name,omitempty"`
	CreatedAt time.Time     `json:"created_at"`

	// Version is incremented by the store on every successful write.
	Version int64 `json:"version"`
}

// Complete reports whether every row has been consumed.
func (j ImportJob) Complete() bool {
	return j.Processed >= j.Total
}

// Percent returns the progress as a rounded percentage (0-100).
func (j ImportJob) Percent() int {
	if j.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(j.Processed) / float64(j.Total) * 100))
}

// clone returns a deep copy so a chunk can mutate it without touching the
// caller's value. Rows are shared since they are never modified.
func (j ImportJob) clone() ImportJob {
	c := j
	c.Headers = append([]string(nil), j.Headers...)
	c.Results.Errors = append(make([]string, 0, len(j.Results.Errors)), j.Results.Errors...)
	return c
}

// StartRequest describes an upload to turn into a job.
type StartRequest struct {
	FileName string
	File     io.Reader
	Options  ImportOptions
}

// StartResult is returned by Service.Start.
type StartResult struct {
	JobToken  string `json:"job_token"`
	Total     int    `json:"total"`
	BatchSize int    `json:"batch_size"`
	Message   string `json:"message"`
}

// ProgressReport is returned by Service.Advance and Service.Status.
type ProgressReport struct {
	Processed  int         `json:"processed"`
	Total      int         `json:"total"`
	Percentage int         `json:"percentage"`
	Results    Results     `json:"results"`
	Complete   bool        `json:"complete"`
	DryRun     bool        `json:"dry_run"`
	Batch      BatchResult `json:"batch"`
	Message    string      `json:"message,omitempty"`
	Version    int64       `json:"version"`
}
