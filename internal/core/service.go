package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/google/uuid"
)

// ServiceConfig holds the tunables of a Service.
// Zero values fall back to package defaults.
type ServiceConfig struct {
	// JobTTL is how long a job survives without being written.
	JobTTL time.Duration

	// Batch chooses the chunk size recommended by Start.
	Batch BatchPolicy

	// Limiter bounds concurrent chunk processing. Nil disables limiting.
	Limiter *Limiter

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service coordinates the lifecycle of chunked import jobs:
// Start creates a job, Advance processes one chunk, Discard deletes it.
type Service struct {
	store   JobStore
	rows    RowProcessor
	ttl     time.Duration
	batch   BatchPolicy
	limiter *Limiter
	now     func() time.Time
}

// NewService creates a Service that keeps jobs in store and hands each row
// to rows.
func NewService(store JobStore, rows RowProcessor, cfg ServiceConfig) *Service {
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = DefaultJobTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:   store,
		rows:    rows,
		ttl:     cfg.JobTTL,
		batch:   cfg.Batch,
		limiter: cfg.Limiter,
		now:     cfg.Now,
	}
}

// Start parses an uploaded file and stores it as a new job.
// Parser errors are returned wrapped so errors.Is matches the sentinels.
// Nothing is written to the store unless parsing succeeds.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if req.File == nil {
		return StartResult{}, ErrNoFile
	}
	if !IsTabularFile(req.FileName) {
		return StartResult{}, fmt.Errorf("%w: %q", ErrNotTabular, req.FileName)
	}

	data, err := ParseCSV(req.File)
	if err != nil {
		return StartResult{}, fmt.Errorf("parse %s: %w", req.FileName, err)
	}

	opts := SanitizeOptions(req.Options)
	job := ImportJob{
		Headers:   data.Headers,
		Rows:      data.Rows,
		Options:   opts,
		Total:     len(data.Rows),
		Results:   Results{Errors: []string{}},
		FileName:  req.FileName,
		CreatedAt: s.now(),
	}

	token := uuid.NewString()
	if err := s.store.Put(ctx, token, job, s.ttl); err != nil {
		return StartResult{}, fmt.Errorf("store job: %w", err)
	}

	batchSize := s.batch.Recommend(opts)

	logging.WithFields(ctx,
		"job_token", token,
		"file", req.FileName,
	).Info("import job created",
		"total", job.Total,
		"columns", len(job.Headers),
		"batch_size", batchSize,
		"import_mode", opts.ImportMode,
		"match_by", opts.MatchBy,
		"dry_run", opts.DryRun,
		"ip", GetIPAddressFromContext(ctx),
		"user_agent", GetUserAgentFromContext(ctx),
	)

	return StartResult{
		JobToken:  token,
		Total:     job.Total,
		BatchSize: batchSize,
		Message:   fmt.Sprintf("Found %d rows to process.", job.Total),
	}, nil
}

// AdvanceRequest identifies the job to advance and how far.
type AdvanceRequest struct {
	Token string

	// ChunkSize is the number of rows to process. It is used as given;
	// clamping belongs to the caller-facing boundary.
	ChunkSize int

	// ExpectedVersion, when set, must equal the stored job version or the
	// call fails with ErrConflict before any row is processed.
	ExpectedVersion *int64
}

// Advance processes the next chunk of a job and persists the result.
//
// The write is a compare-and-swap on the job version, so a concurrent
// Advance on the same token makes one of the two calls fail with
// ErrConflict instead of silently overwriting progress.
func (s *Service) Advance(ctx context.Context, req AdvanceRequest) (ProgressReport, error) {
	if err := ValidateToken(req.Token); err != nil {
		return ProgressReport{}, err
	}

	job, err := s.load(ctx, req.Token)
	if err != nil {
		return ProgressReport{}, err
	}

	if req.ExpectedVersion != nil && *req.ExpectedVersion != job.Version {
		return ProgressReport{}, fmt.Errorf("%w: expected version %d, found %d",
			ErrConflict, *req.ExpectedVersion, job.Version)
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return ProgressReport{}, err
		}
		defer s.limiter.Release()
	}

	logger := logging.WithFields(ctx, "job_token", req.Token)
	start := s.now()

	next, batch := ProcessChunk(ctx, job, req.ChunkSize, s.rows)

	version, err := s.store.CompareAndSwap(ctx, req.Token, job.Version, next, s.ttl)
	switch {
	case errors.Is(err, ErrNotFound):
		return ProgressReport{}, ErrJobExpired
	case errors.Is(err, ErrVersionMismatch):
		logger.Warn("import chunk discarded, job modified concurrently",
			"version", job.Version,
			"processed", job.Processed,
		)
		return ProgressReport{}, fmt.Errorf("%w: version %d is stale", ErrConflict, job.Version)
	case err != nil:
		return ProgressReport{}, fmt.Errorf("store job: %w", err)
	}
	next.Version = version

	report := buildReport(next, batch)

	logger.Info("import chunk processed",
		"from", job.Processed,
		"to", next.Processed,
		"total", next.Total,
		"imported", batch.Imported,
		"updated", batch.Updated,
		"skipped", batch.Skipped,
		"errors", len(batch.Errors),
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	if report.Complete && !job.Complete() {
		logger.Info("import job complete",
			"file", next.FileName,
			"imported", next.Results.Imported,
			"updated", next.Results.Updated,
			"skipped", next.Results.Skipped,
			"errors_truncated", next.Results.ErrorsTruncated,
			"dry_run", next.Options.DryRun,
			"elapsed_ms", s.now().Sub(next.CreatedAt).Milliseconds(),
		)
	}

	return report, nil
}

// Status returns the current progress of a job without advancing it.
// Clients use it to re-sync after ErrConflict or a lost response.
func (s *Service) Status(ctx context.Context, token string) (ProgressReport, error) {
	if err := ValidateToken(token); err != nil {
		return ProgressReport{}, err
	}

	job, err := s.load(ctx, token)
	if err != nil {
		return ProgressReport{}, err
	}

	return buildReport(job, BatchResult{Errors: []string{}}), nil
}

// Discard deletes a job. Unknown or empty tokens are not an error.
func (s *Service) Discard(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	if err := s.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	logging.WithFields(ctx, "job_token", token).Debug("import job discarded")
	return nil
}

// LimiterStatus reports chunk concurrency for health checks.
func (s *Service) LimiterStatus() LimiterStatus {
	if s.limiter == nil {
		return LimiterStatus{}
	}
	return s.limiter.Status()
}

// WaitForChunks blocks until in-flight chunks complete or ctx is done.
func (s *Service) WaitForChunks(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) load(ctx context.Context, token string) (ImportJob, error) {
	job, err := s.store.Get(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return ImportJob{}, ErrJobExpired
	}
	if err != nil {
		return ImportJob{}, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}

// buildReport assembles the caller-visible progress for job.
func buildReport(job ImportJob, batch BatchResult) ProgressReport {
	results := job.Results
	if results.Errors == nil {
		results.Errors = []string{}
	}

	report := ProgressReport{
		Processed:  job.Processed,
		Total:      job.Total,
		Percentage: job.Percent(),
		Results:    results,
		Complete:   job.Complete(),
		DryRun:     job.Options.DryRun,
		Batch:      batch,
		Version:    job.Version,
	}
	if report.Complete {
		report.Message = CompletionMessage(job.Results, job.Options.DryRun)
	}
	return report
}

// CompletionMessage summarizes a finished job. Dry runs use hypothetical
// wording and state that nothing was changed.
func CompletionMessage(r Results, dryRun bool) string {
	if dryRun {
		return fmt.Sprintf(
			"Preview complete! %d would be imported, %d would be updated, %d would be skipped. No changes were made.",
			r.Imported, r.Updated, r.Skipped)
	}
	return fmt.Sprintf("Import complete! %d imported, %d updated, %d skipped.",
		r.Imported, r.Updated, r.Skipped)
}

// IsTabularFile reports whether name has a .csv extension.
func IsTabularFile(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".csv")
}

// ValidateToken checks that token is a well-formed job token.
func ValidateToken(token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	return nil
}
