package core

import (
	"context"
	"fmt"
)

// MaxStoredErrors caps the number of row error messages kept on a job.
// Counters keep incrementing past the cap; only messages are dropped.
const MaxStoredErrors = 100

// headerLineOffset maps a zero-based row index to its 1-based line number
// in the original file, accounting for the header line.
const headerLineOffset = 2

// ProcessChunk advances job by at most chunkSize rows and returns the
// mutated copy together with this chunk's own counts and errors.
//
// Rows missing RequiredColumn are skipped without calling rp. Errors from
// rp are recorded as "Row N: message" and counted as skipped. The stored
// error list is capped at MaxStoredErrors, keeping the earliest entries;
// once the cap is exceeded Results.ErrorsTruncated stays true.
//
// ProcessChunk never reads or writes a JobStore. chunkSize is expected to be
// clamped by the caller; a non-positive value processes nothing.
func ProcessChunk(ctx context.Context, job ImportJob, chunkSize int, rp RowProcessor) (ImportJob, BatchResult) {
	job = job.clone()
	batch := BatchResult{Errors: []string{}}

	limit := min(job.Total, len(job.Rows))
	start := min(job.Processed, limit)
	end := start
	if chunkSize > 0 {
		// Compare against the remaining rows so start+chunkSize cannot overflow.
		end = limit
		if chunkSize < limit-start {
			end = start + chunkSize
		}
	}

	rowNum := start + headerLineOffset
	for _, values := range job.Rows[start:end] {
		row := zipRow(job.Headers, values)
		processRow(ctx, row, rowNum, job.Options, rp, &batch)
		rowNum++
	}

	job.Processed = max(job.Processed, end)
	job.Results.Imported += batch.Imported
	job.Results.Updated += batch.Updated
	job.Results.Skipped += batch.Skipped
	job.Results = mergeErrors(job.Results, batch.Errors)

	return job, batch
}

// processRow runs one row through rp and records the outcome on batch.
func processRow(ctx context.Context, row Row, rowNum int, opts ImportOptions, rp RowProcessor, batch *BatchResult) {
	if row.Get(RequiredColumn) == "" {
		batch.Skipped++
		batch.Errors = append(batch.Errors,
			fmt.Sprintf("Row %d: Missing required field (%s)", rowNum, RequiredColumn))
		return
	}

	action, err := rp.ProcessRow(ctx, row, opts)
	if err != nil {
		batch.Skipped++
		batch.Errors = append(batch.Errors, fmt.Sprintf("Row %d: %s", rowNum, err.Error()))
		return
	}

	switch action {
	case ActionSkipped:
		batch.Skipped++
	case ActionUpdated:
		batch.Updated++
	default:
		batch.Imported++
	}
}

// mergeErrors appends chunk errors and applies the storage cap.
func mergeErrors(results Results, chunkErrors []string) Results {
	results.Errors = append(results.Errors, chunkErrors...)
	if len(results.Errors) > MaxStoredErrors {
		results.Errors = results.Errors[:MaxStoredErrors:MaxStoredErrors]
		results.ErrorsTruncated = true
	}
	return results
}
