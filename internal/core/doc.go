// Package core provides the business logic for chunked CSV imports.
//
// This package contains the import job state machine independent of any
// transport or storage. It can be driven by web handlers, CLI tools, or
// tests without modification.
//
// # Architecture
//
// An import is split into three caller-visible operations:
//
//  1. [Service.Start] parses the uploaded CSV once with [ParseCSV], stores
//     the parsed rows plus the sanitized [ImportOptions] as an [ImportJob]
//     in a [JobStore], and returns an opaque job token.
//  2. [Service.Advance] loads the job, runs [ProcessChunk] over the next
//     window of rows, and writes the job back. The caller repeats this
//     until the returned [ProgressReport] is complete.
//  3. [Service.Discard] deletes the job. Jobs that are never discarded
//     expire through the store TTL.
//
// No single request processes more than one chunk, so the chunk size is the
// only lever needed to stay under a proxy or server request timeout.
// [RecommendedBatchSize] suggests a chunk size from the import options.
//
// # Row Processing
//
// Mapping a row onto a domain record is delegated to a [RowProcessor].
// Row-level failures never stop a job: they are counted as skipped and
// recorded as "Row N: message" strings, capped at [MaxStoredErrors]. The
// earliest errors are kept and [Results.ErrorsTruncated] is set once the cap
// is exceeded. Counters stay exact even when messages are dropped.
//
// # Concurrency
//
// Each job carries a version that the store increments on every write.
// [Service.Advance] writes through [JobStore.CompareAndSwap], so two chunk
// calls racing on the same token cannot both commit: the loser receives
// [ErrConflict] and should re-fetch with [Service.Status] before retrying.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE006: File errors (size, type, header, empty)
//   - VAL001-VAL003: Validation errors (missing column, invalid token)
//   - JOB001-JOB003: Job lifecycle errors (expired, conflict, busy)
//   - UPL001-UPL002: Request errors (cancelled, timeout)
package core
