package core

import "errors"

// Input errors. These are the caller's fault and are never retried.
var (
	// ErrNoFile is returned when an upload carries no file.
	ErrNoFile = errors.New("no file provided")

	// ErrNotTabular is returned for uploads without a .csv extension.
	ErrNotTabular = errors.New("unsupported file type, expected .csv")

	// ErrFileTooLarge is returned when the upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrMissingHeaderRow is returned when the file has no first record.
	ErrMissingHeaderRow = errors.New("csv has no header row")

	// ErrMissingRequiredColumn is returned when the headers lack RequiredColumn.
	ErrMissingRequiredColumn = errors.New("missing required column")

	// ErrEmptyDataset is returned when no data rows remain after filtering.
	ErrEmptyDataset = errors.New("csv has no data rows")

	// ErrInvalidCSV wraps syntax errors from the CSV reader.
	ErrInvalidCSV = errors.New("invalid csv")

	// ErrInvalidToken is returned for tokens that are not well-formed.
	ErrInvalidToken = errors.New("invalid job token")
)

// State errors.
var (
	// ErrJobExpired is returned when the token is unknown to the store,
	// either because it never existed or because its TTL elapsed. The caller
	// should restart the import from Start.
	ErrJobExpired = errors.New("import job expired")

	// ErrConflict is returned when another writer advanced the job first.
	// The caller should re-fetch progress and retry.
	ErrConflict = errors.New("import job was modified concurrently")
)

// ErrTooManyChunks is returned when all chunk slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyChunks = errors.New("too many chunks in progress, please try again later")
