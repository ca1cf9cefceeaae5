package core

import "strings"

// Default chunk sizes recommended to callers.
const (
	// DefaultBatchSize is recommended when rows are cheap to process.
	DefaultBatchSize = 25

	// SlowBatchSize is recommended when rows trigger network work such as
	// image downloads or geocoding.
	SlowBatchSize = 10
)

// SanitizeOptions coerces unknown enum values to safe defaults.
// Invalid input is never an error: an unknown import mode becomes skip and
// an unknown match key becomes title.
func SanitizeOptions(opts ImportOptions) ImportOptions {
	opts.ImportMode = ImportMode(strings.ToLower(strings.TrimSpace(string(opts.ImportMode))))
	switch opts.ImportMode {
	case ModeSkip, ModeUpdate, ModeCreate:
	default:
		opts.ImportMode = ModeSkip
	}

	opts.MatchBy = MatchBy(strings.ToLower(strings.TrimSpace(string(opts.MatchBy))))
	switch opts.MatchBy {
	case MatchTitle, MatchExternalID, MatchBoth:
	default:
		opts.MatchBy = MatchTitle
	}

	return opts
}

// Expensive reports whether per-row work is dominated by network or IO.
func (o ImportOptions) Expensive() bool {
	return o.DownloadImages || o.Geocode
}

// BatchPolicy chooses how many rows one chunk call should process.
// Zero fields fall back to DefaultBatchSize and SlowBatchSize.
type BatchPolicy struct {
	Default int
	Slow    int
}

// Recommend returns the advisory chunk size for opts.
func (p BatchPolicy) Recommend(opts ImportOptions) int {
	if opts.Expensive() {
		if p.Slow > 0 {
			return p.Slow
		}
		return SlowBatchSize
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultBatchSize
}

// RecommendedBatchSize returns the default policy's chunk size for opts.
func RecommendedBatchSize(opts ImportOptions) int {
	return BatchPolicy{}.Recommend(opts)
}
