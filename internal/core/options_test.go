package core

import "testing"

func TestSanitizeOptions(t *testing.T) {
	tests := []struct {
		name      string
		mode      ImportMode
		matchBy   MatchBy
		wantMode  ImportMode
		wantMatch MatchBy
	}{
		{"empty values", "", "", ModeSkip, MatchTitle},
		{"valid values kept", ModeUpdate, MatchExternalID, ModeUpdate, MatchExternalID},
		{"case and whitespace folded", " Create ", "BOTH", ModeCreate, MatchBoth},
		{"unknown mode becomes skip", "merge", MatchBoth, ModeSkip, MatchBoth},
		{"unknown match key becomes title", ModeUpdate, "sku", ModeUpdate, MatchTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ImportOptions{ImportMode: tt.mode, MatchBy: tt.matchBy, DryRun: true, CreateTerms: true}
			got := SanitizeOptions(in)

			if got.ImportMode != tt.wantMode {
				t.Errorf("ImportMode = %q, want %q", got.ImportMode, tt.wantMode)
			}
			if got.MatchBy != tt.wantMatch {
				t.Errorf("MatchBy = %q, want %q", got.MatchBy, tt.wantMatch)
			}
			if !got.DryRun || !got.CreateTerms {
				t.Error("boolean options should pass through unchanged")
			}
		})
	}
}

func TestBatchPolicyRecommend(t *testing.T) {
	tests := []struct {
		name   string
		policy BatchPolicy
		opts   ImportOptions
		want   int
	}{
		{"default plain", BatchPolicy{}, ImportOptions{}, DefaultBatchSize},
		{"default with images", BatchPolicy{}, ImportOptions{DownloadImages: true}, SlowBatchSize},
		{"default with geocoding", BatchPolicy{}, ImportOptions{Geocode: true}, SlowBatchSize},
		{"dry run is not slow", BatchPolicy{}, ImportOptions{DryRun: true}, DefaultBatchSize},
		{"configured plain", BatchPolicy{Default: 50, Slow: 5}, ImportOptions{}, 50},
		{"configured slow", BatchPolicy{Default: 50, Slow: 5}, ImportOptions{Geocode: true, DownloadImages: true}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Recommend(tt.opts); got != tt.want {
				t.Errorf("Recommend() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecommendedBatchSize(t *testing.T) {
	if got := RecommendedBatchSize(ImportOptions{}); got != 25 {
		t.Errorf("RecommendedBatchSize(plain) = %d, want 25", got)
	}
	if got := RecommendedBatchSize(ImportOptions{DownloadImages: true}); got != 10 {
		t.Errorf("RecommendedBatchSize(images) = %d, want 10", got)
	}
}
