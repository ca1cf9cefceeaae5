package core_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/jobstore"
	"github.com/google/uuid"
)

// recorder imports every row and remembers the options it was called with.
type recorder struct {
	mu    sync.Mutex
	rows  []string
	opts  []core.ImportOptions
	calls int
}

func (r *recorder) ProcessRow(ctx context.Context, row core.Row, opts core.ImportOptions) (core.RowAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.rows = append(r.rows, row.Get("title"))
	r.opts = append(r.opts, opts)
	return core.ActionImported, nil
}

func newService(t *testing.T, rp core.RowProcessor, cfg core.ServiceConfig) (*core.Service, *jobstore.MemoryStore) {
	t.Helper()
	store := jobstore.NewMemoryStore()
	return core.NewService(store, rp, cfg), store
}

func start(t *testing.T, svc *core.Service, csv string, opts core.ImportOptions) core.StartResult {
	t.Helper()
	res, err := svc.Start(context.Background(), core.StartRequest{
		FileName: "listings.csv",
		File:     strings.NewReader(csv),
		Options:  opts,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return res
}

func advance(svc *core.Service, token string, size int) (core.ProgressReport, error) {
	return svc.Advance(context.Background(), core.AdvanceRequest{Token: token, ChunkSize: size})
}

func TestServiceHappyPath(t *testing.T) {
	rp := &recorder{}
	svc, store := newService(t, rp, core.ServiceConfig{})

	res := start(t, svc, "title,city\nA,Oslo\nB,Bergen\nC,Tromsø\n", core.ImportOptions{ImportMode: "bogus"})

	if _, err := uuid.Parse(res.JobToken); err != nil {
		t.Errorf("JobToken %q is not a UUID: %v", res.JobToken, err)
	}
	if res.Total != 3 {
		t.Errorf("Total = %d, want 3", res.Total)
	}
	if res.BatchSize != core.DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", res.BatchSize, core.DefaultBatchSize)
	}
	if res.Message != "Found 3 rows to process." {
		t.Errorf("Message = %q", res.Message)
	}

	first, err := advance(svc, res.JobToken, 2)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if first.Processed != 2 || first.Complete || first.Percentage != 67 {
		t.Errorf("first chunk = %+v", first)
	}
	if first.Message != "" {
		t.Errorf("incomplete report carries message %q", first.Message)
	}
	if first.Version != 1 {
		t.Errorf("Version = %d, want 1", first.Version)
	}

	second, err := advance(svc, res.JobToken, 2)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if !second.Complete || second.Processed != 3 || second.Percentage != 100 {
		t.Errorf("second chunk = %+v", second)
	}
	if second.Batch.Imported != 1 || second.Results.Imported != 3 {
		t.Errorf("batch = %+v, results = %+v", second.Batch, second.Results)
	}
	if second.Message != "Import complete! 3 imported, 0 updated, 0 skipped." {
		t.Errorf("Message = %q", second.Message)
	}

	if got := strings.Join(rp.rows, ","); got != "A,B,C" {
		t.Errorf("rows processed = %s, want A,B,C", got)
	}
	if rp.opts[0].ImportMode != core.ModeSkip || rp.opts[0].MatchBy != core.MatchTitle {
		t.Errorf("processor got unsanitized options %+v", rp.opts[0])
	}

	// Advancing a finished job is harmless.
	again, err := advance(svc, res.JobToken, 2)
	if err != nil {
		t.Fatalf("Advance() after completion error: %v", err)
	}
	if again.Processed != 3 || again.Batch.Imported != 0 || rp.calls != 3 {
		t.Errorf("advance after completion reprocessed rows: %+v", again)
	}

	if err := svc.Discard(context.Background(), res.JobToken); err != nil {
		t.Fatalf("Discard() error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d jobs after discard", store.Len())
	}
}

func TestServiceStartErrors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  string
		nilFile  bool
		want     error
	}{
		{"no file", "a.csv", "", true, core.ErrNoFile},
		{"wrong extension", "a.xlsx", "title\nA\n", false, core.ErrNotTabular},
		{"empty", "a.csv", "", false, core.ErrMissingHeaderRow},
		{"no title column", "a.csv", "name\nA\n", false, core.ErrMissingRequiredColumn},
		{"no rows", "A.CSV", "title\n", false, core.ErrEmptyDataset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t, &recorder{}, core.ServiceConfig{})

			req := core.StartRequest{FileName: tt.fileName}
			if !tt.nilFile {
				req.File = strings.NewReader(tt.content)
			}

			_, err := svc.Start(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Start() error = %v, want %v", err, tt.want)
			}
			if store.Len() != 0 {
				t.Error("failed start must not create a job")
			}
		})
	}
}

func TestServiceSlowBatchSize(t *testing.T) {
	svc, _ := newService(t, &recorder{}, core.ServiceConfig{
		Batch: core.BatchPolicy{Default: 40, Slow: 4},
	})

	plain := start(t, svc, "title\nA\n", core.ImportOptions{})
	slow := start(t, svc, "title\nA\n", core.ImportOptions{Geocode: true})

	if plain.BatchSize != 40 || slow.BatchSize != 4 {
		t.Errorf("batch sizes = %d, %d; want 40, 4", plain.BatchSize, slow.BatchSize)
	}
}

func TestServiceMissingTitleRows(t *testing.T) {
	rp := &recorder{}
	svc, _ := newService(t, rp, core.ServiceConfig{})

	res := start(t, svc, "title,city\nA,Oslo\n,Bergen\nC,Bodø\n", core.ImportOptions{})
	report, err := advance(svc, res.JobToken, 10)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}

	if report.Results.Imported != 2 || report.Results.Skipped != 1 {
		t.Errorf("results = %+v", report.Results)
	}
	want := []string{"Row 3: Missing required field (title)"}
	if len(report.Results.Errors) != 1 || report.Results.Errors[0] != want[0] {
		t.Errorf("Errors = %q, want %q", report.Results.Errors, want)
	}
	if rp.calls != 2 {
		t.Errorf("processor called %d times, want 2", rp.calls)
	}
}

func TestServiceDryRunMessage(t *testing.T) {
	rp := &recorder{}
	svc, _ := newService(t, rp, core.ServiceConfig{})

	res := start(t, svc, "title\nA\n\nB\n", core.ImportOptions{DryRun: true})
	report, err := advance(svc, res.JobToken, 25)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}

	if !report.DryRun {
		t.Error("report should be flagged as dry run")
	}
	if len(rp.opts) != 2 {
		t.Fatalf("processor called %d times, want 2", len(rp.opts))
	}
	for i, opts := range rp.opts {
		if !opts.DryRun {
			t.Errorf("row %d reached the processor without DryRun set", i)
		}
	}
	want := "Preview complete! 2 would be imported, 0 would be updated, 0 would be skipped. No changes were made."
	if report.Message != want {
		t.Errorf("Message = %q, want %q", report.Message, want)
	}
}

func TestServiceExpiredAndInvalidTokens(t *testing.T) {
	svc, _ := newService(t, &recorder{}, core.ServiceConfig{JobTTL: 20 * time.Millisecond})

	t.Run("malformed token", func(t *testing.T) {
		if _, err := advance(svc, "not-a-token", 5); !errors.Is(err, core.ErrInvalidToken) {
			t.Errorf("Advance() error = %v, want ErrInvalidToken", err)
		}
		if _, err := svc.Status(context.Background(), "../etc"); !errors.Is(err, core.ErrInvalidToken) {
			t.Errorf("Status() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		if _, err := advance(svc, uuid.NewString(), 5); !errors.Is(err, core.ErrJobExpired) {
			t.Errorf("Advance() error = %v, want ErrJobExpired", err)
		}
	})

	t.Run("ttl elapsed", func(t *testing.T) {
		res := start(t, svc, "title\nA\n", core.ImportOptions{})
		time.Sleep(50 * time.Millisecond)

		if _, err := advance(svc, res.JobToken, 5); !errors.Is(err, core.ErrJobExpired) {
			t.Errorf("Advance() error = %v, want ErrJobExpired", err)
		}
	})

	t.Run("discarded", func(t *testing.T) {
		res := start(t, svc, "title\nA\n", core.ImportOptions{})
		if err := svc.Discard(context.Background(), res.JobToken); err != nil {
			t.Fatalf("Discard() error: %v", err)
		}
		if _, err := svc.Status(context.Background(), res.JobToken); !errors.Is(err, core.ErrJobExpired) {
			t.Errorf("Status() error = %v, want ErrJobExpired", err)
		}
	})
}

func TestServiceDiscardIsIdempotent(t *testing.T) {
	svc, _ := newService(t, &recorder{}, core.ServiceConfig{})

	for _, token := range []string{"", "   ", "garbage", uuid.NewString()} {
		if err := svc.Discard(context.Background(), token); err != nil {
			t.Errorf("Discard(%q) error: %v", token, err)
		}
	}
}

func TestServiceStatus(t *testing.T) {
	svc, _ := newService(t, &recorder{}, core.ServiceConfig{})
	res := start(t, svc, "title\nA\nB\n", core.ImportOptions{})

	before, err := svc.Status(context.Background(), res.JobToken)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if before.Processed != 0 || before.Total != 2 || before.Version != 0 {
		t.Errorf("status before = %+v", before)
	}
	if before.Results.Errors == nil {
		t.Error("Results.Errors should be an empty list, not nil")
	}

	if _, err := advance(svc, res.JobToken, 1); err != nil {
		t.Fatalf("Advance() error: %v", err)
	}

	after, err := svc.Status(context.Background(), res.JobToken)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if after.Processed != 1 || after.Version != 1 || after.Batch.Imported != 0 {
		t.Errorf("status after = %+v", after)
	}
}

func TestServiceExpectedVersion(t *testing.T) {
	rp := &recorder{}
	svc, _ := newService(t, rp, core.ServiceConfig{})
	res := start(t, svc, "title\nA\nB\n", core.ImportOptions{})

	stale := int64(3)
	_, err := svc.Advance(context.Background(), core.AdvanceRequest{
		Token: res.JobToken, ChunkSize: 1, ExpectedVersion: &stale,
	})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("Advance() error = %v, want ErrConflict", err)
	}
	if rp.calls != 0 {
		t.Error("rows were processed despite a version conflict")
	}

	current := int64(0)
	report, err := svc.Advance(context.Background(), core.AdvanceRequest{
		Token: res.JobToken, ChunkSize: 1, ExpectedVersion: &current,
	})
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if report.Version != 1 || report.Processed != 1 {
		t.Errorf("report = %+v", report)
	}
}

// racingStore lets another writer advance the job between Get and
// CompareAndSwap, once.
type racingStore struct {
	*jobstore.MemoryStore
	raced bool
}

func (s *racingStore) Get(ctx context.Context, token string) (core.ImportJob, error) {
	job, err := s.MemoryStore.Get(ctx, token)
	if err == nil && !s.raced {
		s.raced = true
		_, _ = s.MemoryStore.CompareAndSwap(ctx, token, job.Version, job, time.Hour)
	}
	return job, err
}

func TestServiceConcurrentWriterConflict(t *testing.T) {
	store := &racingStore{MemoryStore: jobstore.NewMemoryStore()}
	svc := core.NewService(store, &recorder{}, core.ServiceConfig{})
	res := start(t, svc, "title\nA\nB\n", core.ImportOptions{})

	if _, err := advance(svc, res.JobToken, 1); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("Advance() error = %v, want ErrConflict", err)
	}

	status, err := svc.Status(context.Background(), res.JobToken)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status.Version != 1 || status.Processed != 0 {
		t.Errorf("status = %+v, want the other writer's version with no progress", status)
	}

	report, err := svc.Advance(context.Background(), core.AdvanceRequest{
		Token: res.JobToken, ChunkSize: 2, ExpectedVersion: &status.Version,
	})
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if !report.Complete || report.Version != 2 {
		t.Errorf("retry report = %+v", report)
	}
}

func TestServiceLimiterBusy(t *testing.T) {
	limiter := core.NewLimiter(1, 20*time.Millisecond)
	svc, _ := newService(t, &recorder{}, core.ServiceConfig{Limiter: limiter})
	res := start(t, svc, "title\nA\n", core.ImportOptions{})

	if !limiter.TryAcquire() {
		t.Fatal("TryAcquire failed")
	}

	if _, err := advance(svc, res.JobToken, 1); !errors.Is(err, core.ErrTooManyChunks) {
		t.Errorf("Advance() error = %v, want ErrTooManyChunks", err)
	}
	if got := svc.LimiterStatus(); got.Active != 1 || got.MaxConcurrent != 1 {
		t.Errorf("LimiterStatus() = %+v", got)
	}

	limiter.Release()

	if _, err := advance(svc, res.JobToken, 1); err != nil {
		t.Errorf("Advance() after release error: %v", err)
	}
	if err := svc.WaitForChunks(context.Background()); err != nil {
		t.Errorf("WaitForChunks() error: %v", err)
	}
}

func TestCompletionMessage(t *testing.T) {
	r := core.Results{Imported: 4, Updated: 2, Skipped: 1}

	if got := core.CompletionMessage(r, false); got != "Import complete! 4 imported, 2 updated, 1 skipped." {
		t.Errorf("CompletionMessage(live) = %q", got)
	}
	if got := core.CompletionMessage(r, true); !strings.HasSuffix(got, "No changes were made.") {
		t.Errorf("CompletionMessage(dry run) = %q", got)
	}
}
