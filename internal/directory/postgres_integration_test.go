package directory

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPostgresRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	defer pool.Close()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Running twice must be a no-op.
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	if _, err := pool.Exec(ctx, `TRUNCATE listings, categories RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	repo := NewPostgresRepository(pool)
	p := NewProcessor(repo)
	opts := core.ImportOptions{ImportMode: core.ModeUpdate, MatchBy: core.MatchBoth, CreateTerms: true}

	action, err := p.ProcessRow(ctx, core.Row{"title": "Blue Door Cafe", "external_id": "ext-1", "category": "Coffee", "lat": "30.1"}, opts)
	if err != nil || action != core.ActionImported {
		t.Fatalf("first row = %q, %v; want imported", action, err)
	}

	action, err = p.ProcessRow(ctx, core.Row{"title": "Renamed Cafe", "external_id": "ext-1", "category": "coffee"}, opts)
	if err != nil || action != core.ActionUpdated {
		t.Fatalf("second row = %q, %v; want updated", action, err)
	}

	n, err := repo.CountListings(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("listings = %d, want 1", n)
	}

	ok, err := repo.CategoryExists(ctx, "COFFEE")
	if err != nil || !ok {
		t.Errorf("CategoryExists(COFFEE) = %v, %v; want true", ok, err)
	}

	id, found, err := repo.FindByTitle(ctx, "Renamed Cafe")
	if err != nil || !found || id == 0 {
		t.Fatalf("FindByTitle = %d, %v, %v", id, found, err)
	}

	if has, err := repo.HasImage(ctx, id); err != nil || has {
		t.Errorf("HasImage before SetImage = %v, %v; want false", has, err)
	}
	ref := MediaRef{URL: "https://img.example/cafe.jpg", ContentType: "image/jpeg", SHA256: "abc", Size: 3, FetchedAt: time.Now().UTC()}
	if err := repo.SetImage(ctx, id, ref); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	if has, err := repo.HasImage(ctx, id); err != nil || !has {
		t.Errorf("HasImage after SetImage = %v, %v; want true", has, err)
	}
	if err := repo.SetImage(ctx, id+1000, ref); !errors.Is(err, ErrListingNotFound) {
		t.Errorf("SetImage on unknown id = %v, want ErrListingNotFound", err)
	}
}
