package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores listings in PostgreSQL.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a repository on db.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	findByExternalIDSQL = `SELECT id FROM listings WHERE external_id = $1 ORDER BY id LIMIT 1`
	findByTitleSQL      = `SELECT id FROM listings WHERE title = $1 ORDER BY id LIMIT 1`

	insertListingSQL = `
INSERT INTO listings (
    external_id, title, description, address, city, state, zip,
    phone, website, email, image_url, lat, lng
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id`

	updateListingSQL = `
UPDATE listings SET
    external_id = $2, title = $3, description = $4, address = $5, city = $6,
    state = $7, zip = $8, phone = $9, website = $10, email = $11,
    image_url = $12, lat = $13, lng = $14, updated_at = now()
WHERE id = $1`

	clearCategoriesSQL  = `DELETE FROM listing_categories WHERE listing_id = $1`
	attachCategoriesSQL = `
INSERT INTO listing_categories (listing_id, category_id)
SELECT $1, id FROM categories WHERE lower(name) = ANY($2)
ON CONFLICT DO NOTHING`

	hasImageSQL = `SELECT image_sha256 IS NOT NULL FROM listings WHERE id = $1`
	setImageSQL = `
UPDATE listings SET
    image_source_url = $2, image_content_type = $3, image_sha256 = $4,
    image_size = $5, image_fetched_at = $6
WHERE id = $1`

	ensureCategorySQL = `INSERT INTO categories (name) VALUES ($1) ON CONFLICT DO NOTHING`
	categoryExistsSQL = `SELECT EXISTS (SELECT 1 FROM categories WHERE lower(name) = lower($1))`
)

func (r *PostgresRepository) FindByExternalID(ctx context.Context, externalID string) (int64, bool, error) {
	return r.findOne(ctx, findByExternalIDSQL, externalID)
}

func (r *PostgresRepository) FindByTitle(ctx context.Context, title string) (int64, bool, error) {
	return r.findOne(ctx, findByTitleSQL, title)
}

func (r *PostgresRepository) findOne(ctx context.Context, query, arg string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRow(ctx, query, arg).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *PostgresRepository) Create(ctx context.Context, l Listing) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertListingSQL,
			toPgText(l.ExternalID), l.Title, toPgText(l.Description),
			toPgText(l.Address), toPgText(l.City), toPgText(l.State), toPgText(l.Zip),
			toPgText(l.Phone), toPgText(l.Website), toPgText(l.Email), toPgText(l.ImageURL),
			l.Lat, l.Lng,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert listing: %w", err)
		}
		return attachCategories(ctx, tx, id, l.Categories)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id int64, l Listing) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateListingSQL, id,
			toPgText(l.ExternalID), l.Title, toPgText(l.Description),
			toPgText(l.Address), toPgText(l.City), toPgText(l.State), toPgText(l.Zip),
			toPgText(l.Phone), toPgText(l.Website), toPgText(l.Email), toPgText(l.ImageURL),
			l.Lat, l.Lng,
		)
		if err != nil {
			return fmt.Errorf("update listing: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrListingNotFound
		}

		if _, err := tx.Exec(ctx, clearCategoriesSQL, id); err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		return attachCategories(ctx, tx, id, l.Categories)
	})
}

func attachCategories(ctx context.Context, tx pgx.Tx, listingID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}

	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}

	if _, err := tx.Exec(ctx, attachCategoriesSQL, listingID, lowered); err != nil {
		return fmt.Errorf("attach categories: %w", err)
	}
	return nil
}

func (r *PostgresRepository) EnsureCategory(ctx context.Context, name string) error {
	if _, err := r.db.Exec(ctx, ensureCategorySQL, name); err != nil {
		return fmt.Errorf("ensure category: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CategoryExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, categoryExistsSQL, name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepository) HasImage(ctx context.Context, id int64) (bool, error) {
	var has bool
	err := r.db.QueryRow(ctx, hasImageSQL, id).Scan(&has)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrListingNotFound
	}
	if err != nil {
		return false, err
	}
	return has, nil
}

func (r *PostgresRepository) SetImage(ctx context.Context, id int64, ref MediaRef) error {
	tag, err := r.db.Exec(ctx, setImageSQL, id,
		ref.URL, ref.ContentType, ref.SHA256, ref.Size, ref.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// CountListings returns the number of stored listings.
func (r *PostgresRepository) CountListings(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM listings`).Scan(&n)
	return n, err
}
