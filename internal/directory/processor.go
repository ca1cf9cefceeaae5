// Package directory imports business listings from CSV rows.
//
// Processor implements core.RowProcessor. For each row it finds an existing
// listing by external id and/or title, decides what to do from the job's
// import mode, and writes through a Repository unless the job is a dry run.
//
// Decision table:
//
//	no match               -> create  (imported)
//	match, mode "skip"     -> nothing (skipped)
//	match, mode "update"   -> update  (updated)
//	match, mode "create"   -> create a duplicate (imported)
//
// When the import asks for it, rows missing coordinates are geocoded from
// their address and a listing without an image gets the one behind
// image_url. Both steps are skipped on dry runs, and their failures are
// logged rather than failing the row.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrListingNotFound is returned by Update for an unknown id.
var ErrListingNotFound = errors.New("listing not found")

// Processor maps CSV rows onto directory listings.
type Processor struct {
	repo     Repository
	geocoder Geocoder
	media    MediaFetcher
}

// ProcessorOption configures optional Processor collaborators.
type ProcessorOption func(*Processor)

// WithGeocoder enables the geocode import option.
func WithGeocoder(g Geocoder) ProcessorOption {
	return func(p *Processor) { p.geocoder = g }
}

// WithMediaFetcher enables the download_images import option.
func WithMediaFetcher(f MediaFetcher) ProcessorOption {
	return func(p *Processor) { p.media = f }
}

// NewProcessor creates a Processor writing to repo.
func NewProcessor(repo Repository, opts ...ProcessorOption) *Processor {
	p := &Processor{repo: repo}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessRow implements core.RowProcessor.
func (p *Processor) ProcessRow(ctx context.Context, row core.Row, opts core.ImportOptions) (core.RowAction, error) {
	listing, err := ListingFromRow(row)
	if err != nil {
		return core.ActionSkipped, err
	}

	id, found, err := p.match(ctx, listing, opts.MatchBy)
	if err != nil {
		return core.ActionSkipped, err
	}

	action := decide(found, opts.ImportMode)
	if opts.DryRun || action == core.ActionSkipped {
		return action, nil
	}

	listing.Categories, err = p.resolveCategories(ctx, listing.Categories, opts.CreateTerms)
	if err != nil {
		return core.ActionSkipped, err
	}

	if opts.Geocode {
		listing = p.geocode(ctx, listing)
	}

	switch action {
	case core.ActionUpdated:
		if err := p.repo.Update(ctx, id, listing); err != nil {
			return core.ActionSkipped, fmt.Errorf("update listing: %w", err)
		}
	default:
		if id, err = p.repo.Create(ctx, listing); err != nil {
			return core.ActionSkipped, fmt.Errorf("create listing: %w", err)
		}
	}

	if opts.DownloadImages && listing.ImageURL != "" {
		p.attachImage(ctx, id, listing)
	}

	return action, nil
}

// geocode fills missing coordinates from the listing's address.
func (p *Processor) geocode(ctx context.Context, l Listing) Listing {
	if l.Lat.Valid && l.Lng.Valid {
		return l
	}
	address := geocodeAddress(l)
	if address == "" {
		return l
	}

	logger := logging.FromContext(ctx)
	if p.geocoder == nil {
		logger.Debug("geocoding requested but not configured", "title", l.Title)
		return l
	}

	c, found, err := p.geocoder.Geocode(ctx, address)
	if err != nil {
		logger.Warn("geocode failed", "title", l.Title, "error", err)
		return l
	}
	if !found {
		logger.Debug("address not found", "title", l.Title, "address", address)
		return l
	}

	l.Lat = pgtype.Float8{Float64: c.Lat, Valid: true}
	l.Lng = pgtype.Float8{Float64: c.Lng, Valid: true}
	return l
}

// attachImage fetches the listing image unless one is already stored.
func (p *Processor) attachImage(ctx context.Context, id int64, l Listing) {
	logger := logging.FromContext(ctx)
	if p.media == nil {
		logger.Debug("image download requested but not configured", "title", l.Title)
		return
	}

	has, err := p.repo.HasImage(ctx, id)
	if err != nil {
		logger.Warn("check listing image", "id", id, "error", err)
		return
	}
	if has {
		return
	}

	ref, err := p.media.Fetch(ctx, l.ImageURL)
	if err != nil {
		logger.Warn("image download failed", "title", l.Title, "url", l.ImageURL, "error", err)
		return
	}
	if err := p.repo.SetImage(ctx, id, ref); err != nil {
		logger.Warn("store listing image", "id", id, "error", err)
	}
}

// match looks up by external id first, then title, as allowed by matchBy.
func (p *Processor) match(ctx context.Context, l Listing, matchBy core.MatchBy) (int64, bool, error) {
	if (matchBy == core.MatchExternalID || matchBy == core.MatchBoth) && l.ExternalID != "" {
		id, found, err := p.repo.FindByExternalID(ctx, l.ExternalID)
		if err != nil {
			return 0, false, fmt.Errorf("find by external id: %w", err)
		}
		if found {
			return id, true, nil
		}
	}

	if matchBy == core.MatchTitle || matchBy == core.MatchBoth {
		id, found, err := p.repo.FindByTitle(ctx, l.Title)
		if err != nil {
			return 0, false, fmt.Errorf("find by title: %w", err)
		}
		if found {
			return id, true, nil
		}
	}

	return 0, false, nil
}

func decide(found bool, mode core.ImportMode) core.RowAction {
	if !found {
		return core.ActionImported
	}
	switch mode {
	case core.ModeUpdate:
		return core.ActionUpdated
	case core.ModeCreate:
		return core.ActionImported
	default:
		return core.ActionSkipped
	}
}

// resolveCategories returns the categories to attach. With createTerms every
// category is ensured; otherwise unknown categories are dropped.
func (p *Processor) resolveCategories(ctx context.Context, names []string, createTerms bool) ([]string, error) {
	var out []string
	for _, name := range names {
		if createTerms {
			if err := p.repo.EnsureCategory(ctx, name); err != nil {
				return nil, fmt.Errorf("ensure category %q: %w", name, err)
			}
			out = append(out, name)
			continue
		}

		ok, err := p.repo.CategoryExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check category %q: %w", name, err)
		}
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}
