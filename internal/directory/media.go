package directory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotImage is returned when a media URL does not serve an image.
	ErrNotImage = errors.New("not an image")

	// ErrMediaTooLarge is returned when an image exceeds the size cap.
	ErrMediaTooLarge = errors.New("image too large")
)

// MediaRef records a fetched listing image by content hash. The bytes
// themselves are not kept.
type MediaRef struct {
	URL         string
	ContentType string
	SHA256      string
	Size        int64
	FetchedAt   time.Time
}

// MediaFetcher downloads the image behind a URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) (MediaRef, error)
}

// HTTPMediaFetcher fetches images over HTTP(S), rejecting non-image
// responses and bodies larger than maxSize.
type HTTPMediaFetcher struct {
	client  *http.Client
	maxSize int64
	now     func() time.Time
}

// NewHTTPMediaFetcher creates a fetcher with the given per-request timeout
// and size cap in bytes.
func NewHTTPMediaFetcher(timeout time.Duration, maxSize int64) *HTTPMediaFetcher {
	return &HTTPMediaFetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Fetch implements MediaFetcher.
func (f *HTTPMediaFetcher) Fetch(ctx context.Context, rawURL string) (MediaRef, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return MediaRef{}, fmt.Errorf("invalid image url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return MediaRef{}, fmt.Errorf("image request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return MediaRef{}, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MediaRef{}, fmt.Errorf("image request: unexpected status %d", resp.StatusCode)
	}

	contentType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(contentType, "image/") {
		return MediaRef{}, fmt.Errorf("%w: %q", ErrNotImage, resp.Header.Get("Content-Type"))
	}
	if resp.ContentLength > f.maxSize {
		return MediaRef{}, ErrMediaTooLarge
	}

	h := sha256.New()
	n, err := io.Copy(h, io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return MediaRef{}, fmt.Errorf("read image: %w", err)
	}
	if n > f.maxSize {
		return MediaRef{}, ErrMediaTooLarge
	}

	return MediaRef{
		URL:         u.String(),
		ContentType: contentType,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		Size:        n,
		FetchedAt:   f.now().UTC(),
	}, nil
}
