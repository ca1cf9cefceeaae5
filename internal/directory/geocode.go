package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Coordinates is a resolved position.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Geocoder resolves a free-form address. found is false, with no error,
// when the service has no match for the address.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (c Coordinates, found bool, err error)
}

// Cache lifetimes for geocoder answers. Misses expire sooner so a fixed
// address is retried within the hour.
const (
	geocodeHitTTL  = 7 * 24 * time.Hour
	geocodeMissTTL = time.Hour
)

// HTTPGeocoderConfig configures an HTTPGeocoder.
type HTTPGeocoderConfig struct {
	// URL is a Nominatim-compatible search endpoint.
	URL       string
	UserAgent string

	// Interval is the minimum gap between upstream requests.
	Interval time.Duration
	Timeout  time.Duration
}

// HTTPGeocoder queries a Nominatim-style search API. Requests are throttled
// across all callers and answers are cached in process, keyed by the
// trimmed, lowercased address.
type HTTPGeocoder struct {
	client    *http.Client
	endpoint  string
	userAgent string
	limiter   *rate.Limiter
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]geocodeEntry
}

type geocodeEntry struct {
	coords  Coordinates
	found   bool
	expires time.Time
}

// NewHTTPGeocoder creates a geocoder from cfg.
func NewHTTPGeocoder(cfg HTTPGeocoderConfig) *HTTPGeocoder {
	return &HTTPGeocoder{
		client:    &http.Client{Timeout: cfg.Timeout},
		endpoint:  cfg.URL,
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Every(cfg.Interval), 1),
		now:       time.Now,
		cache:     make(map[string]geocodeEntry),
	}
}

// Geocode implements Geocoder. Transport failures and unexpected statuses
// are returned as errors and are not cached.
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (Coordinates, bool, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return Coordinates{}, false, nil
	}

	if e, ok := g.cached(key); ok {
		return e.coords, e.found, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return Coordinates{}, false, fmt.Errorf("geocode throttle: %w", err)
	}

	coords, found, err := g.lookup(ctx, strings.TrimSpace(address))
	if err != nil {
		return Coordinates{}, false, err
	}

	ttl := geocodeMissTTL
	if found {
		ttl = geocodeHitTTL
	}
	g.mu.Lock()
	g.cache[key] = geocodeEntry{coords: coords, found: found, expires: g.now().Add(ttl)}
	g.mu.Unlock()

	return coords, found, nil
}

func (g *HTTPGeocoder) cached(key string) (geocodeEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.cache[key]
	if !ok {
		return geocodeEntry{}, false
	}
	if !g.now().Before(e.expires) {
		delete(g.cache, key)
		return geocodeEntry{}, false
	}
	return e, true
}

// nominatimPlace is the subset of a search result we read. Nominatim
// returns coordinates as strings.
type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *HTTPGeocoder) lookup(ctx context.Context, address string) (Coordinates, bool, error) {
	u, err := url.Parse(g.endpoint)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("geocode url: %w", err)
	}
	q := u.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("geocode request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, false, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil || len(places) == 0 {
		return Coordinates{}, false, nil
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lng, lngErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lngErr != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Coordinates{}, false, nil
	}

	return Coordinates{Lat: lat, Lng: lng}, true, nil
}

// geocodeAddress joins the non-empty address parts of l for a lookup.
func geocodeAddress(l Listing) string {
	var parts []string
	for _, p := range []string{l.Address, l.City, l.State, l.Zip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
