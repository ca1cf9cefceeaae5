package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestGeocoder(t *testing.T, handler http.HandlerFunc) (*HTTPGeocoder, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	g := NewHTTPGeocoder(HTTPGeocoderConfig{
		URL:       srv.URL + "/search",
		UserAgent: "bulkimport-test/1.0",
		Timeout:   time.Second,
	})
	return g, &calls
}

func TestHTTPGeocoder_Found(t *testing.T) {
	g, calls := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "1 Main St, Austin" || q.Get("format") != "json" || q.Get("limit") != "1" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if ua := r.Header.Get("User-Agent"); ua != "bulkimport-test/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte(`[{"lat":"30.2672","lon":"-97.7431","display_name":"Austin"}]`))
	})

	c, found, err := g.Geocode(context.Background(), "  1 Main St, Austin ")
	if err != nil || !found {
		t.Fatalf("Geocode() = %v, %v, %v", c, found, err)
	}
	if c.Lat != 30.2672 || c.Lng != -97.7431 {
		t.Errorf("coords = %+v", c)
	}

	// Same address in another case is served from the cache.
	if _, found, _ := g.Geocode(context.Background(), "1 MAIN ST, AUSTIN"); !found {
		t.Error("cached lookup not found")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestHTTPGeocoder_MissIsCachedForAnHour(t *testing.T) {
	g, calls := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, found, err := g.Geocode(context.Background(), "Nowhere"); err != nil || found {
			t.Fatalf("Geocode() = %v, %v; want a miss", found, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}

	now = now.Add(geocodeMissTTL)
	g.Geocode(context.Background(), "Nowhere")
	if n := calls.Load(); n != 2 {
		t.Errorf("upstream calls after expiry = %d, want 2", n)
	}
}

func TestHTTPGeocoder_HitOutlivesMiss(t *testing.T) {
	g, calls := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat":"1","lon":"2"}]`))
	})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	g.Geocode(context.Background(), "Austin")
	now = now.Add(6 * 24 * time.Hour)
	g.Geocode(context.Background(), "Austin")
	if n := calls.Load(); n != 1 {
		t.Errorf("upstream calls within a week = %d, want 1", n)
	}
}

func TestHTTPGeocoder_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		wantFound bool
	}{
		{"server error", http.StatusServiceUnavailable, "", true, false},
		{"malformed body", http.StatusOK, "<html>", false, false},
		{"non numeric", http.StatusOK, `[{"lat":"north","lon":"2"}]`, false, false},
		{"out of range", http.StatusOK, `[{"lat":"95","lon":"2"}]`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, calls := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, found, err := g.Geocode(context.Background(), "Austin")
			if (err != nil) != tt.wantErr || found != tt.wantFound {
				t.Fatalf("Geocode() = %v, %v", found, err)
			}

			// Errors are retried; answers, even empty ones, are cached.
			g.Geocode(context.Background(), "Austin")
			want := int32(1)
			if tt.wantErr {
				want = 2
			}
			if n := calls.Load(); n != want {
				t.Errorf("upstream calls = %d, want %d", n, want)
			}
		})
	}
}

func TestHTTPGeocoder_EmptyAddress(t *testing.T) {
	g, calls := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {})

	if _, found, err := g.Geocode(context.Background(), "   "); err != nil || found {
		t.Errorf("Geocode(blank) = %v, %v", found, err)
	}
	if calls.Load() != 0 {
		t.Error("blank address reached the server")
	}
}

func TestHTTPGeocoder_Throttle(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	g.limiter.SetLimit(0.5) // one request every two seconds
	g.limiter.SetBurst(1)

	if _, _, err := g.Geocode(context.Background(), "first"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err := g.Geocode(ctx, "second")
	if err == nil {
		t.Fatal("second lookup should wait longer than the context allows")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want a deadline error", err)
	}
}

func TestGeocodeAddress(t *testing.T) {
	tests := []struct {
		l    Listing
		want string
	}{
		{Listing{}, ""},
		{Listing{City: "Austin"}, "Austin"},
		{Listing{Address: "1 Main St", City: " Austin ", State: "TX", Zip: "78701"}, "1 Main St, Austin, TX, 78701"},
		{Listing{Address: "  ", Zip: "78701"}, "78701"},
	}

	for _, tt := range tests {
		if got := geocodeAddress(tt.l); got != tt.want {
			t.Errorf("geocodeAddress(%+v) = %q, want %q", tt.l, got, tt.want)
		}
	}
}
