package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.edu",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)

	_, err = NewWithConfig(ScraperConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestShouldProcessURL(t *testing.T) {
	s, err := NewWithConfig(ScraperConfig{
		BaseURL:        "https://example.edu",
		IgnorePatterns: []string{"/ignore/", "private"},
	})
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.edu/admissions/", true},
		{"https://example.edu/fees.html", true},
		{"https://example.edu/hostel", true},
		{"https://example.edu", true},
		{"https://example.edu/ignore/page.html", false},
		{"https://example.edu/private.html", false},
		{"https://other.edu/page.html", false},
		{"https://example.edu/prospectus.pdf", false},
		{"mailto:office@example.edu", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.shouldProcessURL(tt.url))
		})
	}
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Home</title></head><body><main>
			<p>Welcome to the university.</p>
			<a href="/fees.html">Fees</a>
			<a href="/fees.html#hostel">Hostel fees</a>
			<a href="/missing.html">Broken</a>
			<a href="https://elsewhere.example.com/">Elsewhere</a>
		</main></body></html>`))
	})
	mux.HandleFunc("/fees.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Fees</title></head><body><main>
			<p>Hostel fees are due in July.</p>
			<a href="/deep.html">Deeper</a>
		</main></body></html>`))
	})
	mux.HandleFunc("/deep.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Deep</title></head><body>deep</body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawl(t *testing.T) {
	srv := newSite(t)

	var progress []string
	s, err := NewWithConfig(ScraperConfig{
		BaseURL:    srv.URL,
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(u string) { progress = append(progress, u) },
	})
	require.NoError(t, err)

	var mu sync.Mutex
	pages := map[string]Page{}
	err = s.Crawl(context.Background(), srv.URL+"/", func(_ context.Context, p Page) error {
		mu.Lock()
		defer mu.Unlock()
		pages[p.URL] = p
		return nil
	})
	require.NoError(t, err)

	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	assert.Equal(t, []string{srv.URL + "/", srv.URL + "/fees.html"}, urls)

	home := pages[srv.URL+"/"]
	assert.Equal(t, "Home", home.Title)
	assert.Equal(t, 0, home.Depth)
	assert.Contains(t, string(home.HTML), "Welcome to the university.")
	assert.Equal(t, 1, pages[srv.URL+"/fees.html"].Depth)

	assert.Contains(t, progress, srv.URL+"/missing.html", "broken links are attempted once")
}

func TestCrawlHandlerErrorsDoNotStop(t *testing.T) {
	srv := newSite(t)
	s, err := NewWithConfig(ScraperConfig{BaseURL: srv.URL, MaxDepth: 2, RateLimit: 100})
	require.NoError(t, err)

	calls := 0
	err = s.Crawl(context.Background(), srv.URL+"/", func(context.Context, Page) error {
		calls++
		return errors.New("ingest failed")
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCrawlCancelled(t *testing.T) {
	srv := newSite(t)
	s, err := NewWithConfig(ScraperConfig{BaseURL: srv.URL, RateLimit: 100})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Crawl(ctx, srv.URL+"/", func(context.Context, Page) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.edu/", "example.edu.html"},
		{"https://example.edu/admissions/fees.html", "example.edu_admissions_fees.html"},
		{"http://localhost:8080/hostel", "localhost_8080_hostel.html"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.url))
		})
	}
}
