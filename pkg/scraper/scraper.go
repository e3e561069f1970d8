// Package scraper crawls a university website and hands every page it
// finds to a callback, typically document ingestion.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxPageBytes = 10 << 20

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string // "" admits paths without an extension, "/" directory paths
	Timeout           time.Duration
	OnProgress        func(url string)
	Logger            zerolog.Logger
}

// Page is one fetched HTML page.
type Page struct {
	URL   string
	Title string
	HTML  []byte
	Depth int
}

// PageHandler receives each page once. An error is logged and the crawl
// continues.
type PageHandler func(ctx context.Context, page Page) error

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
	visited  map[string]bool
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 2
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", config.BaseURL)
	}

	return &Scraper{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}
	if parsedURL.Host != s.baseHost {
		return false
	}

	p := strings.ToLower(parsedURL.Path)
	ext := path.Ext(p)
	validExt := false
	for _, allowed := range s.config.AllowedExtensions {
		switch {
		case allowed == "/" && (p == "" || strings.HasSuffix(p, "/")):
			validExt = true
		case allowed == "" && ext == "" && !strings.HasSuffix(p, "/"):
			validExt = true
		case allowed != "" && allowed != "/" && ext == allowed:
			validExt = true
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}
	return true
}

// Crawl fetches startURL and follows same-host links up to MaxDepth,
// calling handle for each page. It stops early only if ctx is done.
func (s *Scraper) Crawl(ctx context.Context, startURL string, handle PageHandler) error {
	s.visited = make(map[string]bool)
	return s.crawl(ctx, normalize(startURL), 0, handle)
}

func (s *Scraper) crawl(ctx context.Context, urlStr string, depth int, handle PageHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > s.config.MaxDepth || s.visited[urlStr] || !s.shouldProcessURL(urlStr) {
		return nil
	}
	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	body, err := s.fetch(ctx, urlStr)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.config.Logger.Warn().Err(err).Str("url", urlStr).Msg("fetch failed")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.config.Logger.Warn().Err(err).Str("url", urlStr).Msg("parse failed")
		return nil
	}

	page := Page{
		URL:   urlStr,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:  body,
		Depth: depth,
	}
	if err := handle(ctx, page); err != nil {
		s.config.Logger.Warn().Err(err).Str("url", urlStr).Msg("page handler failed")
	}

	base, _ := url.Parse(urlStr)
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, normalize(base.ResolveReference(ref).String()))
	})

	for _, link := range links {
		if err := s.crawl(ctx, link, depth+1, handle); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) fetch(ctx context.Context, urlStr string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("skipping %s content at %s", ct, urlStr)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// normalize drops the fragment so anchors do not count as new pages.
func normalize(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	u.Fragment = ""
	return u.String()
}

// FileName derives an .html upload name from a page URL.
func FileName(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "page.html"
	}
	name := strings.Trim(u.Host+u.Path, "/")
	name = strings.NewReplacer("/", "_", ":", "_").Replace(name)
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".html"), ".htm")
	if name == "" {
		name = "page"
	}
	return name + ".html"
}
