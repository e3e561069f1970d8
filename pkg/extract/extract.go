// Package extract turns an uploaded file into plain text by file extension.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/xhad/campusconnect/pkg/apperr"
)

// RawContent is an uploaded file as received.
type RawContent struct {
	Filename string
	Data     []byte
}

// SourceType is the lower-case extension without the dot, e.g. "txt".
func (r RawContent) SourceType() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Filename)), ".")
}

// Func extracts text from the bytes of one format.
type Func func(ctx context.Context, data []byte) (string, error)

type Extractor struct {
	mu      sync.RWMutex
	formats map[string]Func
}

// New returns an extractor for plain text, markdown, HTML and spreadsheets.
func New() *Extractor {
	e := &Extractor{formats: make(map[string]Func)}
	e.Register("txt", PlainText)
	e.Register("md", PlainText)
	e.Register("html", HTML)
	e.Register("htm", HTML)
	e.Register("xlsx", Spreadsheet)
	return e
}

// Register adds or replaces the extractor for ext ("pdf" or ".pdf").
func (e *Extractor) Register(ext string, fn Func) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.formats[ext] = fn
}

func (e *Extractor) Supports(filename string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.formats[RawContent{Filename: filename}.SourceType()]
	return ok
}

// Extract returns the text of raw and its source type.
func (e *Extractor) Extract(ctx context.Context, raw RawContent) (string, string, error) {
	sourceType := raw.SourceType()

	e.mu.RLock()
	fn, ok := e.formats[sourceType]
	e.mu.RUnlock()
	if !ok {
		return "", sourceType, fmt.Errorf("%q: %w", raw.Filename, apperr.ErrUnsupportedFormat)
	}

	text, err := fn(ctx, raw.Data)
	if err != nil {
		return "", sourceType, fmt.Errorf("extract %q: %w", raw.Filename, err)
	}
	return text, sourceType, nil
}

// PlainText decodes UTF-8, dropping invalid bytes.
func PlainText(_ context.Context, data []byte) (string, error) {
	return sanitizeUTF8(string(data)), nil
}

var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".main-content",
	"#main-content",
}

// HTML returns the text of the main content area, or the body when no
// such area exists. Scripts, styles and page chrome are ignored.
func HTML(_ context.Context, data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}
	return sanitizeUTF8(strings.Join(strings.Fields(content), " ")), nil
}

// Title returns the <title> of an HTML page, if any.
func Title(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
