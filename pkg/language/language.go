// Package language guesses the language of a question. Detection is best
// effort: any doubt yields the fallback code.
package language

import (
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// romanizedMarkers are common words in Hindi typed in Latin script, which
// script-based detectors classify as English or worse.
var romanizedMarkers = map[string]bool{
	"kya": true, "hai": true, "ka": true, "ki": true, "ke": true,
	"kaise": true, "kab": true, "kitna": true, "kitni": true, "hain": true,
}

var wordRe = regexp.MustCompile(`\w+`)

type Detector struct {
	fallback string
}

func New(fallback string) *Detector {
	if fallback == "" {
		fallback = "en"
	}
	return &Detector{fallback: fallback}
}

func (d *Detector) Fallback() string {
	return d.fallback
}

// Detect returns an ISO 639-1 code and never fails.
func (d *Detector) Detect(text string) (code string) {
	defer func() {
		if recover() != nil {
			code = d.fallback
		}
	}()

	if strings.TrimSpace(text) == "" {
		return d.fallback
	}
	if LooksRomanizedHindi(text) {
		return "hi"
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return d.fallback
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return d.fallback
}

// LooksRomanizedHindi reports whether at least two marker words occur, or
// markers make up 30% or more of the words.
func LooksRomanizedHindi(text string) bool {
	tokens := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return false
	}

	seen := make(map[string]bool)
	for _, t := range tokens {
		if romanizedMarkers[t] {
			seen[t] = true
		}
	}
	if len(seen) >= 2 {
		return true
	}
	return float64(len(seen))/float64(len(tokens)) >= 0.3
}
