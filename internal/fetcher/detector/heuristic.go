// Package detector decides when an article page needs a headless render.
package detector

import (
	"bytes"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	defaultBodyThreshold = 2048
	defaultMinTextRunes  = 300
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	// BodyLengthThreshold is the raw page size below which a script-heavy
	// page is treated as an empty client-rendered shell.
	BodyLengthThreshold int
	// MinTextRunes is the extracted text length below which a page carrying
	// an SPA mount point is re-rendered.
	MinTextRunes int
}

// NewHeuristic creates a new detector. Zero picks the default threshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultBodyThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold, MinTextRunes: defaultMinTextRunes}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// ShouldPromote decides whether a headless fetch is required. text is what
// the extractor found in body.
func (h *Heuristic) ShouldPromote(status int, body []byte, text string) bool {
	if status != http.StatusOK {
		return false
	}
	if len(body) == 0 || text == "" {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	if utf8.RuneCountInString(text) >= h.MinTextRunes {
		return false
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed tag; the rest of the document counts as script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
