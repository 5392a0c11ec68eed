// Package record holds the encoding rules every persistence backend shares.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// TimeLayout is used by backends that store timestamps as text. It is fixed
// width so that text ordering matches time ordering.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Article returns a copy of a ready to persist.
func Article(a news.Article) news.Article {
	a.Summary = news.Truncate(a.Summary, news.StoredSummaryLimit)
	if a.Category == "" {
		a.Category = news.CategoryGeneral
	}
	return a
}

// Explanation returns a copy of e with exactly five persona slots.
func Explanation(e news.Explanation) news.Explanation {
	e.Personas = news.NormalizePersonas(e.Personas)
	if e.Blocks == nil {
		e.Blocks = []news.Block{}
	}
	return e
}

// Loaded validates an explanation read from a backend. Bad fallbacks are
// reported as news.ErrNotFound so they get regenerated.
func Loaded(e news.Explanation) (news.Explanation, error) {
	if news.IsBadFallback(e.Blocks) {
		return news.Explanation{}, news.ErrNotFound
	}
	e.Blocks = news.SanitizeBlocks(e.Blocks)
	e.Personas = news.NormalizePersonas(e.Personas)
	return e, nil
}

// EncodeBlocks serializes blocks as a JSON array.
func EncodeBlocks(blocks []news.Block) (string, error) {
	if blocks == nil {
		blocks = []news.Block{}
	}
	raw, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("encode blocks: %w", err)
	}
	return string(raw), nil
}

// DecodeBlocks parses a JSON block array. Empty input yields no blocks.
func DecodeBlocks(raw string) ([]news.Block, error) {
	if raw == "" {
		return nil, nil
	}
	var blocks []news.Block
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	return blocks, nil
}

// EncodeOptional marshals v to JSON text, or nil when v is nil.
func EncodeOptional[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := string(raw)
	return &s, nil
}

// DecodeOptional is the inverse of EncodeOptional.
func DecodeOptional[T any](raw *string) (*T, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(*raw), &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return &v, nil
}

// FormatTime renders t for text columns. The zero time renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// ParseTime accepts FormatTime output, SQLite's CURRENT_TIMESTAMP format and
// ISO timestamps without a zone, which are read as UTC.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
