package news

import (
	"crypto/md5" //nolint:gosec // IDs only, not security sensitive
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultSummaryLimit caps cleaned feed summaries.
const DefaultSummaryLimit = 18000

// StoredSummaryLimit caps summaries persisted with an article.
const StoredSummaryLimit = 4000

var (
	closedTag   = regexp.MustCompile(`<[^>]*>`)
	danglingTag = regexp.MustCompile(`<[^>]*`)
	whitespace  = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// SanitizeDisplayText strips HTML tags (including fragments cut by truncation),
// decodes entities and collapses whitespace.
func SanitizeDisplayText(text string) string {
	if text == "" {
		return ""
	}
	text = closedTag.ReplaceAllString(text, "")
	text = danglingTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// CleanSummary sanitizes text and truncates it to maxRunes. Cleaning happens
// first so a truncated tag never survives.
func CleanSummary(text string, maxRunes int) string {
	return Truncate(SanitizeDisplayText(text), maxRunes)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// SanitizeBlocks removes markup that may have leaked into cached block content.
func SanitizeBlocks(blocks []Block) []Block {
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Content != "" {
			b.Content = SanitizeDisplayText(b.Content)
		}
		out = append(out, b)
	}
	return out
}

// ArticleID derives the stable dedup key for a feed entry.
func ArticleID(link, title string) string {
	return shortMD5(link + title)
}

// TrendID derives a short identifier for a trend keyword.
func TrendID(keyword string) string {
	return shortMD5(keyword)
}

func shortMD5(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // IDs only
	return hex.EncodeToString(sum[:])[:16]
}

// ImageURL returns path untouched when it is already absolute, otherwise a
// deterministic placeholder from the CDN seeded by path.
func ImageURL(cdnBase, path string, width, height int) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	seed := uint32(0)
	if path != "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(path))
		seed = h.Sum32() % 10000
	}
	return fmt.Sprintf("%s/seed/%d/%d/%d", strings.TrimRight(cdnBase, "/"), seed, width, height)
}
