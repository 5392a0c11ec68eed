// Package history keeps a bounded in-memory log of article save attempts.
package history

import (
	"sync"
	"time"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// MaxEntries bounds the log.
const MaxEntries = 200

// Entry sources.
const (
	SourceRSS    = "rss"
	SourceSeed   = "rss_seed"
	SourceManual = "manual"
)

// Entry is one save attempt.
type Entry struct {
	ArticleID string    `json:"article_id"`
	Title     string    `json:"title"`
	Success   bool      `json:"success"`
	Error     *string   `json:"error"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

// Log is a ring of the most recent entries. The zero value is not usable;
// call New.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	clock   news.Clock
}

// New returns an empty Log. A nil clock uses the wall clock.
func New(clock news.Clock) *Log {
	return &Log{entries: make([]Entry, MaxEntries), clock: clock}
}

// Add records an attempt. Titles are cut to 200 runes and errors to 500.
func (l *Log) Add(articleID, title string, err error, source string) {
	e := Entry{
		ArticleID: articleID,
		Title:     news.Truncate(title, 200),
		Success:   err == nil,
		Source:    source,
		At:        l.now(),
	}
	if err != nil {
		msg := news.Truncate(err.Error(), 500)
		e.Error = &msg
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % MaxEntries
	if l.next == 0 {
		l.full = true
	}
}

// Entries returns the log newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.next
	if l.full {
		n = MaxEntries
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, l.entries[(l.next-i+MaxEntries)%MaxEntries])
	}
	return out
}

func (l *Log) now() time.Time {
	if l.clock == nil {
		return time.Now().UTC()
	}
	return l.clock.Now()
}
