// Package news defines the core types shared across the news site subsystems.
package news

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrQueueFull is returned when a job cannot be queued without waiting.
var ErrQueueFull = errors.New("queue full")

// ErrQueueClosed is returned by queue operations after shutdown.
var ErrQueueClosed = errors.New("queue closed")

// Article is a harvested news item. Only articles with a stored explanation are shown on the site.
type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Summary   string    `json:"summary"`
	Published time.Time `json:"published"`
	Source    string    `json:"source"`
	Category  string    `json:"category"`
	ImageURL  string    `json:"image_url,omitempty"`
}

// BlockType identifies how a block is rendered on the article page.
type BlockType string

// Block types produced by the explanation generators.
const (
	BlockText             BlockType = "text"
	BlockExplain          BlockType = "explain"
	BlockNavigatorSection BlockType = "navigator_section"
)

// Block is one paragraph of article text or one middleman speech bubble.
type Block struct {
	Type    BlockType `json:"type"`
	Section string    `json:"section,omitempty"`
	Content string    `json:"content"`
}

// PersonaCount is the fixed number of persona opinions stored per article.
const PersonaCount = 5

// Explanation is the cached AI output for one article.
type Explanation struct {
	ArticleID       string           `json:"article_id"`
	Blocks          []Block          `json:"blocks"`
	Personas        []string         `json:"personas"`
	QuickUnderstand *QuickUnderstand `json:"quick_understand,omitempty"`
	Vote            *VoteQuestion    `json:"vote,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// QuickUnderstand is the three line "what / why / how" digest.
type QuickUnderstand struct {
	What string `json:"what"`
	Why  string `json:"why"`
	How  string `json:"how"`
}

// VoteQuestion is a reader poll suggested by the AI.
type VoteQuestion struct {
	Question string       `json:"question"`
	Options  []VoteOption `json:"options"`
}

// VoteOption is a single poll choice.
type VoteOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Trend is a trending search keyword.
type Trend struct {
	ID      string `json:"id"`
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
}

// Keywords extracts the keyword strings from trends.
func Keywords(trends []Trend) []string {
	out := make([]string, 0, len(trends))
	for _, t := range trends {
		out = append(out, t.Keyword)
	}
	return out
}

// DailyContent is the once-a-day AI memo with persona comments.
type DailyContent struct {
	Date            string           `json:"date"`
	Memo            string           `json:"memo"`
	PersonaComments []PersonaComment `json:"persona_comments"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// PersonaComment is a short persona remark on the day's news.
type PersonaComment struct {
	Name    string `json:"name"`
	Emoji   string `json:"emoji"`
	Comment string `json:"comment"`
}

// Pagination describes one page of the index listing.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasPrev    bool `json:"has_prev"`
	HasNext    bool `json:"has_next"`
}

// CategoryGroup is a category heading with its articles.
type CategoryGroup struct {
	Category string    `json:"category"`
	Articles []Article `json:"articles"`
}

// EventArticlePublished names the PublishedEvent topic.
const EventArticlePublished = "article.published"

// PublishedEvent is emitted when an article becomes visible on the site.
type PublishedEvent struct {
	ArticleID   string    `json:"article_id"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
}

// JobKind enumerates background ingestion work.
type JobKind string

// Job kinds accepted by the worker pool.
const (
	JobKindRefresh   JobKind = "refresh"
	JobKindSeedOne   JobKind = "seed_one"
	JobKindSeedBatch JobKind = "seed_batch"
	JobKindForceAdd  JobKind = "force_add"
	JobKindManual    JobKind = "manual"
)

// JobStatus represents the lifecycle state of a background job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// ManualInput is the admin-submitted article outline.
type ManualInput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Link    string `json:"link"`
	Source  string `json:"source"`
}

// Result is the outcome reported by ingestion operations.
type Result struct {
	Status    string  `json:"status"`
	ArticleID *string `json:"article_id"`
	Message   string  `json:"message,omitempty"`
	Added     int     `json:"added,omitempty"`
	Total     int     `json:"total,omitempty"`
}

// Result status values.
const (
	ResultOK       = "ok"
	ResultNone     = "none"
	ResultError    = "error"
	ResultDisabled = "disabled"
)

// Job is the metadata tracked for each queued background task.
type Job struct {
	ID        string       `json:"id"`
	Kind      JobKind      `json:"kind"`
	Status    JobStatus    `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Manual    *ManualInput `json:"-"`
	Result    *Result      `json:"result,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID  string
	Kind   JobKind
	Manual *ManualInput
}
