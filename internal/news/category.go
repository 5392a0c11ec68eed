package news

import (
	"sort"
	"strings"
	"time"
)

// Category names shown on the site.
const (
	CategoryGeneral       = "総合"
	CategoryDomestic      = "国内"
	CategoryInternational = "国際"
	CategoryTechnology    = "テクノロジー"
	CategoryPolitics      = "政治・社会"
	CategorySports        = "スポーツ"
	CategoryEntertainment = "エンタメ"
)

// CategoryOrder is the display order of the index page.
var CategoryOrder = []string{
	CategoryGeneral,
	CategoryDomestic,
	CategoryInternational,
	CategoryTechnology,
	CategoryPolitics,
	CategorySports,
	CategoryEntertainment,
}

type categoryRule struct {
	category string
	keywords []string
}

// Checked in order; the first matching rule wins.
var categoryRules = []categoryRule{
	{CategorySports, []string{"野球", "サッカー", "試合", "選手", "ゴルフ", "テニス", "NBA", "MLB", "オリンピック", "世界選手権"}},
	{CategoryEntertainment, []string{"映画", "ドラマ", "俳優", "女優", "アイドル", "歌手", "コンサート", "ライブ", "芸能"}},
}

// DetectCategory overrides a feed's category when the title clearly belongs to another.
func DetectCategory(title, fallback string) string {
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(title, kw) {
				return rule.category
			}
		}
	}
	return fallback
}

// GroupByCategory buckets articles by category in CategoryOrder. Categories
// outside the known order follow in first-seen order.
func GroupByCategory(articles []Article) []CategoryGroup {
	buckets := make(map[string][]Article)
	var extra []string
	known := make(map[string]struct{}, len(CategoryOrder))
	for _, c := range CategoryOrder {
		known[c] = struct{}{}
	}
	for _, a := range articles {
		if _, ok := buckets[a.Category]; !ok {
			if _, isKnown := known[a.Category]; !isKnown {
				extra = append(extra, a.Category)
			}
		}
		buckets[a.Category] = append(buckets[a.Category], a)
	}
	var groups []CategoryGroup
	for _, c := range append(append([]string(nil), CategoryOrder...), extra...) {
		if items := buckets[c]; len(items) > 0 {
			groups = append(groups, CategoryGroup{Category: c, Articles: items})
		}
	}
	return groups
}

var foreignSources = map[string]struct{}{
	"Reuters":                  {},
	"AP News":                  {},
	"BBC News":                 {},
	"共同通信":                     {},
	"World News International": {},
	"Le Monde":                 {},
}

// IsForeign reports whether an article needs Japanese translation, either
// because of its source or because its text is mostly ASCII.
func IsForeign(source, title, summary string) bool {
	if _, ok := foreignSources[source]; ok {
		return true
	}
	text := title + " " + summary
	total := RuneLen(text)
	if total < 5 {
		return false
	}
	ascii := 0
	for _, r := range text {
		if r < 128 {
			ascii++
		}
	}
	return float64(ascii)/float64(total) > 0.5
}

var sourceWeights = map[string]float64{
	"Yahoo!ニュース": 1.2,
	"NHK":        1.2,
	"読売新聞オンライン":  1.2,
	"共同通信":       1.1,
	"Reuters":    1.0,
	"AP News":    1.0,
	"BBC News":   1.0,
}

// SourceWeight is a proxy for Japanese readership and reliability.
func SourceWeight(source string) float64 {
	if w, ok := sourceWeights[source]; ok {
		return w
	}
	return 1.0
}

// TrendMatches counts trend keywords found in the article title or summary.
func TrendMatches(a Article, keywords []string) int {
	text := a.Title + " " + a.Summary
	n := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

// TrendScore is matches*10 plus the source weight.
func TrendScore(a Article, keywords []string) float64 {
	return float64(TrendMatches(a, keywords)*10) + SourceWeight(a.Source)
}

// RankByTrending orders articles by trend score then recency, both descending.
// Ties keep their input order.
func RankByTrending(items []Article, keywords []string) []Article {
	out := append([]Article(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := TrendScore(out[i], keywords), TrendScore(out[j], keywords)
		if si != sj {
			return si > sj
		}
		return out[i].Published.After(out[j].Published)
	})
	return out
}

// SortByPublished orders articles newest first.
func SortByPublished(items []Article) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
}

// PublishedSince returns articles published after cutoff.
func PublishedSince(items []Article, cutoff time.Time) []Article {
	var out []Article
	for _, a := range items {
		if a.Published.After(cutoff) {
			out = append(out, a)
		}
	}
	return out
}
