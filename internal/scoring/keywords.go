// Package scoring ranks candidate articles by search potential and explanatory value.
package scoring

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// MinContentRunes is the shortest title+summary worth explaining.
const MinContentRunes = 80

var lowValueCategories = map[string]struct{}{
	news.CategorySports:        {},
	news.CategoryEntertainment: {},
}

// 速報 is deliberately absent so breaking news passes.
var lowValueTitle = regexp.MustCompile(`(?i)(号外|訃報|結果|スコア|芸能|ランキング|占い|星座|ゴシップ|breaking\s*:?\s*$|score|results|obituary|gossip)`)

// HighValueKeywords mark policy, economy and science stories.
var HighValueKeywords = []string{
	"政策", "法案", "経済", "規制", "金利", "インフレ", "GDP", "予算", "制裁",
	"半導体", "AI", "量子", "脱炭素", "再生可能エネルギー", "外交", "安全保障",
	"サミット", "条約", "改革", "選挙", "判決", "裁判", "汚職", "調査",
	"policy", "regulation", "economy", "inflation", "legislation", "sanctions",
	"semiconductor", "quantum", "climate", "diplomacy", "summit", "reform",
	"election", "ruling", "investigation",
}

// QuestionWords are appended to keywords to match "what is X" style searches.
var QuestionWords = []string{"何", "とは", "いつ", "どうして", "なぜ", "どう", "どこ", "誰"}

var keywordPattern = regexp.MustCompile(`[\x{3040}-\x{9fff}ー]{2,}|[a-zA-Z]{3,}`)

// LightweightFilter reports whether an article is worth scoring at all.
func LightweightFilter(title, summary, category string) bool {
	text := title + " " + summary
	if news.RuneLen(strings.TrimSpace(text)) < MinContentRunes {
		return false
	}
	if lowValueTitle.MatchString(title) && !hasHighValue(text) {
		return false
	}
	if _, low := lowValueCategories[category]; low && !hasHighValue(text) {
		return false
	}
	return true
}

func hasHighValue(text string) bool {
	return HighValueCount(text) > 0
}

// HighValueCount counts the distinct high-value keywords present in text.
func HighValueCount(text string) int {
	n := 0
	for _, kw := range HighValueKeywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

// ExtractKeywords returns up to 30 kana/kanji or latin words from the article, deduplicated case-insensitively.
func ExtractKeywords(title, summary string) []string {
	text := news.Truncate(title+" "+summary, 2000)
	var words []string
	seenExact := make(map[string]struct{})
	for _, w := range keywordPattern.FindAllString(text, -1) {
		if _, ok := seenExact[w]; ok {
			continue
		}
		seenExact[w] = struct{}{}
		words = append(words, w)
		if len(words) == 40 {
			break
		}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, w := range words {
		key := strings.ToLower(w)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
		if len(out) == 30 {
			break
		}
	}
	return out
}

// NGrams joins each run of n adjacent keywords with a space, up to 20 phrases.
func NGrams(keywords []string, n int) []string {
	if n <= 0 {
		return nil
	}
	var out []string
	for i := 0; i+n <= len(keywords) && len(out) < 20; i++ {
		out = append(out, strings.Join(keywords[i:i+n], " "))
	}
	return out
}

// QuestionVariants pairs the first five keywords with the first three question words.
func QuestionVariants(keywords []string) []string {
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	var out []string
	for _, kw := range keywords {
		for _, qw := range QuestionWords[:3] {
			out = append(out, kw+" "+qw)
		}
	}
	return out
}
