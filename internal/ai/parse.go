package ai

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	titleMarker   = "===タイトル==="
	summaryMarker = "===要約==="
)

var errNoBlocks = errors.New("ai: no usable blocks in response")

type rawBlock struct {
	Type    *string `json:"type"`
	Content *string `json:"content"`
}

// fencedJSON returns the first ``` fenced section starting with open, with an
// optional json language tag removed. raw is returned when none matches.
func fencedJSON(raw string, open byte) string {
	if !strings.Contains(raw, "```") {
		return raw
	}
	for _, part := range strings.Split(raw, "```") {
		part = strings.TrimSpace(part)
		if len(part) >= 4 && strings.EqualFold(part[:4], "json") {
			part = strings.TrimSpace(part[4:])
		}
		if part != "" && part[0] == open {
			return part
		}
	}
	return raw
}

// widest returns the span from the first open to the last close byte.
func widest(raw string, open, closing byte) string {
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, closing)
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}

// stripFence drops a leading ```lang line and a trailing fence.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	} else {
		text = ""
	}
	if i := strings.LastIndex(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// parseBlocks accepts either {"blocks": [...]} or a bare array. Every element
// must carry a text or explain type and a content string.
func parseBlocks(raw string) ([]news.Block, error) {
	raw = strings.TrimSpace(raw)
	var items []rawBlock
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, err
		}
	} else {
		var wrapper struct {
			Blocks []rawBlock `json:"blocks"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return nil, err
		}
		items = wrapper.Blocks
	}
	if len(items) == 0 {
		return nil, errNoBlocks
	}
	out := make([]news.Block, 0, len(items))
	for _, it := range items {
		if it.Type == nil || it.Content == nil {
			return nil, errNoBlocks
		}
		t := news.BlockType(*it.Type)
		if t != news.BlockText && t != news.BlockExplain {
			return nil, errNoBlocks
		}
		out = append(out, news.Block{Type: t, Content: *it.Content})
	}
	return out, nil
}

// parsePlainBlocks digs the block array out of free-form model output.
func parsePlainBlocks(raw string) ([]news.Block, error) {
	raw = fencedJSON(raw, '[')
	raw = widest(strings.TrimSpace(raw), '[', ']')
	return parseBlocks(raw)
}

func parseNavigator(raw string) ([]news.Block, error) {
	raw = fencedJSON(raw, '{')
	raw = widest(strings.TrimSpace(raw), '{', '}')
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	out := make([]news.Block, 0, len(NavigatorSections))
	for _, key := range NavigatorSections {
		text, _ := data[key].(string)
		out = append(out, news.Block{
			Type:    news.BlockNavigatorSection,
			Section: key,
			Content: strings.TrimSpace(text),
		})
	}
	return out, nil
}

func navigatorFallback(facts string) []news.Block {
	out := make([]news.Block, 0, len(NavigatorSections))
	for i, key := range NavigatorSections {
		b := news.Block{Type: news.BlockNavigatorSection, Section: key}
		if i == 0 {
			b.Content = facts
		}
		out = append(out, b)
	}
	return out
}

// parseRewrite reads the marker format of the translation prompt. Missing or
// empty parts keep the originals.
func parseRewrite(raw, title, summary string) (string, string) {
	_, rest, ok := strings.Cut(raw, titleMarker)
	if !ok {
		return title, summary
	}
	newTitle, newSummary, hasSummary := strings.Cut(rest, summaryMarker)
	if t := news.Truncate(strings.TrimSpace(newTitle), 200); t != "" {
		title = t
	}
	if hasSummary {
		if s := news.Truncate(strings.TrimSpace(newSummary), 500); s != "" {
			summary = s
		}
	}
	return title, summary
}
