// Package extract pulls readable article text out of raw HTML pages.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	// MinCandidateRunes is the length a container must exceed to be accepted.
	MinCandidateRunes = 200
	// MinBodyRunes is the shortest extraction worth returning.
	MinBodyRunes = 100
	// MaxBodyRunes caps extracted text.
	MaxBodyRunes = 50000
)

const noiseSelector = "script, style, nav, header, footer, aside, form, iframe, noscript"

// mainSelectors approximate a readability pass: semantic containers first.
var mainSelectors = []string{"article", "[role=main]", "main"}

var contentSelectors = []string{
	".article-body",
	".article-content",
	".post-content",
	".entry-content",
	".content-body",
	".news-body",
	".post-body",
	".article__body",
	".newsContent",
	"#main",
	"#content",
	".main-content",
	".entry",
}

// ContainerSelector matches every container Text looks at, main containers
// first, as one CSS selector list.
func ContainerSelector() string {
	all := make([]string, 0, len(mainSelectors)+len(contentSelectors))
	all = append(all, mainSelectors...)
	all = append(all, contentSelectors...)
	return strings.Join(all, ", ")
}

// Text returns the main body text of page, or "" when nothing substantial is found.
func Text(page []byte) string {
	if len(bytes.TrimSpace(page)) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	doc.Find(noiseSelector).Remove()

	text := ""
	for _, group := range [][]string{mainSelectors, contentSelectors} {
		if text = firstCandidate(doc, group); text != "" {
			break
		}
	}
	if text == "" {
		text = blockText(doc.Find("body"))
	}
	if news.RuneLen(text) < MinBodyRunes {
		return ""
	}
	return news.Truncate(text, MaxBodyRunes)
}

func firstCandidate(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		text := blockText(found.First())
		if news.RuneLen(text) > MinCandidateRunes {
			return text
		}
	}
	return ""
}

// blockText joins the non-empty text nodes under s, one per line.
func blockText(s *goquery.Selection) string {
	var parts []string
	collectText(s, &parts)
	return strings.Join(parts, "\n")
}

func collectText(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := strings.Join(strings.Fields(c.Text()), " "); t != "" {
				*parts = append(*parts, t)
			}
			return
		}
		collectText(c, parts)
	})
}

// Image returns the page's preview image: og:image, twitter:image, then the first <img src>.
// Relative or data URLs are ignored.
func Image(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	for _, sel := range []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && isAbsolute(v) {
			return strings.TrimSpace(v)
		}
	}
	src := ""
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		v, _ := img.Attr("src")
		if isAbsolute(v) {
			src = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return src
}

func isAbsolute(u string) bool {
	u = strings.TrimSpace(u)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
