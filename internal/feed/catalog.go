package feed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// Source is one RSS/Atom feed with the label and category shown on the site.
type Source struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"source"`
	Category string `yaml:"category"`
}

type catalogFile struct {
	Feeds []Source `yaml:"feeds"`
}

// DefaultCatalog lists the feeds harvested when no catalog file is configured.
func DefaultCatalog() []Source {
	return []Source{
		{URL: "https://www.nhk.or.jp/rss/news/cat0.xml", Name: "NHK", Category: news.CategoryDomestic},
		{URL: "https://english.kyodonews.net/list/feed/rss4kyodonews-fzone", Name: "共同通信", Category: news.CategoryInternational},
		{URL: "https://feeds.reuters.com/reuters/topNews", Name: "Reuters", Category: news.CategoryInternational},
		{URL: "http://hosted2.ap.org/atom/APDEFAULT/3d281c11a96b4ad082fe88aa0db04305", Name: "AP News", Category: news.CategoryInternational},
		{URL: "https://news.yahoo.co.jp/rss/topics/top-picks.xml", Name: "Yahoo!ニュース", Category: news.CategoryGeneral},
		{URL: "http://feeds.bbci.co.uk/news/rss.xml", Name: "BBC News", Category: news.CategoryInternational},
		{URL: "https://rss.yomiuri.co.jp/f/yol_topstories", Name: "読売新聞オンライン", Category: news.CategoryPolitics},
	}
}

// LoadCatalog reads feeds from a YAML file. An empty path yields the default catalog.
func LoadCatalog(path string) ([]Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode feeds file: %w", err)
	}
	if len(file.Feeds) == 0 {
		return nil, errors.New("feeds file lists no feeds")
	}
	for i := range file.Feeds {
		f := &file.Feeds[i]
		f.URL = strings.TrimSpace(f.URL)
		if f.URL == "" {
			return nil, fmt.Errorf("feeds[%d]: url is required", i)
		}
		if f.Name == "" {
			return nil, fmt.Errorf("feeds[%d]: source is required", i)
		}
		if f.Category == "" {
			f.Category = news.CategoryGeneral
		}
	}
	return file.Feeds, nil
}
