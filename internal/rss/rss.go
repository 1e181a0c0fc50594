package rss

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/worldnews/internal/news"
)

// SourcesConfig is the YAML layout of the sources file:
//
//	feeds:
//	  - name: Al Jazeera
//	    url: https://www.aljazeera.com/xml/rss/all.xml
//	    country: qa
//	countries: [us, gb, de]
type SourcesConfig struct {
	Feeds     []FeedSource `yaml:"feeds"`
	Countries []string     `yaml:"countries"`
}

// FeedSource describes one syndication feed.
type FeedSource struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Country string `yaml:"country"`
	Limit   int    `yaml:"limit"`
}

// DefaultFeeds are used when no sources file exists.
var DefaultFeeds = []FeedSource{
	{Name: "Reuters", URL: "http://feeds.reuters.com/reuters/topNews", Country: "global"},
	{Name: "AP News", URL: "https://feeds.apnews.com/rss/apf-topnews", Country: "us"},
	{Name: "Al Arabiya", URL: "https://english.alarabiya.net/rss.xml", Country: "ae"},
	{Name: "Al Jazeera", URL: "https://www.aljazeera.com/xml/rss/all.xml", Country: "qa"},
	{Name: "DW News", URL: "https://rss.dw.com/rdf/rss-en-all", Country: "de"},
	{Name: "France24", URL: "https://www.france24.com/en/rss", Country: "fr"},
}

// LoadSources reads the sources file. A missing file is not an error: the
// returned config is empty and callers fall back to their defaults.
func LoadSources(path string) (*SourcesConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SourcesConfig{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	for i, fs := range cfg.Feeds {
		if strings.TrimSpace(fs.URL) == "" {
			return nil, fmt.Errorf("feed #%d (%s) has no url", i+1, fs.Name)
		}
	}
	return &cfg, nil
}

// Client downloads and parses feeds.
type Client struct {
	parser *gofeed.Parser
}

// NewClient builds a feed client with its own HTTP timeout and user agent.
func NewClient(timeout time.Duration, userAgent string) *Client {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	return &Client{parser: p}
}

// Fetch parses one feed. Items carry a plain-text snippet in Description;
// markup from the feed is stripped.
func (c *Client) Fetch(ctx context.Context, url string) ([]news.RawItem, error) {
	feed, err := c.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	items := make([]news.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		snippet := Snippet(it.Description)
		if snippet == "" {
			snippet = Snippet(it.Content)
		}

		published := it.PublishedParsed
		if published == nil {
			published = it.UpdatedParsed
		}

		items = append(items, news.RawItem{
			Title:       Snippet(it.Title),
			Description: snippet,
			URL:         it.Link,
			PublishedAt: published,
		})
	}
	return items, nil
}

// Snippet turns feed HTML into collapsed plain text.
func Snippet(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	if !strings.ContainsAny(html, "<&") {
		return strings.Join(strings.Fields(html), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
