// Package newsapi is a small client for the NewsAPI top-headlines endpoint.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/retry"
)

const DefaultBaseURL = "https://newsapi.org"

type Client struct {
	baseURL  string
	apiKey   string
	category string
	http     *http.Client
	retry    retry.RetryConfig
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		category: "general",
		http:     &http.Client{Timeout: timeout},
		retry:    retry.RetryConfig{MaxAttempts: 2, Delay: time.Second},
	}
}

type headlinesResponse struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// TopHeadlines returns the current headlines for one country.
func (c *Client) TopHeadlines(ctx context.Context, country string, pageSize int) ([]news.RawItem, error) {
	q := url.Values{}
	q.Set("country", strings.ToLower(country))
	q.Set("category", c.category)
	q.Set("pageSize", strconv.Itoa(pageSize))
	endpoint := c.baseURL + "/v2/top-headlines?" + q.Encode()

	var body headlinesResponse
	err := retry.WithRetry(ctx, c.retry, func() error {
		var err error
		body, err = c.get(ctx, endpoint)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("newsapi %s: %w", country, err)
	}

	items := make([]news.RawItem, 0, len(body.Articles))
	for _, a := range body.Articles {
		items = append(items, news.RawItem{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			SourceName:  a.Source.Name,
			PublishedAt: parseTime(a.PublishedAt),
		})
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (headlinesResponse, error) {
	var out headlinesResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, retry.Permanent(err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return out, fmt.Errorf("read body: %w", err)
	}

	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return out, statusError(resp.StatusCode, "")
		}
		return out, retry.Permanent(fmt.Errorf("decode: %w", err))
	}
	if resp.StatusCode != http.StatusOK || out.Status != "ok" {
		return out, statusError(resp.StatusCode, strings.TrimSpace(out.Code+" "+out.Message))
	}
	return out, nil
}

// 4xx responses (bad key, bad params, rate limited) won't get better on retry.
func statusError(code int, msg string) error {
	err := fmt.Errorf("status %d: %s", code, msg)
	if code >= 400 && code < 500 {
		return retry.Permanent(err)
	}
	return err
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}
