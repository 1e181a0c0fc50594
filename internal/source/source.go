// Package source queries every configured news source for one cycle and
// turns what comes back into normalized stories.
//
// Sources are independent: one failing never stops the others. Which
// countries and feeds are queried changes every cycle (a random sample
// without replacement) to stay inside third-party rate limits.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/deusflow/worldnews/internal/news"
)

// HeadlineClient is the headline-API kind of news source.
type HeadlineClient interface {
	TopHeadlines(ctx context.Context, country string, pageSize int) ([]news.RawItem, error)
}

// FeedClient is the syndication-feed kind of news source.
type FeedClient interface {
	Fetch(ctx context.Context, url string) ([]news.RawItem, error)
}

// Descriptor identifies one source to query.
type Descriptor struct {
	Name    string
	Kind    news.Kind
	Country string
	URL     string
	Limit   int
}

// SourceError records one source that could not be fetched.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }

// ErrNoClient is recorded when a descriptor's kind has no configured client.
var ErrNoClient = errors.New("no client configured")

// Result is what one fetch pass produced.
type Result struct {
	Stories  []news.Story
	Queried  []Descriptor
	Failures []SourceError
	Raw      int
	Dropped  int
}

// Config controls rotation, pacing and limits.
type Config struct {
	Countries         []string
	CountriesPerCycle int
	HeadlinePageSize  int
	Feeds             []Descriptor
	FeedsPerCycle     int
	FeedItemLimit     int
	Concurrency       int
	HeadlineInterval  time.Duration
	FeedInterval      time.Duration
	Timeout           time.Duration
}

// Fetcher is the source fetcher adapter.
type Fetcher struct {
	cfg       Config
	headlines HeadlineClient
	feeds     FeedClient
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	headlineLimiter *rate.Limiter
	feedLimiter     *rate.Limiter
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRand sets the random source used for rotation.
func WithRand(r *rand.Rand) Option {
	return func(f *Fetcher) { f.rng = r }
}

// NewFetcher builds a fetcher. Either client may be nil; descriptors of
// that kind are then skipped.
func NewFetcher(cfg Config, headlines HeadlineClient, feeds FeedClient, logger *slog.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.HeadlinePageSize < 1 {
		cfg.HeadlinePageSize = 5
	}
	if cfg.FeedItemLimit < 1 {
		cfg.FeedItemLimit = 5
	}

	f := &Fetcher{
		cfg:             cfg,
		headlines:       headlines,
		feeds:           feeds,
		logger:          logger,
		rng:             rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		headlineLimiter: newLimiter(cfg.HeadlineInterval),
		feedLimiter:     newLimiter(cfg.FeedInterval),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func newLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

// Plan picks the descriptors to query this cycle.
func (f *Fetcher) Plan() []Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()

	var plan []Descriptor
	if f.headlines != nil {
		for _, c := range Sample(f.rng, f.cfg.Countries, f.cfg.CountriesPerCycle) {
			plan = append(plan, Descriptor{
				Name:    "headlines:" + c,
				Kind:    news.KindHeadline,
				Country: c,
				Limit:   f.cfg.HeadlinePageSize,
			})
		}
	} else if len(f.cfg.Countries) > 0 {
		f.logger.Warn("headline source not configured, skipping countries", "countries", len(f.cfg.Countries))
	}

	if f.feeds != nil {
		plan = append(plan, Sample(f.rng, f.cfg.Feeds, f.cfg.FeedsPerCycle)...)
	}
	return plan
}

// FetchAll queries the planned sources in parallel and merges the
// normalized stories in plan order.
func (f *Fetcher) FetchAll(ctx context.Context) Result {
	return f.Fetch(ctx, f.Plan())
}

// Fetch queries the given descriptors.
func (f *Fetcher) Fetch(ctx context.Context, plan []Descriptor) Result {
	type outcome struct {
		stories []news.Story
		raw     int
		err     error
	}
	outcomes := make([]outcome, len(plan))

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)

	for i, d := range plan {
		g.Go(func() error {
			raw, err := f.fetchOne(ctx, d)
			if err != nil {
				f.logger.Warn("source fetch failed", "source", d.Name, "error", err)
				outcomes[i] = outcome{err: err}
				return nil
			}
			stories := make([]news.Story, 0, len(raw))
			for _, item := range raw {
				if s, ok := news.Normalize(item, d.Name, d.Country, d.Kind); ok {
					stories = append(stories, s)
				}
			}
			f.logger.Debug("source fetched", "source", d.Name, "items", len(raw), "kept", len(stories))
			outcomes[i] = outcome{stories: stories, raw: len(raw)}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Queried: plan}
	for i, o := range outcomes {
		if o.err != nil {
			res.Failures = append(res.Failures, SourceError{Source: plan[i].Name, Err: o.err})
			continue
		}
		res.Raw += o.raw
		res.Dropped += o.raw - len(o.stories)
		res.Stories = append(res.Stories, o.stories...)
	}

	f.logger.Info("sources processed",
		"queried", len(plan),
		"failed", len(res.Failures),
		"raw_items", res.Raw,
		"stories", len(res.Stories))
	return res
}

func (f *Fetcher) fetchOne(ctx context.Context, d Descriptor) ([]news.RawItem, error) {
	var limiter *rate.Limiter
	switch d.Kind {
	case news.KindHeadline:
		if f.headlines == nil {
			return nil, ErrNoClient
		}
		limiter = f.headlineLimiter
	case news.KindFeed:
		if f.feeds == nil {
			return nil, ErrNoClient
		}
		limiter = f.feedLimiter
	default:
		return nil, fmt.Errorf("unknown source kind %q", d.Kind)
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx := ctx
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	if d.Kind == news.KindHeadline {
		return f.headlines.TopHeadlines(callCtx, d.Country, d.Limit)
	}

	items, err := f.feeds.Fetch(callCtx, d.URL)
	if err != nil {
		return nil, err
	}
	limit := d.Limit
	if limit <= 0 {
		limit = f.cfg.FeedItemLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	for i := range items {
		if items[i].SourceName == "" {
			items[i].SourceName = d.Name
		}
	}
	return items, nil
}

// Sample returns n elements of items picked uniformly without
// replacement. n <= 0 or n >= len(items) returns a copy of all items in
// their original order.
func Sample[T any](rng *rand.Rand, items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	idx := rng.Perm(len(items))[:n]
	out := make([]T, n)
	for i, j := range idx {
		out[i] = items[j]
	}
	return out
}
