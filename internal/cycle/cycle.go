// Package cycle runs one full pipeline pass: fetch, dedupe, score,
// select, publish every selection and record the outcome. Only one cycle
// runs at a time; a second trigger is rejected with ErrCycleInProgress.
package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/worldnews/internal/history"
	"github.com/deusflow/worldnews/internal/metrics"
	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/publish"
	"github.com/deusflow/worldnews/internal/source"
	"github.com/deusflow/worldnews/internal/storage"
)

var (
	ErrCycleInProgress = errors.New("a cycle is already in progress")
	ErrNotConfigured   = errors.New("cycle controller is missing a collaborator")
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusNoStories Status = "no_stories"
)

type Fetcher interface {
	FetchAll(ctx context.Context) source.Result
}

type Publisher interface {
	PublishAll(ctx context.Context, stories []news.Story) []*publish.Attempt
}

type Report struct {
	ID             string            `json:"id"`
	Status         Status            `json:"status"`
	Message        string            `json:"message,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	Fetched        int               `json:"fetched"`
	Unique         int               `json:"unique"`
	SkippedPosted  int               `json:"skipped_published"`
	Selected       int               `json:"selected"`
	SourceFailures []string          `json:"source_failures,omitempty"`
	Attempts       []publish.Attempt `json:"attempts"`
	Succeeded      int               `json:"succeeded"`
	Failed         int               `json:"failed"`
}

type Config struct {
	StoriesPerCycle int
	SkipPublished   bool
}

type Controller struct {
	cfg       Config
	fetcher   Fetcher
	publisher Publisher
	history   *history.Log
	scorer    *news.Scorer
	archive   storage.Archive
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *slog.Logger

	running atomic.Bool

	mu   sync.RWMutex
	last *Report
}

type Option func(*Controller)

func WithArchive(a storage.Archive) Option { return func(c *Controller) { c.archive = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Controller) { c.metrics = m } }

func WithScorer(s *news.Scorer) Option { return func(c *Controller) { c.scorer = s } }

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

func New(cfg Config, fetcher Fetcher, publisher Publisher, hist *history.Log, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StoriesPerCycle < 1 {
		cfg.StoriesPerCycle = 3
	}
	c := &Controller{
		cfg:       cfg,
		fetcher:   fetcher,
		publisher: publisher,
		history:   hist,
		scorer:    news.NewScorer(),
		now:       time.Now,
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run executes one cycle. Story and source failures are recorded in the
// report; an error is returned only when the cycle could not run at all.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	if c.fetcher == nil || c.publisher == nil || c.history == nil {
		return nil, ErrNotConfigured
	}
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer c.running.Store(false)

	start := c.now()
	report := &Report{ID: uuid.NewString(), Status: StatusCompleted, StartedAt: start}
	log := c.logger.With("cycle", report.ID)
	log.Info("news cycle started")

	res := c.fetcher.FetchAll(ctx)
	report.Fetched = len(res.Stories)
	for _, f := range res.Failures {
		report.SourceFailures = append(report.SourceFailures, f.Error())
		if c.metrics != nil {
			c.metrics.SourceFailures.WithLabelValues(f.Source).Inc()
		}
	}

	unique, stats := news.Dedupe(res.Stories, start)
	report.Unique = len(unique)
	if c.metrics != nil {
		c.metrics.StoriesFetched.Add(float64(len(res.Stories)))
		c.metrics.DuplicatesFound.Add(float64(stats.Dropped()))
	}

	candidates := c.skipPublished(ctx, unique, report)
	if len(candidates) == 0 {
		report.Status = StatusNoStories
		report.Message = "no stories found"
		log.Warn("no stories found", "sources", len(res.Queried), "failed_sources", len(res.Failures))
		return c.finish(report, nil), nil
	}

	scored := c.scorer.Annotate(candidates, start)
	selected := news.Select(scored, c.cfg.StoriesPerCycle)
	report.Selected = len(selected)
	for i, s := range selected {
		log.Info("story selected", "rank", i+1, "score", s.ViralScore, "region", s.Region, "title", news.Truncate(s.Title, 80, "..."))
	}

	attempts := c.publisher.PublishAll(ctx, selected)
	c.history.Append(attempts...)
	for _, a := range attempts {
		report.Attempts = append(report.Attempts, *a)
		if a.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
		if c.metrics != nil {
			c.metrics.RecordPublish(a.Success)
		}
	}
	archiveErr := c.record(ctx, selected, attempts)

	return c.finish(report, archiveErr), nil
}

// LastReport returns the most recent finished cycle, or nil.
func (c *Controller) LastReport() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	cp := *c.last
	return &cp
}

// Running reports whether a cycle is in progress.
func (c *Controller) Running() bool {
	return c.running.Load()
}

func (c *Controller) skipPublished(ctx context.Context, stories []news.Story, report *Report) []news.Story {
	if !c.cfg.SkipPublished || c.archive == nil {
		return stories
	}
	out := make([]news.Story, 0, len(stories))
	for _, s := range stories {
		posted, err := c.archive.WasPublished(ctx, news.StoryKey(s))
		if err != nil {
			c.logger.Warn("archive lookup failed", "error", err)
		}
		if posted {
			report.SkippedPosted++
			continue
		}
		out = append(out, s)
	}
	return out
}

// record writes attempts to the archive and returns the last write error.
func (c *Controller) record(ctx context.Context, stories []news.Story, attempts []*publish.Attempt) error {
	if c.archive == nil {
		return nil
	}
	var lastErr error
	for i, a := range attempts {
		if i >= len(stories) {
			break
		}
		s := stories[i]
		err := c.archive.Record(ctx, storage.Record{
			Key:         news.StoryKey(s),
			Title:       s.Title,
			URL:         s.URL,
			Source:      s.Source,
			Region:      string(s.Region),
			PostID:      a.PostID,
			Success:     a.Success,
			PublishedAt: a.FinishedAt,
		})
		if err != nil {
			c.logger.Error("failed to archive attempt", "attempt", a.ID, "error", err)
			lastErr = err
		}
	}
	if n, err := c.archive.Cleanup(ctx); err != nil {
		c.logger.Warn("archive cleanup failed", "error", err)
	} else if n > 0 {
		c.logger.Info("archive cleaned", "removed", n)
	}
	return lastErr
}

// finish stamps the report and publishes it. A non-nil err marks the
// service unhealthy until a later cycle finishes cleanly.
func (c *Controller) finish(report *Report, err error) *Report {
	report.FinishedAt = c.now()
	c.history.SetLastRun(report.FinishedAt)
	if c.metrics != nil {
		c.metrics.RecordCycle(report.FinishedAt, report.FinishedAt.Sub(report.StartedAt), err)
	}

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	c.logger.Info("news cycle finished",
		"cycle", report.ID,
		"status", report.Status,
		"selected", report.Selected,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"took", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
	return report
}
