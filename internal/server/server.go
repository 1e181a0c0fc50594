// Package server exposes the bot's HTTP surface: status, recent posts,
// a manual trigger, a test post, health and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deusflow/worldnews/internal/cycle"
	"github.com/deusflow/worldnews/internal/history"
	"github.com/deusflow/worldnews/internal/metrics"
	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/publish"
	"github.com/deusflow/worldnews/internal/ratelimit"
)

const serviceName = "World News Bot"

type Cycler interface {
	Run(ctx context.Context) (*cycle.Report, error)
	LastReport() *cycle.Report
	Running() bool
}

// TestPublisher posts fixed content through the real publish driver.
type TestPublisher interface {
	PublishText(ctx context.Context, story news.Story, script, hashtags string) *publish.Attempt
}

// Probe checks one configured collaborator, e.g. that a credential works.
type Probe func(ctx context.Context) error

type Deps struct {
	Cycler     Cycler
	History    *history.Log
	Metrics    *metrics.Metrics
	Budget     *ratelimit.Budget
	Gatherer   prometheus.Gatherer
	Configured map[string]bool
	Probes     map[string]Probe
	Publisher  TestPublisher
	Interval   time.Duration
}

type Server struct {
	deps      Deps
	logger    *slog.Logger
	startedAt time.Time
	echo      *echo.Echo
}

func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger, startedAt: time.Now()}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.InfoContext(c.Request().Context(), "HTTP request completed",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"error", v.Error)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/", s.Status)
	e.GET("/posts", s.Posts)
	e.GET("/test", s.Test)
	e.POST("/trigger", s.Trigger)
	e.POST("/test-publish", s.TestPublish)
	e.GET("/health", s.Health)
	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	s.echo = e
	return s
}

// Handler returns the routed echo instance.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting HTTP server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Status(c echo.Context) error {
	lastRun := "not run yet"
	if s.deps.History != nil {
		if t := s.deps.History.LastRun(); !t.IsZero() {
			lastRun = t.Format(time.RFC3339)
		}
	}

	body := map[string]any{
		"status":      serviceName + " - ACTIVE",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(s.startedAt).Round(time.Second).String(),
		"last_run":    lastRun,
		"environment": s.deps.Configured,
	}
	if s.deps.Interval > 0 {
		body["schedule_interval"] = s.deps.Interval.String()
	}
	if s.deps.History != nil {
		body["posts_generated"] = s.deps.History.Len()
		body["posts_total"] = s.deps.History.Total()
	}
	if s.deps.Cycler != nil {
		body["cycle_running"] = s.deps.Cycler.Running()
		if r := s.deps.Cycler.LastReport(); r != nil {
			body["last_cycle"] = map[string]any{
				"id":        r.ID,
				"status":    r.Status,
				"selected":  r.Selected,
				"succeeded": r.Succeeded,
				"failed":    r.Failed,
			}
		}
	}
	if s.deps.Budget != nil {
		body["ai_budget"] = s.deps.Budget.Stats()
	}
	if s.deps.Metrics != nil {
		body["metrics"] = s.deps.Metrics.GetStats()
	}
	return c.JSON(http.StatusOK, body)
}

type postView struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Region   news.Region `json:"region"`
	Source   string      `json:"source"`
	Success  bool        `json:"success"`
	State    string      `json:"state"`
	Reason   string      `json:"reason,omitempty"`
	PostID   string      `json:"post_id,omitempty"`
	PostedAt time.Time   `json:"posted_at"`
}

func (s *Server) Posts(c echo.Context) error {
	posts := []postView{}
	if s.deps.History != nil {
		for _, a := range s.deps.History.Recent(0) {
			posts = append(posts, postView{
				ID:       a.ID,
				Title:    news.Truncate(a.Story.Title, 60, "..."),
				Region:   a.Story.Region,
				Source:   a.Story.Source,
				Success:  a.Success,
				State:    string(a.State),
				Reason:   a.Reason,
				PostID:   a.PostID,
				PostedAt: a.FinishedAt,
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"total":   len(posts),
		"posts":   posts,
	})
}

// Trigger runs one cycle synchronously. The cycle is detached from the
// request so a dropped client does not abort a publish halfway.
func (s *Server) Trigger(c echo.Context) error {
	if s.deps.Cycler == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"success": false, "error": "cycle controller not configured"})
	}

	report, err := s.deps.Cycler.Run(context.WithoutCancel(c.Request().Context()))
	switch {
	case errors.Is(err, cycle.ErrCycleInProgress):
		return c.JSON(http.StatusConflict, map[string]any{"success": false, "error": err.Error()})
	case err != nil:
		s.logger.Error("manual trigger failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
	}

	message := "Automation completed"
	if report.Status == cycle.StatusNoStories {
		message = report.Message
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":         true,
		"message":         message,
		"posts_generated": len(report.Attempts),
		"report":          report,
	})
}

// Test runs every registered probe and reports which collaborators work.
func (s *Server) Test(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.deps.Probes))
	for name := range s.deps.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]bool, len(names))
	var errs []string
	ready := len(names) > 0
	for _, name := range names {
		err := s.deps.Probes[name](ctx)
		results[name] = err == nil
		if err != nil {
			ready = false
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":              true,
		"results":              results,
		"errors":               errs,
		"ready_for_automation": ready,
	})
}

var testStory = news.Story{
	Title:    "World News Bot Test - Successfully Automated",
	Source:   "NewsBot",
	Region:   news.RegionInternational,
	Category: news.CategoryGeneral,
}

const (
	testScript   = "TEST: Your World News Bot is LIVE and posting automatically!"
	testHashtags = "#worldnews #automation #test"
)

// TestPublish posts a fixed test story, skipping synthesis, and returns
// the attempt. Like Trigger it is detached from the request context.
func (s *Server) TestPublish(c echo.Context) error {
	if s.deps.Publisher == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"success": false, "error": "publisher not configured"})
	}

	a := s.deps.Publisher.PublishText(context.WithoutCancel(c.Request().Context()), testStory, testScript, testHashtags)
	if !a.Success {
		s.logger.Warn("test publish failed", "reason", a.Reason)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": a.Success,
		"result":  a,
	})
}

func (s *Server) Health(c echo.Context) error {
	if s.deps.Metrics != nil && !s.deps.Metrics.IsHealthy() {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "unhealthy",
			"details": s.deps.Metrics.GetStats(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
