// Package app wires every collaborator from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/deusflow/worldnews/internal/cache"
	"github.com/deusflow/worldnews/internal/config"
	"github.com/deusflow/worldnews/internal/cycle"
	"github.com/deusflow/worldnews/internal/gemini"
	"github.com/deusflow/worldnews/internal/groq"
	"github.com/deusflow/worldnews/internal/history"
	"github.com/deusflow/worldnews/internal/logger"
	"github.com/deusflow/worldnews/internal/metrics"
	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/newsapi"
	"github.com/deusflow/worldnews/internal/publish"
	"github.com/deusflow/worldnews/internal/ratelimit"
	"github.com/deusflow/worldnews/internal/rss"
	"github.com/deusflow/worldnews/internal/scheduler"
	"github.com/deusflow/worldnews/internal/server"
	"github.com/deusflow/worldnews/internal/source"
	"github.com/deusflow/worldnews/internal/storage"
	"github.com/deusflow/worldnews/internal/synth"
	"github.com/deusflow/worldnews/internal/telegram"
	"github.com/deusflow/worldnews/internal/video"
	"github.com/deusflow/worldnews/internal/voice"
)

// App holds the wired pipeline.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	Metrics    *metrics.Metrics
	Fetcher    *source.Fetcher
	Budget     *ratelimit.Budget
	History    *history.Log
	Controller *cycle.Controller
	Scheduler  *scheduler.Scheduler
	Server     *server.Server

	headlines *newsapi.Client
	launcher  *telegram.Launcher
	publisher *publish.Publisher
	archive   storage.Archive
	scripts   *cache.Cache[string]
	closers   []func()
}

// New builds the application. Missing credentials are not an error: the
// matching collaborator is left out and the pipeline degrades around it.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = logger.Init(cfg.LogLevel, cfg.LogFormat)
	}
	a := &App{cfg: cfg, logger: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.registry)

	a.Fetcher = a.buildFetcher()

	synthesizer, err := a.buildSynthesizer(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.launcher = telegram.NewLauncher("", 60*time.Second, log.With("component", "telegram"))
	a.publisher = publish.NewPublisher(a.launcher, synthesizer, publish.Options{
		Credentials:  publish.Credentials{Account: cfg.TelegramChatID, Secret: cfg.TelegramToken},
		CaptionRunes: cfg.CaptionScriptRunes,
		Interval:     cfg.PostInterval,
	}, log.With("component", "publish"))

	archive, err := storage.Open(ctx, cfg.ArchiveDriver, cfg.DatabaseURL, cfg.ArchivePath,
		time.Duration(cfg.PublishedTTLHours)*time.Hour)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a.archive = archive

	a.History = history.New(cfg.HistorySize)
	opts := []cycle.Option{cycle.WithMetrics(a.Metrics)}
	if archive != nil {
		opts = append(opts, cycle.WithArchive(archive))
		a.closers = append(a.closers, func() {
			if err := archive.Close(); err != nil {
				log.Warn("failed to close archive", "error", err)
			}
		})
	}
	a.Controller = cycle.New(cycle.Config{
		StoriesPerCycle: cfg.StoriesPerCycle,
		SkipPublished:   cfg.SkipPublished,
	}, a.Fetcher, a.publisher, a.History, log.With("component", "cycle"), opts...)

	a.Scheduler = scheduler.New(scheduler.Options{
		Interval:   cfg.ScheduleInterval,
		RunOnStart: cfg.RunOnStart,
		StartDelay: cfg.StartDelay,
	}, a.Controller.Run, log.With("component", "scheduler"))

	a.Server = server.New(server.Deps{
		Cycler:     a.Controller,
		History:    a.History,
		Metrics:    a.Metrics,
		Budget:     a.Budget,
		Gatherer:   a.registry,
		Configured: cfg.Configured(),
		Probes:     a.probes(),
		Publisher:  a.publisher,
		Interval:   cfg.ScheduleInterval,
	}, log.With("component", "http"))

	log.Info("application wired",
		"configured", cfg.Configured(),
		"countries", len(cfg.Countries),
		"feeds", len(cfg.Feeds),
		"archive", cfg.ArchiveDriver,
	)
	return a, nil
}

func (a *App) buildFetcher() *source.Fetcher {
	cfg := a.cfg
	feeds := make([]source.Descriptor, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		feeds = append(feeds, source.Descriptor{
			Name:    f.Name,
			Kind:    news.KindFeed,
			Country: f.Country,
			URL:     f.URL,
			Limit:   f.Limit,
		})
	}

	var headlines source.HeadlineClient
	if cfg.NewsAPIKey != "" {
		a.headlines = newsapi.NewClient(cfg.NewsAPIBaseURL, cfg.NewsAPIKey, cfg.SourceTimeout)
		headlines = a.headlines
	} else {
		a.logger.Warn("NEWS_API_KEY not set, headline sources disabled")
	}

	return source.NewFetcher(source.Config{
		Countries:         cfg.Countries,
		CountriesPerCycle: cfg.CountriesPerCycle,
		HeadlinePageSize:  cfg.HeadlinePageSize,
		Feeds:             feeds,
		FeedsPerCycle:     cfg.FeedsPerCycle,
		FeedItemLimit:     cfg.FeedItemLimit,
		Concurrency:       cfg.FetchConcurrency,
		HeadlineInterval:  cfg.SourceDelay,
		FeedInterval:      cfg.SourceDelay,
		Timeout:           cfg.SourceTimeout,
	}, headlines, rss.NewClient(cfg.SourceTimeout, cfg.UserAgent), a.logger.With("component", "source"))
}

func (a *App) buildSynthesizer(ctx context.Context) (*synth.Synthesizer, error) {
	cfg := a.cfg
	var models []synth.ScriptModel
	limits := map[string]int{}

	if cfg.GroqAPIKey != "" {
		models = append(models, groq.NewClient(cfg.GroqAPIKey, "", cfg.GroqModel))
		limits["groq"] = 0
	}
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		models = append(models, g)
		limits["gemini"] = 0
	}
	a.Budget = ratelimit.NewBudget(limits, cfg.MaxModelRequests, a.logger.With("component", "budget"))
	a.scripts = cache.New[string](10 * time.Minute)
	a.closers = append(a.closers, a.scripts.Close)

	opts := []synth.Option{
		synth.WithModels(models...),
		synth.WithBudget(a.Budget),
		synth.WithCache(a.scripts),
		synth.WithStageObserver(func(stage string, outcome synth.Outcome) {
			a.Metrics.RecordStage(stage, string(outcome))
		}),
	}

	if cfg.ElevenLabsKey != "" {
		opts = append(opts, synth.WithVoice(voice.NewClient("", cfg.ElevenLabsKey, cfg.VoiceID, 60*time.Second)))
	}

	if cfg.EnableVideo {
		enc := video.NewEncoder(cfg.FFmpegPath, cfg.MediaDir, a.logger.With("component", "video")).WithFont(cfg.FontFile)
		if err := enc.Available(); err != nil {
			a.logger.Warn("video rendering disabled", "error", err)
		} else {
			opts = append(opts, synth.WithEncoder(enc))
		}
	}

	s := synth.New(synth.Options{
		ScriptTimeout: cfg.ScriptTimeout,
		CacheTTL:      cfg.ScriptCacheTTL,
		MediaDir:      cfg.MediaDir,
		VideoDuration: cfg.VideoDuration,
	}, a.logger.With("component", "synth"), opts...)
	if !s.HasModels() {
		a.logger.Warn("no script model configured, template scripts only")
	}
	return s, nil
}

// probes checks the credentials that can be verified cheaply.
func (a *App) probes() map[string]server.Probe {
	probes := map[string]server.Probe{}
	if a.headlines != nil {
		probes["newsapi"] = func(ctx context.Context) error {
			items, err := a.headlines.TopHeadlines(ctx, "us", 1)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return errors.New("no articles returned")
			}
			return nil
		}
	}
	creds := publish.Credentials{Account: a.cfg.TelegramChatID, Secret: a.cfg.TelegramToken}
	probes["telegram"] = func(ctx context.Context) error {
		if !creds.Valid() {
			return publish.ErrMissingCredentials
		}
		d, err := a.launcher.Launch(ctx)
		if err != nil {
			return err
		}
		defer d.Close()
		return d.Authenticate(ctx, creds)
	}
	return probes
}

// Serve runs the scheduler and HTTP server until SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Scheduler.Start(ctx)
	defer a.Scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Start(fmt.Sprintf(":%d", a.cfg.Port))
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http server shutdown", "error", err)
	}
	return nil
}

// RunOnce executes a single cycle and returns its report.
func (a *App) RunOnce(ctx context.Context) (*cycle.Report, error) {
	return a.Controller.Run(ctx)
}

// Plan lists the sources the next cycle would query.
func (a *App) Plan() []source.Descriptor {
	return a.Fetcher.Plan()
}

// Summary renders a report for the terminal.
func Summary(r *cycle.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %s: %s\n", r.ID, r.Status)
	fmt.Fprintf(&b, "fetched %d, unique %d, selected %d, succeeded %d, failed %d\n",
		r.Fetched, r.Unique, r.Selected, r.Succeeded, r.Failed)
	for _, f := range r.SourceFailures {
		fmt.Fprintf(&b, "  source failure: %s\n", f)
	}
	for i, at := range r.Attempts {
		status := "ok"
		if !at.Success {
			status = "failed: " + at.Reason
		}
		fmt.Fprintf(&b, "%d. [%s, score %d] %s (%s)\n", i+1, at.Story.Region, at.Story.Score,
			news.Truncate(at.Story.Title, 70, "..."), status)
	}
	return b.String()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
