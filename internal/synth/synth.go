// Package synth turns a selected story into publishable content: a
// narration script, a hashtag line and, when the media collaborators are
// configured, a rendered video.
//
// Every stage reports an explicit StageResult. A failing script model
// degrades to a templated script; failing media stages degrade to
// text-only content. Synthesize never returns an empty script.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/worldnews/internal/cache"
	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/ratelimit"
	"github.com/deusflow/worldnews/internal/video"
)

// Outcome tags a stage result.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "failed"
)

// StageResult is the tagged result of one synthesis stage.
type StageResult[T any] struct {
	Outcome Outcome
	Value   T
	Reason  string
}

func ok[T any](v T) StageResult[T] { return StageResult[T]{Outcome: OutcomeOK, Value: v} }

func degraded[T any](v T, reason string) StageResult[T] {
	return StageResult[T]{Outcome: OutcomeDegraded, Value: v, Reason: reason}
}

func failed[T any](reason string) StageResult[T] {
	return StageResult[T]{Outcome: OutcomeFailed, Reason: reason}
}

// ScriptModel generates script text from a prompt.
type ScriptModel interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Voice synthesizes speech audio.
type Voice interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Encoder renders a video clip and returns its path.
type Encoder interface {
	Render(ctx context.Context, spec video.Spec) (string, error)
}

// Artifact is a temporary media file. Release deletes it; repeated calls
// are no-ops.
type Artifact struct {
	Path string

	once sync.Once
	err  error
}

func (a *Artifact) Release() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.err = err
		}
	})
	return a.err
}

// Content is the synthesized output for one story.
type Content struct {
	Story    news.Story
	Script   StageResult[string]
	Hashtags string
	Audio    StageResult[*Artifact]
	Video    StageResult[*Artifact]
}

// TextContent is fixed, text-only content for story, bypassing every
// synthesis stage.
func TextContent(story news.Story, script, hashtags string) *Content {
	return &Content{
		Story:    story,
		Script:   ok(script),
		Hashtags: hashtags,
		Audio:    StageResult[*Artifact]{Outcome: OutcomeDegraded, Reason: "text only"},
		Video:    StageResult[*Artifact]{Outcome: OutcomeDegraded, Reason: "text only"},
	}
}

// Text returns the script, never empty.
func (c *Content) Text() string { return c.Script.Value }

// MediaPath is the video to upload, or "" for text-only publishing.
func (c *Content) MediaPath() string {
	if c == nil || c.Video.Value == nil {
		return ""
	}
	return c.Video.Value.Path
}

// ReleaseVideo deletes the video once it has been handed off.
func (c *Content) ReleaseVideo() error {
	if c == nil {
		return nil
	}
	return c.Video.Value.Release()
}

// Release deletes every artifact still on disk. Safe to call many times.
func (c *Content) Release() error {
	if c == nil {
		return nil
	}
	return errors.Join(c.Audio.Value.Release(), c.Video.Value.Release())
}

type Options struct {
	ScriptTimeout  time.Duration
	MediaTimeout   time.Duration
	MaxScriptRunes int
	CacheTTL       time.Duration
	MediaDir       string
	VideoDuration  int
}

type Option func(*Synthesizer)

// WithModels sets the script models, tried in order.
func WithModels(models ...ScriptModel) Option {
	return func(s *Synthesizer) { s.models = append(s.models, models...) }
}

func WithBudget(b *ratelimit.Budget) Option { return func(s *Synthesizer) { s.budget = b } }

func WithCache(c *cache.Cache[string]) Option { return func(s *Synthesizer) { s.cache = c } }

func WithVoice(v Voice) Option { return func(s *Synthesizer) { s.voice = v } }

func WithEncoder(e Encoder) Option { return func(s *Synthesizer) { s.encoder = e } }

// WithRand sets the source used to pick fallback phrases.
func WithRand(r *rand.Rand) Option { return func(s *Synthesizer) { s.rng = r } }

// WithStageObserver is called once per stage with its outcome.
func WithStageObserver(fn func(stage string, outcome Outcome)) Option {
	return func(s *Synthesizer) { s.observe = fn }
}

func WithClock(now func() time.Time) Option { return func(s *Synthesizer) { s.now = now } }

type Synthesizer struct {
	opts    Options
	models  []ScriptModel
	budget  *ratelimit.Budget
	cache   *cache.Cache[string]
	voice   Voice
	encoder Encoder
	observe func(string, Outcome)
	now     func() time.Time
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func New(opts Options, logger *slog.Logger, options ...Option) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = 20 * time.Second
	}
	if opts.MediaTimeout <= 0 {
		opts.MediaTimeout = 3 * time.Minute
	}
	if opts.MaxScriptRunes <= 0 {
		opts.MaxScriptRunes = 1200
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 6 * time.Hour
	}
	if opts.MediaDir == "" {
		opts.MediaDir = "media"
	}
	if opts.VideoDuration <= 0 {
		opts.VideoDuration = 60
	}

	s := &Synthesizer{
		opts:    opts,
		observe: func(string, Outcome) {},
		now:     time.Now,
		logger:  logger,
	}
	for _, o := range options {
		o(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// HasModels reports whether any script model is configured.
func (s *Synthesizer) HasModels() bool { return len(s.models) > 0 }

// Synthesize builds the content for one story. Callers must Release the
// returned content on every path.
func (s *Synthesizer) Synthesize(ctx context.Context, story news.Story) *Content {
	c := &Content{
		Story:    story,
		Hashtags: news.Hashtags(story),
	}

	c.Script = s.script(ctx, story)
	s.observe("script", c.Script.Outcome)

	c.Audio = s.audio(ctx, c.Script.Value)
	s.observe("voice", c.Audio.Outcome)

	c.Video = s.video(ctx, story, c.Audio.Value)
	s.observe("video", c.Video.Outcome)

	// Audio is only an input to rendering.
	if err := c.Audio.Value.Release(); err != nil {
		s.logger.Warn("failed to remove audio", "path", c.Audio.Value.Path, "error", err)
	}

	s.logger.Info("content synthesized",
		"title", news.Truncate(story.Title, 60, "..."),
		"script", c.Script.Outcome,
		"voice", c.Audio.Outcome,
		"video", c.Video.Outcome,
	)
	return c
}

func (s *Synthesizer) audio(ctx context.Context, script string) StageResult[*Artifact] {
	if s.voice == nil {
		return degraded[*Artifact](nil, "voice not configured")
	}

	text := StripEmoji(script)
	callCtx, cancel := context.WithTimeout(ctx, s.opts.MediaTimeout)
	defer cancel()

	data, err := s.voice.Synthesize(callCtx, text)
	if err != nil {
		s.logger.Warn("voice synthesis failed", "error", err)
		return failed[*Artifact](err.Error())
	}

	path, err := s.writeFile("audio", "voice_"+uuid.NewString()+".mp3", data)
	if err != nil {
		return failed[*Artifact](err.Error())
	}
	return ok(&Artifact{Path: path})
}

func (s *Synthesizer) video(ctx context.Context, story news.Story, audio *Artifact) StageResult[*Artifact] {
	if s.encoder == nil {
		return degraded[*Artifact](nil, "video encoder not configured")
	}

	spec := s.VideoSpec(story)
	if audio != nil {
		spec.AudioPath = audio.Path
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.MediaTimeout)
	defer cancel()

	path, err := s.encoder.Render(callCtx, spec)
	if err != nil {
		s.logger.Warn("video rendering failed", "error", err)
		return failed[*Artifact](err.Error())
	}
	return ok(&Artifact{Path: path})
}

func (s *Synthesizer) writeFile(sub, name string, data []byte) (string, error) {
	dir := filepath.Join(s.opts.MediaDir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}
