// Package publish drives one story through a publish driver session:
// authenticate, upload media, set the caption and submit. Each story gets
// exactly one Attempt that ends Succeeded or Failed; there is no retry
// inside an attempt.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/synth"
)

type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateUploading      State = "uploading"
	StateCaptioning     State = "captioning"
	StateSubmitting     State = "submitting"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Terminal reports whether s ends an attempt.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrNotConfirmed       = errors.New("submission not confirmed")
)

type Credentials struct {
	Account string
	Secret  string
}

func (c Credentials) Valid() bool { return c.Account != "" && c.Secret != "" }

// Receipt is what the platform reported after submit.
type Receipt struct {
	Confirmed bool
	PostID    string
}

// Driver is one exclusive platform session.
type Driver interface {
	Authenticate(ctx context.Context, creds Credentials) error
	UploadMedia(ctx context.Context, path string) error
	SetCaption(ctx context.Context, caption string) error
	Submit(ctx context.Context) (Receipt, error)
	Close() error
}

// Launcher opens a new driver session.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// Synthesizer produces the content for a story.
type Synthesizer interface {
	Synthesize(ctx context.Context, story news.Story) *synth.Content
}

// StoryRef is the part of a story kept in the attempt history.
type StoryRef struct {
	Title   string      `json:"title"`
	Source  string      `json:"source"`
	Country string      `json:"country,omitempty"`
	Region  news.Region `json:"region"`
	URL     string      `json:"url,omitempty"`
	Score   int         `json:"viral_score"`
}

func refOf(s news.Story) StoryRef {
	return StoryRef{
		Title:   s.Title,
		Source:  s.Source,
		Country: s.Country,
		Region:  s.Region,
		URL:     s.URL,
		Score:   s.ViralScore,
	}
}

type Attempt struct {
	ID            string        `json:"id"`
	Story         StoryRef      `json:"story"`
	Script        string        `json:"script"`
	Hashtags      string        `json:"hashtags"`
	MediaRef      string        `json:"media_ref,omitempty"`
	ScriptOutcome synth.Outcome `json:"script_outcome"`
	MediaOutcome  synth.Outcome `json:"media_outcome"`
	State         State         `json:"state"`
	Success       bool          `json:"success"`
	Reason        string        `json:"reason,omitempty"`
	PostID        string        `json:"post_id,omitempty"`
	Trace         []State       `json:"trace"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

func newAttempt(story news.Story, now time.Time) *Attempt {
	return &Attempt{
		ID:        uuid.NewString(),
		Story:     refOf(story),
		State:     StateIdle,
		Trace:     []State{StateIdle},
		StartedAt: now,
	}
}

func (a *Attempt) enter(s State) {
	if a.State.Terminal() {
		return
	}
	a.State = s
	a.Trace = append(a.Trace, s)
}

// finish moves the attempt to its terminal state. Only the first call
// has any effect.
func (a *Attempt) finish(err error, now time.Time) {
	if a.State.Terminal() {
		return
	}
	if err != nil {
		a.enter(StateFailed)
		a.Reason = err.Error()
	} else {
		a.enter(StateSucceeded)
		a.Success = true
	}
	a.FinishedAt = now
}

type Options struct {
	Credentials  Credentials
	CaptionRunes int
	Interval     time.Duration
}

type Publisher struct {
	launcher Launcher
	synth    Synthesizer
	opts     Options
	pacer    *Pacer
	now      func() time.Time
	logger   *slog.Logger
	onResult func(*Attempt)
}

type Option func(*Publisher)

func WithPacer(p *Pacer) Option { return func(pub *Publisher) { pub.pacer = p } }

func WithClock(now func() time.Time) Option { return func(pub *Publisher) { pub.now = now } }

// WithResultHook is called with every finished attempt.
func WithResultHook(fn func(*Attempt)) Option { return func(pub *Publisher) { pub.onResult = fn } }

func NewPublisher(launcher Launcher, synthesizer Synthesizer, opts Options, logger *slog.Logger, options ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CaptionRunes <= 0 {
		opts.CaptionRunes = 280
	}
	p := &Publisher{
		launcher: launcher,
		synth:    synthesizer,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
		onResult: func(*Attempt) {},
	}
	for _, o := range options {
		o(p)
	}
	if p.pacer == nil {
		p.pacer = NewPacer(opts.Interval)
	}
	return p
}

// Caption is the script cut to limit runes with the hashtags appended
// after the cut.
func Caption(script, hashtags string, limit int) string {
	caption := news.Truncate(script, limit, "")
	if hashtags == "" {
		return caption
	}
	return caption + "\n\n" + hashtags
}

// PublishAll publishes stories one after another in the given order and
// waits the pacing interval between them. If ctx is cancelled while
// waiting, every story not yet published gets a failed attempt carrying
// the context error, so the result always has one attempt per story.
func (p *Publisher) PublishAll(ctx context.Context, stories []news.Story) []*Attempt {
	attempts := make([]*Attempt, 0, len(stories))
	for i, story := range stories {
		if i > 0 {
			if err := p.pacer.Wait(ctx); err != nil {
				p.logger.Warn("publishing interrupted", "remaining", len(stories)-i, "error", err)
				return append(attempts, p.abandon(stories[i:], err)...)
			}
		}
		attempts = append(attempts, p.Publish(ctx, story))
	}
	return attempts
}

func (p *Publisher) abandon(stories []news.Story, err error) []*Attempt {
	out := make([]*Attempt, 0, len(stories))
	for _, story := range stories {
		a := newAttempt(story, p.now())
		a.finish(err, p.now())
		p.onResult(a)
		out = append(out, a)
	}
	return out
}

// Publish runs one attempt for story. It always returns a finished
// attempt and always releases the synthesized media.
func (p *Publisher) Publish(ctx context.Context, story news.Story) *Attempt {
	return p.deliver(ctx, p.synth.Synthesize(ctx, story))
}

// PublishText posts a fixed script and hashtags for story without any
// synthesis. Used to check the publish path end to end.
func (p *Publisher) PublishText(ctx context.Context, story news.Story, script, hashtags string) *Attempt {
	return p.deliver(ctx, synth.TextContent(story, script, hashtags))
}

func (p *Publisher) deliver(ctx context.Context, content *synth.Content) *Attempt {
	a := newAttempt(content.Story, p.now())
	log := p.logger.With("attempt", a.ID, "title", news.Truncate(content.Story.Title, 60, "..."))
	defer func() {
		if err := content.Release(); err != nil {
			log.Warn("failed to release media", "error", err)
		}
	}()

	a.Script = content.Text()
	a.Hashtags = content.Hashtags
	a.MediaRef = content.MediaPath()
	a.ScriptOutcome = content.Script.Outcome
	a.MediaOutcome = content.Video.Outcome

	err := p.run(ctx, a, content)
	a.finish(err, p.now())

	if a.Success {
		log.Info("story published", "post_id", a.PostID, "media", a.MediaRef != "")
	} else {
		log.Warn("story publish failed", "state", a.Trace[len(a.Trace)-2], "reason", a.Reason)
	}
	p.onResult(a)
	return a
}

func (p *Publisher) run(ctx context.Context, a *Attempt, content *synth.Content) error {
	a.enter(StateAuthenticating)
	if !p.opts.Credentials.Valid() {
		return ErrMissingCredentials
	}
	if p.launcher == nil {
		return fmt.Errorf("no publish driver configured")
	}

	driver, err := p.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("launch session: %w", err)
	}
	defer func() {
		if cerr := driver.Close(); cerr != nil {
			p.logger.Warn("failed to close publish session", "attempt", a.ID, "error", cerr)
		}
	}()

	if err := driver.Authenticate(ctx, p.opts.Credentials); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	if path := content.MediaPath(); path != "" {
		a.enter(StateUploading)
		if err := driver.UploadMedia(ctx, path); err != nil {
			return fmt.Errorf("upload media: %w", err)
		}
		if err := content.ReleaseVideo(); err != nil {
			p.logger.Warn("failed to remove uploaded video", "path", path, "error", err)
		}
	}

	a.enter(StateCaptioning)
	if err := driver.SetCaption(ctx, Caption(a.Script, a.Hashtags, p.opts.CaptionRunes)); err != nil {
		return fmt.Errorf("set caption: %w", err)
	}

	a.enter(StateSubmitting)
	receipt, err := driver.Submit(ctx)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if !receipt.Confirmed {
		return ErrNotConfirmed
	}
	a.PostID = receipt.PostID
	return nil
}

// Pacer waits a fixed interval between posts.
type Pacer struct {
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, sleep: sleepContext}
}

// NewPacerWithSleep lets tests observe waits without sleeping.
func NewPacerWithSleep(interval time.Duration, sleep func(ctx context.Context, d time.Duration) error) *Pacer {
	return &Pacer{interval: interval, sleep: sleep}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, p.interval)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
