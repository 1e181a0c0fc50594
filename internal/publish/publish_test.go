package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/synth"
	"github.com/deusflow/worldnews/internal/video"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var creds = Credentials{Account: "bot", Secret: "token"}

type fakeDriver struct {
	authErr, uploadErr, captionErr, submitErr error
	receipt                                   Receipt

	calls        []string
	uploaded     string
	uploadExists bool
	caption      string
	closed       int
}

func (d *fakeDriver) Authenticate(ctx context.Context, c Credentials) error {
	d.calls = append(d.calls, "auth")
	return d.authErr
}

func (d *fakeDriver) UploadMedia(ctx context.Context, path string) error {
	d.calls = append(d.calls, "upload")
	d.uploaded = path
	_, err := os.Stat(path)
	d.uploadExists = err == nil
	return d.uploadErr
}

func (d *fakeDriver) SetCaption(ctx context.Context, caption string) error {
	d.calls = append(d.calls, "caption")
	d.caption = caption
	return d.captionErr
}

func (d *fakeDriver) Submit(ctx context.Context) (Receipt, error) {
	d.calls = append(d.calls, "submit")
	return d.receipt, d.submitErr
}

func (d *fakeDriver) Close() error {
	d.closed++
	return nil
}

type fakeLauncher struct {
	driver   *fakeDriver
	err      error
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context) (Driver, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.driver, nil
}

type fileEncoder struct{ dir string }

func (e fileEncoder) Render(ctx context.Context, spec video.Spec) (string, error) {
	f, err := os.CreateTemp(e.dir, "news_*.mp4")
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, err = f.WriteString("mp4")
	return f.Name(), err
}

func story(title string) news.Story {
	return news.Story{
		Title:       title,
		Description: "A description long enough to be useful for the fallback script.",
		Source:      "Reuters",
		Country:     "us",
		Region:      news.RegionAmericas,
		Category:    news.CategoryGeneral,
	}
}

func newSynth(t *testing.T, withVideo bool) (*synth.Synthesizer, string) {
	t.Helper()
	dir := t.TempDir()
	var opts []synth.Option
	if withVideo {
		opts = append(opts, synth.WithEncoder(fileEncoder{dir: dir}))
	}
	return synth.New(synth.Options{MediaDir: dir}, discard, opts...), dir
}

func noWait() *Pacer {
	return NewPacerWithSleep(time.Minute, func(context.Context, time.Duration) error { return nil })
}

func TestPublish_Success(t *testing.T) {
	driver := &fakeDriver{receipt: Receipt{Confirmed: true, PostID: "42"}}
	s, dir := newSynth(t, true)
	p := NewPublisher(&fakeLauncher{driver: driver}, s, Options{Credentials: creds}, discard)

	a := p.Publish(context.Background(), story("Markets rally after surprise central bank decision"))

	assert.True(t, a.Success)
	assert.Equal(t, StateSucceeded, a.State)
	assert.Equal(t, "42", a.PostID)
	assert.Equal(t, []State{StateIdle, StateAuthenticating, StateUploading, StateCaptioning, StateSubmitting, StateSucceeded}, a.Trace)
	assert.Equal(t, []string{"auth", "upload", "caption", "submit"}, driver.calls)
	assert.True(t, driver.uploadExists)
	assert.Equal(t, 1, driver.closed)
	assert.False(t, a.FinishedAt.IsZero())
	assert.Equal(t, synth.OutcomeDegraded, a.ScriptOutcome)
	assert.Equal(t, synth.OutcomeOK, a.MediaOutcome)
	assert.NotEmpty(t, a.MediaRef)

	assert.NoFileExists(t, driver.uploaded)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if !e.IsDir() {
			t.Errorf("leftover artifact %s", e.Name())
		}
	}
}

func TestPublish_TextOnlySkipsUpload(t *testing.T) {
	driver := &fakeDriver{receipt: Receipt{Confirmed: true}}
	s, _ := newSynth(t, false)
	p := NewPublisher(&fakeLauncher{driver: driver}, s, Options{Credentials: creds}, discard)

	a := p.Publish(context.Background(), story("Parliament passes landmark climate bill"))
	assert.True(t, a.Success)
	assert.NotContains(t, a.Trace, StateUploading)
	assert.Equal(t, []string{"auth", "caption", "submit"}, driver.calls)
}

func TestPublish_MissingCredentials(t *testing.T) {
	launcher := &fakeLauncher{driver: &fakeDriver{}}
	s, _ := newSynth(t, true)
	p := NewPublisher(launcher, s, Options{Credentials: Credentials{Account: "bot"}}, discard)

	a := p.Publish(context.Background(), story("Storm forces evacuation of coastal towns"))

	assert.False(t, a.Success)
	assert.Equal(t, StateFailed, a.State)
	assert.Equal(t, "missing credentials", a.Reason)
	assert.Equal(t, 0, launcher.launches, "no session without credentials")
	assert.NoFileExists(t, a.MediaRef)
}

func TestPublish_FailuresAlwaysClose(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		driver    *fakeDriver
		lastState State
		reason    string
	}{
		{"auth", &fakeDriver{authErr: boom}, StateAuthenticating, "authenticate: boom"},
		{"upload", &fakeDriver{uploadErr: boom}, StateUploading, "upload media: boom"},
		{"caption", &fakeDriver{captionErr: boom}, StateCaptioning, "set caption: boom"},
		{"submit", &fakeDriver{submitErr: boom}, StateSubmitting, "submit: boom"},
		{"unconfirmed", &fakeDriver{receipt: Receipt{Confirmed: false}}, StateSubmitting, "submission not confirmed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSynth(t, true)
			p := NewPublisher(&fakeLauncher{driver: tt.driver}, s, Options{Credentials: creds}, discard)

			a := p.Publish(context.Background(), story("Election results contested in capital city"))

			assert.False(t, a.Success)
			assert.Equal(t, StateFailed, a.State)
			assert.Equal(t, tt.reason, a.Reason)
			assert.Equal(t, tt.lastState, a.Trace[len(a.Trace)-2])
			assert.Equal(t, 1, tt.driver.closed)
			assert.NoFileExists(t, a.MediaRef)
		})
	}
}

func TestPublish_LaunchFailure(t *testing.T) {
	s, _ := newSynth(t, true)
	p := NewPublisher(&fakeLauncher{err: errors.New("no browser")}, s, Options{Credentials: creds}, discard)

	a := p.Publish(context.Background(), story("Election results contested in capital city"))
	assert.Equal(t, StateFailed, a.State)
	assert.Contains(t, a.Reason, "no browser")
	assert.NoFileExists(t, a.MediaRef)
}

func TestCaption(t *testing.T) {
	script := strings.Repeat("a", 300)
	got := Caption(script, "#worldnews", 280)
	assert.Equal(t, strings.Repeat("a", 280)+"\n\n#worldnews", got)

	assert.Equal(t, "short\n\n#tag", Caption("short", "#tag", 280))
	assert.Equal(t, "short", Caption("short", "", 280))
}

func TestPublishAll_OrderAndPacing(t *testing.T) {
	driver := &fakeDriver{receipt: Receipt{Confirmed: true}}
	s, _ := newSynth(t, false)

	var waits int
	pacer := NewPacerWithSleep(15*time.Minute, func(ctx context.Context, d time.Duration) error {
		assert.Equal(t, 15*time.Minute, d)
		waits++
		return nil
	})

	var hooked []string
	p := NewPublisher(&fakeLauncher{driver: driver}, s, Options{Credentials: creds}, discard,
		WithPacer(pacer),
		WithResultHook(func(a *Attempt) { hooked = append(hooked, a.Story.Title) }),
	)

	stories := []news.Story{
		story("First story about global markets today"),
		story("Second story about regional elections"),
		story("Third story about a climate agreement"),
	}
	attempts := p.PublishAll(context.Background(), stories)

	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, stories[i].Title, a.Story.Title)
		assert.True(t, a.State.Terminal())
	}
	assert.Equal(t, 2, waits, "no wait after the last story")
	assert.Equal(t, []string{stories[0].Title, stories[1].Title, stories[2].Title}, hooked)
}

func TestPublishAll_FailureDoesNotStopSiblings(t *testing.T) {
	s, _ := newSynth(t, false)
	p := NewPublisher(&fakeLauncher{driver: &fakeDriver{submitErr: errors.New("rejected")}}, s,
		Options{Credentials: creds}, discard, WithPacer(noWait()))

	attempts := p.PublishAll(context.Background(), []news.Story{
		story("First story about global markets today"),
		story("Second story about regional elections"),
	})
	require.Len(t, attempts, 2)
	for _, a := range attempts {
		assert.Equal(t, StateFailed, a.State)
	}
}

func TestPublishAll_CancelledWhileWaiting(t *testing.T) {
	s, _ := newSynth(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	pacer := NewPacerWithSleep(time.Hour, func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	launcher := &fakeLauncher{driver: &fakeDriver{receipt: Receipt{Confirmed: true}}}
	var hooked int
	p := NewPublisher(launcher, s, Options{Credentials: creds}, discard,
		WithPacer(pacer), WithResultHook(func(*Attempt) { hooked++ }))

	stories := []news.Story{
		story("First story about global markets today"),
		story("Second story about regional elections"),
		story("Third story about a climate agreement"),
	}
	attempts := p.PublishAll(ctx, stories)

	require.Len(t, attempts, 3, "one attempt per story")
	assert.Equal(t, 1, launcher.launches)
	assert.True(t, attempts[0].Success)
	for i, a := range attempts[1:] {
		assert.Equal(t, stories[i+1].Title, a.Story.Title)
		assert.Equal(t, StateFailed, a.State)
		assert.Equal(t, "context canceled", a.Reason)
		assert.Equal(t, []State{StateIdle, StateFailed}, a.Trace)
		assert.False(t, a.FinishedAt.IsZero())
	}
	assert.Equal(t, 3, hooked)
}

func TestPublishText(t *testing.T) {
	s, _ := newSynth(t, true)
	driver := &fakeDriver{receipt: Receipt{Confirmed: true, PostID: "7"}}
	p := NewPublisher(&fakeLauncher{driver: driver}, s, Options{Credentials: creds}, discard, WithPacer(noWait()))

	a := p.PublishText(context.Background(), story("Bot test story"), "TEST: the bot is live", "#test #bot")

	assert.True(t, a.Success)
	assert.Equal(t, "7", a.PostID)
	assert.Equal(t, "TEST: the bot is live", a.Script)
	assert.Equal(t, "TEST: the bot is live\n\n#test #bot", driver.caption)
	assert.Empty(t, a.MediaRef)
	assert.NotContains(t, driver.calls, "upload", "fixed content is never rendered")
	assert.Equal(t, 1, driver.closed)
}

func TestPacer_RealSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := NewPacer(time.Hour).Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.NoError(t, NewPacer(0).Wait(context.Background()))
}
