package synth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/worldnews/internal/cache"
	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/ratelimit"
	"github.com/deusflow/worldnews/internal/video"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeModel struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls int
}

func (m *fakeModel) Name() string { return m.name }

func (m *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.text, m.err
}

type fakeVoice struct {
	got string
	err error
}

func (v *fakeVoice) Synthesize(ctx context.Context, text string) ([]byte, error) {
	v.got = text
	if v.err != nil {
		return nil, v.err
	}
	return []byte("mp3"), nil
}

// fakeEncoder writes a placeholder clip and records the spec it saw,
// including whether the audio file existed while rendering.
type fakeEncoder struct {
	dir        string
	err        error
	spec       video.Spec
	audioExist bool
}

func (e *fakeEncoder) Render(ctx context.Context, spec video.Spec) (string, error) {
	e.spec = spec
	if spec.AudioPath != "" {
		_, err := os.Stat(spec.AudioPath)
		e.audioExist = err == nil
	}
	if e.err != nil {
		return "", e.err
	}
	path := filepath.Join(e.dir, "news_test.mp4")
	return path, os.WriteFile(path, []byte("mp4"), 0o644)
}

func testStory() news.Story {
	return news.Story{
		Title:       "Historic peace agreement signed between rival nations",
		Description: strings.Repeat("Leaders met in Geneva to finalize the long negotiated accord. ", 4),
		Source:      "Reuters",
		SourceKey:   "reuters",
		Country:     "sa",
		URL:         "https://example.com/peace",
		Region:      news.RegionMiddleEast,
		Category:    news.CategoryPolitics,
	}
}

func newSynth(t *testing.T, opts ...Option) *Synthesizer {
	t.Helper()
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	return New(Options{MediaDir: t.TempDir(), ScriptTimeout: 50 * time.Millisecond}, discard, opts...)
}

func TestSynthesize_ModelScript(t *testing.T) {
	model := &fakeModel{name: "groq", text: `Script: "Did you see this? Peace at last."`}
	s := newSynth(t, WithModels(model))

	c := s.Synthesize(context.Background(), testStory())
	defer c.Release()

	assert.Equal(t, OutcomeOK, c.Script.Outcome)
	assert.Equal(t, "Did you see this? Peace at last.", c.Text())
	assert.Contains(t, c.Hashtags, "#SaudiArabia")
	assert.Equal(t, OutcomeDegraded, c.Audio.Outcome)
	assert.Equal(t, OutcomeDegraded, c.Video.Outcome)
	assert.Empty(t, c.MediaPath())
}

func TestSynthesize_FallbackWhenModelFails(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"error", &fakeModel{name: "groq", err: errors.New("status 500")}},
		{"timeout", &fakeModel{name: "groq", text: "late", delay: time.Second}},
		{"empty", &fakeModel{name: "groq", text: `  ""  `}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSynth(t, WithModels(tt.model))
			c := s.Synthesize(context.Background(), testStory())
			defer c.Release()

			assert.Equal(t, OutcomeDegraded, c.Script.Outcome)
			assert.NotEmpty(t, c.Script.Reason)
			assert.NotEmpty(t, c.Text())
			assert.Contains(t, c.Text(), testStory().Title)
		})
	}
}

func TestSynthesize_SecondModelAfterFailure(t *testing.T) {
	first := &fakeModel{name: "groq", err: errors.New("down")}
	second := &fakeModel{name: "gemini", text: "Here is why it matters."}
	s := newSynth(t, WithModels(first, second))

	c := s.Synthesize(context.Background(), testStory())
	assert.Equal(t, OutcomeOK, c.Script.Outcome)
	assert.Equal(t, "Here is why it matters.", c.Text())
	assert.Equal(t, 1, second.calls)
}

func TestSynthesize_NoModelConfigured(t *testing.T) {
	s := newSynth(t)
	assert.False(t, s.HasModels())
	assert.True(t, newSynth(t, WithModels(&fakeModel{name: "groq"})).HasModels())

	c := s.Synthesize(context.Background(), testStory())
	assert.Equal(t, OutcomeDegraded, c.Script.Outcome)
	assert.Equal(t, "no script model configured", c.Script.Reason)
	assert.NotEmpty(t, c.Text())
}

func TestTextContent(t *testing.T) {
	c := TextContent(testStory(), "TEST: live", "#test")
	assert.Equal(t, OutcomeOK, c.Script.Outcome)
	assert.Equal(t, "TEST: live", c.Text())
	assert.Equal(t, "#test", c.Hashtags)
	assert.Empty(t, c.MediaPath())
	assert.NoError(t, c.Release())
}

func TestSynthesize_BudgetAndCache(t *testing.T) {
	model := &fakeModel{name: "groq", text: "Cached script."}
	budget := ratelimit.NewBudget(map[string]int{"groq": 1}, 0, discard)
	scripts := cache.New[string](0)
	defer scripts.Close()

	s := newSynth(t, WithModels(model), WithBudget(budget), WithCache(scripts))

	first := s.Synthesize(context.Background(), testStory())
	second := s.Synthesize(context.Background(), testStory())
	assert.Equal(t, "Cached script.", first.Text())
	assert.Equal(t, "Cached script.", second.Text())
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, 1, budget.Stats()["cache_hits"])
	cached, found := scripts.Get(cache.Key("script", news.StoryKey(testStory())))
	assert.True(t, found)
	assert.Equal(t, "Cached script.", cached)

	other := testStory()
	other.URL = "https://example.com/other"
	third := s.Synthesize(context.Background(), other)
	assert.Equal(t, OutcomeDegraded, third.Script.Outcome, "budget exhausted")
	assert.Equal(t, 1, model.calls)
}

func TestSynthesize_MediaLifecycle(t *testing.T) {
	voice := &fakeVoice{}
	enc := &fakeEncoder{dir: t.TempDir()}
	model := &fakeModel{name: "groq", text: "🚨 BREAKING: peace 🌍 at last 👇"}
	s := newSynth(t, WithModels(model), WithVoice(voice), WithEncoder(enc))

	c := s.Synthesize(context.Background(), testStory())

	assert.Equal(t, "BREAKING: peace at last", voice.got)
	require.Equal(t, OutcomeOK, c.Audio.Outcome)
	require.Equal(t, OutcomeOK, c.Video.Outcome)
	assert.True(t, enc.audioExist, "audio must exist while rendering")
	assert.NoFileExists(t, c.Audio.Value.Path, "audio released after rendering")
	assert.Equal(t, "#8B0000", enc.spec.Background)
	assert.Len(t, enc.spec.Overlays, 6)

	path := c.MediaPath()
	assert.FileExists(t, path)
	require.NoError(t, c.Release())
	assert.NoFileExists(t, path)
	assert.NoError(t, c.Release())
}

func TestSynthesize_RenderFailureReleasesAudio(t *testing.T) {
	voice := &fakeVoice{}
	enc := &fakeEncoder{dir: t.TempDir(), err: errors.New("ffmpeg exited 1")}
	s := newSynth(t, WithVoice(voice), WithEncoder(enc))

	c := s.Synthesize(context.Background(), testStory())
	assert.Equal(t, OutcomeFailed, c.Video.Outcome)
	assert.Equal(t, "ffmpeg exited 1", c.Video.Reason)
	assert.NoFileExists(t, enc.spec.AudioPath)
	assert.Empty(t, c.MediaPath())
}

func TestSynthesize_VoiceFailure(t *testing.T) {
	enc := &fakeEncoder{dir: t.TempDir()}
	s := newSynth(t, WithVoice(&fakeVoice{err: errors.New("quota")}), WithEncoder(enc))

	c := s.Synthesize(context.Background(), testStory())
	defer c.Release()
	assert.Equal(t, OutcomeFailed, c.Audio.Outcome)
	assert.Equal(t, OutcomeOK, c.Video.Outcome)
	assert.Empty(t, enc.spec.AudioPath)
}

func TestFallback(t *testing.T) {
	s := newSynth(t)
	story := testStory()
	text := s.Fallback(story)

	assert.Contains(t, text, story.Title)
	assert.Contains(t, text, "Source: Reuters")
	desc := []rune(strings.TrimSpace(story.Description))
	assert.Contains(t, text, strings.TrimSpace(string(desc[:100]))+"...")

	assert.NotEmpty(t, s.Fallback(news.Story{}))
}

func TestFallback_DeterministicWithSeed(t *testing.T) {
	a := New(Options{}, discard, WithRand(rand.New(rand.NewPCG(7, 7))))
	b := New(Options{}, discard, WithRand(rand.New(rand.NewPCG(7, 7))))
	for range 5 {
		assert.Equal(t, a.Fallback(testStory()), b.Fallback(testStory()))
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Hello", Sanitize(`  "Hello"  `, 0))
	assert.Equal(t, "Hello", Sanitize("Script: Hello", 0))
	assert.Equal(t, "Hello", Sanitize(`**Script:** 'Hello'`, 0))
	assert.Equal(t, "abc...", Sanitize("abcdef", 3))
	assert.Equal(t, "", Sanitize(`""`, 0))
	assert.Equal(t, "Markets fell today.", Sanitize("Note: this is a draft.\nMarkets fell today.", 0))
	assert.Equal(t, "Markets fell today.", Sanitize("Markets fell (Note: figures may change) today.", 0))
	assert.Equal(t, "Markets fell today.", Sanitize("Markets fell today. [note: generated]", 0))
}

func TestStripEmoji(t *testing.T) {
	assert.Equal(t, "BREAKING: news", StripEmoji("🚨 BREAKING: news"))
	assert.Equal(t, "Vote now!", StripEmoji("Vote now! 🗳️"))
	assert.Equal(t, "line one\nline two", StripEmoji("line one 🔥\n👇 line two"))
	assert.Equal(t, "Café", StripEmoji("Café"))
}

func TestBackground(t *testing.T) {
	s := news.Story{Region: news.RegionMiddleEast, Category: news.CategoryEconomy}
	assert.Equal(t, "#8B0000", Background(s))
	s.Region = news.RegionEurope
	assert.Equal(t, "#2E8B57", Background(s))
	s.Category = news.CategoryGeneral
	assert.Equal(t, "#DC143C", Background(s))
}

func TestVideoSpec(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	s := newSynth(t, WithClock(func() time.Time { return now }))

	story := testStory()
	story.Title = `"Quoted" headline that is definitely longer than sixty characters in total`
	story.Source = "A very long source name indeed"
	spec := s.VideoSpec(story)

	require.Len(t, spec.Overlays, 6)
	assert.Equal(t, 60, spec.Duration)
	assert.Equal(t, "BREAKING NEWS", spec.Overlays[0].Text)
	assert.Equal(t, "MIDDLE EAST", spec.Overlays[1].Text)
	assert.NotContains(t, spec.Overlays[2].Text, `"`)
	assert.Equal(t, 60, len([]rune(spec.Overlays[2].Text)))
	assert.Equal(t, "Source: A very long source n", spec.Overlays[3].Text)
	assert.Equal(t, "2026-05-04 09:30", spec.Overlays[4].Text)
}
