package news

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := testNow.Add(-d)
	return &t
}

func TestNormalize(t *testing.T) {
	t.Run("keeps items meeting the filter", func(t *testing.T) {
		s, ok := Normalize(RawItem{
			Title:       "  Markets   rally after surprise rate cut  ",
			Description: "Stocks rose sharply.",
			URL:         "https://example.com/a",
			SourceName:  "Reuters",
		}, "newsapi", "US", KindHeadline)

		require.True(t, ok)
		assert.Equal(t, "Markets rally after surprise rate cut", s.Title)
		assert.Equal(t, "us", s.Country)
		assert.Equal(t, "Reuters", s.Source)
		assert.Equal(t, "reuters", s.SourceKey)
		assert.False(t, s.Scored)
	})

	t.Run("drops short titles", func(t *testing.T) {
		_, ok := Normalize(RawItem{Title: "Too short title", Description: "text"}, "x", "us", KindFeed)
		assert.False(t, ok)
	})

	t.Run("title of exactly the minimum length is kept", func(t *testing.T) {
		title := strings.Repeat("a", MinTitleLength)
		_, ok := Normalize(RawItem{Title: title, Description: "text"}, "x", "us", KindFeed)
		assert.True(t, ok)
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		title := strings.Repeat("ü", MinTitleLength-1)
		_, ok := Normalize(RawItem{Title: title, Description: "text"}, "x", "us", KindFeed)
		assert.False(t, ok)
	})

	t.Run("drops empty descriptions", func(t *testing.T) {
		_, ok := Normalize(RawItem{Title: "A perfectly long enough headline", Description: "   "}, "x", "us", KindFeed)
		assert.False(t, ok)
	})

	t.Run("falls back to descriptor name", func(t *testing.T) {
		s, ok := Normalize(RawItem{Title: "A perfectly long enough headline", Description: "d"}, "Al Jazeera", "qa", KindFeed)
		require.True(t, ok)
		assert.Equal(t, "al_jazeera", s.SourceKey)
	})
}

func TestSourceKey(t *testing.T) {
	assert.Equal(t, "ap_news", SourceKey("AP News"))
	assert.Equal(t, "ap_news", SourceKey("ap_news"))
	assert.Equal(t, "al_arabiya", SourceKey(" Al-Arabiya "))
	assert.Equal(t, "", SourceKey(""))
}

func TestRegionOf(t *testing.T) {
	cases := map[string]Region{
		"us":     RegionAmericas,
		"GB":     RegionEurope,
		"jp":     RegionAsia,
		"qa":     RegionMiddleEast,
		"ng":     RegionAfrica,
		"global": RegionInternational,
		"zz":     RegionInternational,
		"":       RegionInternational,
	}
	for code, want := range cases {
		assert.Equal(t, want, RegionOf(code), code)
	}
	assert.Equal(t, "MIDDLE EAST", RegionMiddleEast.Label())
}

func TestDetectCategory(t *testing.T) {
	assert.Equal(t, CategoryConflict, DetectCategory(Story{Title: "Military drills near border"}))
	assert.Equal(t, CategoryEconomy, DetectCategory(Story{Title: "Financial regulators meet"}))
	assert.Equal(t, CategoryPolitics, DetectCategory(Story{Title: "Election results announced"}))
	assert.Equal(t, CategoryGeneral, DetectCategory(Story{Title: "Local bakery opens doors"}))
}

func TestHashtags(t *testing.T) {
	s := Story{Country: "de", Region: RegionEurope, Category: CategoryEconomy}
	assert.Equal(t, BaseHashtags+" #Germany #Europe #economy #market", Hashtags(s))

	unknown := Story{Country: "zz", Region: RegionInternational, Category: CategoryGeneral}
	assert.Equal(t, BaseHashtags, Hashtags(unknown))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10, "..."))
	assert.Equal(t, "hel...", Truncate("hello", 3, "..."))
	assert.Equal(t, "", Truncate("hello", 0, "..."))
}

func TestDedupe(t *testing.T) {
	stories := []Story{
		{Title: "Quake hits coastal city overnight", Description: "Rescue teams deployed", URL: "https://a.com/1", PublishedAt: at(time.Hour)},
		{Title: "Quake hits coastal city overnight", Description: "Rescue teams deployed", URL: "https://a.com/1", PublishedAt: at(time.Hour)},
		{Title: "Quake hits coastal city overnight", Description: "Rescue teams deployed", URL: "https://b.com/9", PublishedAt: at(time.Hour)},
		{Title: "Quake hits coastal city overnight", Description: "Rescue teams deployed quickly", URL: "https://a.com/2", PublishedAt: at(time.Hour)},
		{Title: "Parliament passes new budget law", Description: "Vote was close", PublishedAt: at(2 * time.Hour)},
	}

	out, stats := Dedupe(stories, testNow)

	require.Len(t, out, 2)
	assert.Equal(t, "https://a.com/1", out[0].URL)
	assert.Equal(t, "Parliament passes new budget law", out[1].Title)
	assert.Equal(t, 1, stats.ByURL)
	assert.Equal(t, 1, stats.ByContent)
	assert.Equal(t, 1, stats.BySimilar)
	assert.Equal(t, 3, stats.Dropped())
	assert.Equal(t, 2, stats.Unique)
}

func TestStoryKey(t *testing.T) {
	assert.Equal(t, "url:https://x.com", StoryKey(Story{URL: "https://x.com"}))
	assert.True(t, strings.HasPrefix(StoryKey(Story{Title: "t", Description: "d"}), "content:"))
}
