package news

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MinTitleLength is the shortest title (in runes) a story may have to be
// eligible for scoring.
const MinTitleLength = 20

// Kind tells which source family produced a story.
type Kind string

const (
	KindHeadline Kind = "headlines"
	KindFeed     Kind = "feed"
)

// Story is a normalized news item. Fields below the Derived marker are
// filled once by Scorer.Annotate and never touched afterwards.
type Story struct {
	Title       string
	Description string
	URL         string
	Source      string
	SourceKey   string
	Country     string
	Kind        Kind
	PublishedAt *time.Time

	// Derived
	ViralScore int
	Category   Category
	Region     Region
	Scored     bool
}

// RawItem is what a source collaborator hands back before normalization.
type RawItem struct {
	Title       string
	Description string
	URL         string
	SourceName  string
	PublishedAt *time.Time
}

// Normalize turns a raw item into a Story. The bool is false when the item
// does not meet the ingestion filter: a trimmed title of at least
// MinTitleLength runes and a non-empty description.
func Normalize(raw RawItem, source, country string, kind Kind) (Story, bool) {
	title := collapseSpaces(raw.Title)
	desc := collapseSpaces(raw.Description)

	if utf8.RuneCountInString(title) < MinTitleLength || desc == "" {
		return Story{}, false
	}

	name := strings.TrimSpace(raw.SourceName)
	if name == "" {
		name = source
	}

	return Story{
		Title:       title,
		Description: desc,
		URL:         strings.TrimSpace(raw.URL),
		Source:      name,
		SourceKey:   SourceKey(name),
		Country:     strings.ToLower(strings.TrimSpace(country)),
		Kind:        kind,
		PublishedAt: raw.PublishedAt,
	}, true
}

// SourceKey normalizes a source name for lookups: "AP News" -> "ap_news".
func SourceKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer("-", " ", ".", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), "_")
}

// Age returns how old the story is at now. Missing timestamps count as a
// day old; timestamps in the future count as brand new.
func (s Story) Age(now time.Time) time.Duration {
	if s.PublishedAt == nil || s.PublishedAt.IsZero() {
		return 24 * time.Hour
	}
	age := now.Sub(*s.PublishedAt)
	if age < 0 {
		return 0
	}
	return age
}

func (s Story) text() string {
	return strings.ToLower(s.Title + " " + s.Description)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes and appends suffix when it had to cut.
func Truncate(s string, n int, suffix string) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + suffix
}
