package news

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// DedupeStats counts what Dedupe dropped, per level.
type DedupeStats struct {
	ByURL     int
	ByContent int
	BySimilar int
	Unique    int
}

// Dropped is the total number of stories removed.
func (d DedupeStats) Dropped() int {
	return d.ByURL + d.ByContent + d.BySimilar
}

// Dedupe removes repeated stories in three passes of growing leniency:
// same link, same title+description, same similarity key. The first
// occurrence wins and order is kept.
func Dedupe(stories []Story, now time.Time) ([]Story, DedupeStats) {
	seenLinks := map[string]struct{}{}
	seenContent := map[string]struct{}{}
	seenSimilar := map[string]struct{}{}

	var stats DedupeStats
	out := make([]Story, 0, len(stories))

	for _, s := range stories {
		if s.URL != "" {
			if _, dup := seenLinks[s.URL]; dup {
				stats.ByURL++
				continue
			}
		}

		key := ContentKey(s.Title, s.Description)
		if _, dup := seenContent[key]; dup {
			stats.ByContent++
			continue
		}

		similar := SimilarityKey(s, now)
		if _, dup := seenSimilar[similar]; dup {
			stats.BySimilar++
			continue
		}

		if s.URL != "" {
			seenLinks[s.URL] = struct{}{}
		}
		seenContent[key] = struct{}{}
		seenSimilar[similar] = struct{}{}
		out = append(out, s)
	}

	stats.Unique = len(out)
	return out, stats
}

// ContentKey hashes title and description for exact-content dedupe.
func ContentKey(title, description string) string {
	h := sha1.New()
	h.Write([]byte(strings.ToLower(title + description)))
	return hex.EncodeToString(h.Sum(nil))
}

// StoryKey identifies a story across cycles: its link when present,
// otherwise its content hash.
func StoryKey(s Story) string {
	if s.URL != "" {
		return "url:" + s.URL
	}
	return "content:" + ContentKey(s.Title, s.Description)
}

var (
	reTags    = regexp.MustCompile(`<[^>]*>`)
	stopWords = map[string]bool{
		"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
		"in": true, "on": true, "to": true, "for": true, "is": true, "are": true,
		"at": true, "by": true, "with": true, "from": true, "as": true,
	}
)

const (
	similarityWindow   = 6 * time.Hour
	similarityMaxWords = 6
)

// SimilarityKey is a lenient key: host|first significant words|time window.
// Stories from the same host with the same opening words published in the
// same 6h window collapse into one.
func SimilarityKey(s Story, now time.Time) string {
	host := "unknown"
	if u, err := url.Parse(s.URL); err == nil && u.Host != "" {
		host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	} else if s.SourceKey != "" {
		host = s.SourceKey
	}

	words := strings.Fields(normalizeText(s.Title + " " + s.Description))
	significant := make([]string, 0, similarityMaxWords)
	for _, w := range words {
		if len(significant) >= similarityMaxWords {
			break
		}
		if stopWords[w] || len([]rune(w)) <= 2 {
			continue
		}
		significant = append(significant, w)
	}
	if len(significant) == 0 {
		for i := 0; i < len(words) && i < similarityMaxWords; i++ {
			significant = append(significant, words[i])
		}
	}

	t := now
	if s.PublishedAt != nil && !s.PublishedAt.IsZero() {
		t = *s.PublishedAt
	}
	window := t.Truncate(similarityWindow).Unix()

	return fmt.Sprintf("%s|%s|%d", host, strings.Join(significant, "_"), window)
}

func normalizeText(s string) string {
	s = strings.ToLower(reTags.ReplaceAllString(s, " "))
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			b = append(b, r)
		} else {
			b = append(b, ' ')
		}
	}
	return strings.Join(strings.Fields(string(b)), " ")
}
