package news

import (
	"strings"
	"time"
)

// Weights holds the points each scoring rule adds.
type Weights struct {
	LastHour       int
	Last6Hours     int
	Last12Hours    int
	GlobalTerm     int
	RegionalTerm   int
	EmotionalTerm  int
	CredibleSource int
}

// DefaultWeights are the production weights.
var DefaultWeights = Weights{
	LastHour:       50,
	Last6Hours:     30,
	Last12Hours:    15,
	GlobalTerm:     15,
	RegionalTerm:   10,
	EmotionalTerm:  10,
	CredibleSource: 20,
}

var (
	globalTerms = []string{
		"breaking", "urgent", "crisis", "war", "conflict", "economy", "market",
		"international", "global", "world", "historic", "unprecedented",
	}

	middleEastTerms = []string{"israel", "palestine", "saudi", "iran", "syria", "iraq", "yemen"}

	emotionalTerms = []string{"shocking", "incredible", "massive", "historic", "dramatic"}

	credibleSources = map[string]bool{
		"reuters":          true,
		"ap_news":          true,
		"associated_press": true,
		"al_arabiya":       true,
		"al_jazeera":       true,
	}
)

// Scorer computes the viral-potential score. It has no state besides its
// weights and keyword lists, so one value can be shared freely.
type Scorer struct {
	Weights       Weights
	GlobalTerms   []string
	RegionalTerms []string
	Emotional     []string
	Credible      map[string]bool
}

// NewScorer returns a scorer with the default weights and keyword lists.
func NewScorer() *Scorer {
	return &Scorer{
		Weights:       DefaultWeights,
		GlobalTerms:   globalTerms,
		RegionalTerms: middleEastTerms,
		Emotional:     emotionalTerms,
		Credible:      credibleSources,
	}
}

// Score returns the additive score of s evaluated at now. Each rule is
// independent; each distinct keyword counts once.
func (sc *Scorer) Score(s Story, now time.Time) int {
	w := sc.Weights
	score := 0

	switch age := s.Age(now); {
	case age < time.Hour:
		score += w.LastHour
	case age < 6*time.Hour:
		score += w.Last6Hours
	case age < 12*time.Hour:
		score += w.Last12Hours
	}

	text := s.text()
	score += w.GlobalTerm * countTerms(text, sc.GlobalTerms)
	score += w.RegionalTerm * countTerms(text, sc.RegionalTerms)
	score += w.EmotionalTerm * countTerms(text, sc.Emotional)

	key := s.SourceKey
	if key == "" {
		key = SourceKey(s.Source)
	}
	if sc.Credible[key] {
		score += w.CredibleSource
	}

	if score < 0 {
		score = 0
	}
	return score
}

// Annotate runs the single scoring pass: it returns copies of stories with
// score, category and region filled in. Stories already scored are copied
// unchanged.
func (sc *Scorer) Annotate(stories []Story, now time.Time) []Story {
	out := make([]Story, len(stories))
	for i, s := range stories {
		if !s.Scored {
			s.ViralScore = sc.Score(s, now)
			s.Category = DetectCategory(s)
			s.Region = RegionOf(s.Country)
			s.Scored = true
		}
		out[i] = s
	}
	return out
}

func countTerms(text string, terms []string) int {
	seen := make(map[string]bool, len(terms))
	n := 0
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}
