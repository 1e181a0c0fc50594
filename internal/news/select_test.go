package news

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(title string, score int, region Region) Story {
	return Story{Title: title, ViralScore: score, Region: region, Scored: true}
}

func titles(stories []Story) []string {
	out := make([]string, len(stories))
	for i, s := range stories {
		out[i] = s.Title
	}
	return out
}

func TestSelect_RegionDiversityBeatsRawScore(t *testing.T) {
	candidates := []Story{
		scored("90-americas", 90, RegionAmericas),
		scored("80-europe", 80, RegionEurope),
		scored("70-americas", 70, RegionAmericas),
		scored("60-asia", 60, RegionAsia),
		scored("50-middle_east", 50, RegionMiddleEast),
	}

	got := Select(candidates, 3)

	assert.Equal(t, []string{"90-americas", "80-europe", "60-asia"}, titles(got))
}

func TestSelect_FillsWithRepeatsAfterCoverage(t *testing.T) {
	candidates := []Story{
		scored("50-middle_east", 50, RegionMiddleEast),
		scored("70-americas", 70, RegionAmericas),
		scored("90-americas", 90, RegionAmericas),
		scored("60-asia", 60, RegionAsia),
		scored("80-europe", 80, RegionEurope),
	}

	got := Select(candidates, 5)

	assert.Equal(t, []string{"90-americas", "80-europe", "60-asia", "50-middle_east", "70-americas"}, titles(got))
}

func TestSelect_FewerCandidatesThanRequested(t *testing.T) {
	candidates := []Story{
		scored("a", 10, RegionAsia),
		scored("b", 20, RegionAsia),
	}
	got := Select(candidates, 5)
	assert.Equal(t, []string{"b", "a"}, titles(got))
}

func TestSelect_EdgeCases(t *testing.T) {
	assert.Empty(t, Select(nil, 3))
	assert.Empty(t, Select([]Story{scored("a", 1, RegionAsia)}, 0))
	assert.Empty(t, Select([]Story{scored("a", 1, RegionAsia)}, -1))
}

func TestSelect_StableTies(t *testing.T) {
	candidates := []Story{
		scored("first", 40, RegionEurope),
		scored("second", 40, RegionEurope),
		scored("third", 40, RegionEurope),
	}
	got := Select(candidates, 3)
	assert.Equal(t, []string{"first", "second", "third"}, titles(got))
}

func TestSelect_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for iter := range 300 {
		size := rng.IntN(15)
		n := rng.IntN(8)
		candidates := make([]Story, size)
		present := map[Region]bool{}
		for i := range candidates {
			region := Regions[rng.IntN(len(Regions))]
			present[region] = true
			candidates[i] = scored(fmt.Sprintf("s%d", i), rng.IntN(100), region)
		}

		got := Select(candidates, n)

		want := n
		if size < n {
			want = size
		}
		require.Len(t, got, want, "iteration %d", iter)

		seen := map[string]bool{}
		inputs := map[string]bool{}
		for _, c := range candidates {
			inputs[c.Title] = true
		}
		for _, s := range got {
			assert.False(t, seen[s.Title], "duplicate %s", s.Title)
			seen[s.Title] = true
			assert.True(t, inputs[s.Title], "unknown story %s", s.Title)
		}

		k := len(present)
		if k <= n {
			covered := map[Region]bool{}
			for _, s := range got[:k] {
				covered[s.Region] = true
			}
			assert.Len(t, covered, k, "first %d picks must cover every region (iteration %d)", k, iter)
		}
	}
}
