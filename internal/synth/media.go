package synth

import (
	"strings"

	"github.com/deusflow/worldnews/internal/news"
	"github.com/deusflow/worldnews/internal/video"
)

const defaultBackground = "#DC143C"

var regionBackgrounds = map[news.Region]string{
	news.RegionMiddleEast: "#8B0000",
}

var categoryBackgrounds = map[news.Category]string{
	news.CategoryConflict: "#B22222",
	news.CategoryEconomy:  "#2E8B57",
	news.CategoryPolitics: "#4682B4",
}

// Background picks the clip colour: region first, then category.
func Background(s news.Story) string {
	if c, found := regionBackgrounds[s.Region]; found {
		return c
	}
	if c, found := categoryBackgrounds[s.Category]; found {
		return c
	}
	return defaultBackground
}

// VideoSpec lays out the clip for a story.
func (s *Synthesizer) VideoSpec(story news.Story) video.Spec {
	spec := video.DefaultSpec()
	spec.Duration = s.opts.VideoDuration
	spec.Background = Background(story)

	title := strings.NewReplacer(`"`, "", `'`, "").Replace(story.Title)
	title = truncateRunes(title, 60)
	source := truncateRunes(story.Source, 20)

	spec.Overlays = []video.Overlay{
		{Text: "BREAKING NEWS", FontSize: 36, Color: "white", Y: "80", BoxColor: "black@0.9"},
		{Text: story.Region.Label(), FontSize: 24, Color: "yellow", Y: "160", BoxColor: "black@0.7"},
		{Text: title, FontSize: 28, Color: "white", X: "20", Y: "300", BoxColor: "black@0.8"},
		{Text: "Source: " + source, FontSize: 18, Color: "lightgray", X: "20", Y: "1150", BoxColor: "black@0.6"},
		{Text: s.now().Format("2006-01-02 15:04"), FontSize: 16, Color: "gray", X: "w-tw-20", Y: "1200"},
		{Text: "#WorldNews #Global #Breaking", FontSize: 16, Color: "cyan", X: "20", Y: "1200"},
	}
	return spec
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
