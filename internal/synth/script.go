package synth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/deusflow/worldnews/internal/cache"
	"github.com/deusflow/worldnews/internal/news"
)

const promptTemplate = `Create a viral 60-second short video script for this global news story:

TITLE: %s
DESCRIPTION: %s
REGION: %s
SOURCE: %s

Requirements:
- Start with an urgent hook in first 3 seconds
- Explain WHY this matters globally
- Keep conversational and engaging
- Under 150 words total
- Include emotional connection
- End with question to boost comments

Make it sound like a real person talking, not robotic.`

// BuildPrompt renders the script-model prompt for a story.
func BuildPrompt(s news.Story) string {
	return fmt.Sprintf(promptTemplate, s.Title, s.Description, s.Region, s.Source)
}

var (
	hookPhrases = []string{
		"🚨 BREAKING:",
		"⚡ JUST IN:",
		"🌍 WORLD ALERT:",
		"🔥 HAPPENING NOW:",
	}
	reactionPhrases = []string{
		"This just happened and it's affecting millions worldwide.",
		"The whole world is watching this one.",
		"Nobody saw this coming.",
		"This is bigger than it looks.",
	}
	ctaPhrases = []string{
		"What's your take on this? Drop your thoughts below! 👇",
		"Would this affect you? Tell me in the comments! 👇",
		"Follow for more world news. What do you think? 👇",
	}
)

const fallbackDescRunes = 100

func (s *Synthesizer) script(ctx context.Context, story news.Story) StageResult[string] {
	key := cache.Key("script", news.StoryKey(story))
	if s.cache != nil {
		if text, found := s.cache.Get(key); found {
			if s.budget != nil {
				s.budget.RecordCacheHit()
			}
			return ok(text)
		}
	}

	if len(s.models) == 0 {
		return degraded(s.Fallback(story), "no script model configured")
	}

	prompt := BuildPrompt(story)
	var reasons []string
	for _, m := range s.models {
		if s.budget != nil {
			if err := s.budget.Use(m.Name()); err != nil {
				reasons = append(reasons, err.Error())
				continue
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.opts.ScriptTimeout)
		text, err := m.Generate(callCtx, prompt)
		cancel()
		if err != nil {
			s.logger.Warn("script model failed", "model", m.Name(), "error", err)
			reasons = append(reasons, fmt.Sprintf("%s: %v", m.Name(), err))
			continue
		}

		text = Sanitize(text, s.opts.MaxScriptRunes)
		if text == "" {
			reasons = append(reasons, m.Name()+": empty response")
			continue
		}
		if s.cache != nil {
			s.cache.Set(key, text, s.opts.CacheTTL)
		}
		return ok(text)
	}

	return degraded(s.Fallback(story), strings.Join(reasons, "; "))
}

// Fallback builds a templated script from the phrase pools. It never
// returns an empty string.
func (s *Synthesizer) Fallback(story news.Story) string {
	s.mu.Lock()
	hook := hookPhrases[s.rng.IntN(len(hookPhrases))]
	reaction := reactionPhrases[s.rng.IntN(len(reactionPhrases))]
	cta := ctaPhrases[s.rng.IntN(len(ctaPhrases))]
	s.mu.Unlock()

	title := strings.TrimSpace(story.Title)
	if title == "" {
		title = "Major world news"
	}
	desc := []rune(strings.TrimSpace(story.Description))
	if len(desc) > fallbackDescRunes {
		desc = desc[:fallbackDescRunes]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", hook, title)
	fmt.Fprintf(&b, "%s Here's what you need to know: %s...\n\n", reaction, strings.TrimSpace(string(desc)))
	b.WriteString("This matters because it could impact global politics, economy, and your daily life.\n\n")
	b.WriteString(cta)
	if story.Source != "" {
		fmt.Fprintf(&b, "\n\nSource: %s", story.Source)
	}
	return b.String()
}

var scriptLabels = []string{"script:", "**script:**", "tiktok script:", "video script:"}

var reInlineNote = regexp.MustCompile(`(?i)\s*[(\[]\s*note:[^)\]]*[)\]]`)

// Sanitize trims model output: "Note:" disclaimers, wrapping quotes and a
// leading "Script:" label are removed and the result is capped at maxRunes.
func Sanitize(text string, maxRunes int) string {
	text = stripNotes(text)
	for {
		lower := strings.ToLower(text)
		stripped := false
		for _, label := range scriptLabels {
			if strings.HasPrefix(lower, label) {
				text = strings.TrimSpace(text[len(label):])
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	for len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			text = strings.TrimSpace(text[1 : len(text)-1])
			continue
		}
		break
	}
	if maxRunes > 0 {
		text = news.Truncate(text, maxRunes, "...")
	}
	return text
}

func stripNotes(text string) string {
	text = reInlineNote.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "note:") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " "))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// StripEmoji removes symbols a speech synthesizer cannot read aloud.
func StripEmoji(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\uFE0F' || r == '\uFE0E' || r == '\u200D':
			continue
		case unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r) || unicode.Is(unicode.Cs, r):
			continue
		case r >= 0x1F000 && r <= 0x1FAFF:
			continue
		}
		b.WriteRune(r)
	}
	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
