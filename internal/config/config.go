// Package config loads runtime settings from the environment (and an
// optional .env file) plus the sources YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/deusflow/worldnews/internal/rss"
)

// DefaultCountries is the country rotation used when neither COUNTRIES nor
// the sources file lists any.
var DefaultCountries = []string{
	"us", "gb", "ca", "au", "in",
	"de", "fr", "jp", "br", "mx",
	"sa", "ae", "eg", "tr", "il",
}

// MaxCaptionScriptRunes keeps script plus hashtags under Telegram's
// 1024 character caption limit.
const MaxCaptionScriptRunes = 900

type Config struct {
	// Headline API
	NewsAPIKey     string
	NewsAPIBaseURL string

	// Source rotation
	Countries         []string
	CountriesPerCycle int
	HeadlinePageSize  int
	Feeds             []rss.FeedSource
	FeedsPerCycle     int
	FeedItemLimit     int
	SourcesPath       string
	SourceDelay       time.Duration
	SourceTimeout     time.Duration
	FetchConcurrency  int
	UserAgent         string

	// Script models
	GroqAPIKey       string
	GroqModel        string
	GeminiAPIKey     string
	GeminiModel      string
	MaxModelRequests int // per day across providers, 0 = unlimited
	ScriptTimeout    time.Duration
	ScriptCacheTTL   time.Duration

	// Media
	ElevenLabsKey string
	VoiceID       string
	FFmpegPath    string
	FontFile      string
	EnableVideo   bool
	VideoDuration int
	MediaDir      string

	// Publishing
	TelegramToken      string
	TelegramChatID     string
	CaptionScriptRunes int

	// Cycle
	StoriesPerCycle  int
	PostInterval     time.Duration
	ScheduleInterval time.Duration
	RunOnStart       bool
	StartDelay       time.Duration
	HistorySize      int
	Port             int

	// Archive of published stories
	ArchiveDriver     string // "", file, postgres, sqlite
	DatabaseURL       string
	ArchivePath       string
	SkipPublished     bool
	PublishedTTLHours int

	LogLevel  string
	LogFormat string
}

// Load reads the configuration. A missing .env or sources file is fine.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		NewsAPIKey:     os.Getenv("NEWS_API_KEY"),
		NewsAPIBaseURL: getEnvOrDefault("NEWSAPI_BASE_URL", "https://newsapi.org"),

		CountriesPerCycle: getEnvIntOrDefault("COUNTRIES_PER_CYCLE", 5),
		HeadlinePageSize:  getEnvIntOrDefault("HEADLINE_PAGE_SIZE", 5),
		FeedsPerCycle:     getEnvIntOrDefault("FEEDS_PER_CYCLE", 0),
		FeedItemLimit:     getEnvIntOrDefault("FEED_ITEM_LIMIT", 5),
		SourcesPath:       getEnvOrDefault("SOURCES_CONFIG_PATH", "configs/sources.yaml"),
		SourceDelay:       getEnvDurationOrDefault("SOURCE_DELAY", 2*time.Second),
		SourceTimeout:     getEnvDurationOrDefault("SOURCE_TIMEOUT", 10*time.Second),
		FetchConcurrency:  getEnvIntOrDefault("FETCH_CONCURRENCY", 4),
		UserAgent:         getEnvOrDefault("USER_AGENT", "worldnews/1.0 (+https://github.com/deusflow/worldnews)"),

		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		GroqModel:        getEnvOrDefault("GROQ_MODEL", "llama3-8b-8192"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		MaxModelRequests: getEnvIntOrDefault("MAX_MODEL_REQUESTS", 0),
		ScriptTimeout:    getEnvDurationOrDefault("SCRIPT_TIMEOUT", 20*time.Second),
		ScriptCacheTTL:   getEnvDurationOrDefault("SCRIPT_CACHE_TTL", 6*time.Hour),

		ElevenLabsKey: os.Getenv("ELEVENLABS_API_KEY"),
		VoiceID:       getEnvOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		FFmpegPath:    getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FontFile:      os.Getenv("FONT_FILE"),
		EnableVideo:   getEnvBoolOrDefault("ENABLE_VIDEO", true),
		VideoDuration: getEnvIntOrDefault("VIDEO_DURATION", 60),
		MediaDir:      getEnvOrDefault("MEDIA_DIR", "./media"),

		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:     os.Getenv("TELEGRAM_CHAT_ID"),
		CaptionScriptRunes: getEnvIntOrDefault("CAPTION_SCRIPT_RUNES", 280),

		StoriesPerCycle:  getEnvIntOrDefault("STORIES_PER_CYCLE", 3),
		PostInterval:     getEnvDurationOrDefault("POST_INTERVAL", 15*time.Minute),
		ScheduleInterval: getEnvDurationOrDefault("SCHEDULE_INTERVAL", 2*time.Hour),
		RunOnStart:       getEnvBoolOrDefault("RUN_ON_START", true),
		StartDelay:       getEnvDurationOrDefault("START_DELAY", 10*time.Second),
		HistorySize:      getEnvIntOrDefault("HISTORY_SIZE", 20),
		Port:             getEnvIntOrDefault("PORT", 3000),

		ArchiveDriver:     strings.ToLower(os.Getenv("ARCHIVE_DRIVER")),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ArchivePath:       os.Getenv("ARCHIVE_PATH"),
		SkipPublished:     getEnvBoolOrDefault("SKIP_PUBLISHED", false),
		PublishedTTLHours: getEnvIntOrDefault("PUBLISHED_TTL_HOURS", 48),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.ArchivePath == "" {
		cfg.ArchivePath = "published.json"
		if cfg.ArchiveDriver == "sqlite" {
			cfg.ArchivePath = "worldnews.db"
		}
	}

	if os.Getenv("DEBUG") == "true" {
		cfg.LogLevel = "debug"
	}

	sources, err := rss.LoadSources(cfg.SourcesPath)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	cfg.Feeds = sources.Feeds
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = rss.DefaultFeeds
	}

	switch {
	case os.Getenv("COUNTRIES") != "":
		cfg.Countries = splitList(os.Getenv("COUNTRIES"))
	case len(sources.Countries) > 0:
		cfg.Countries = sources.Countries
	default:
		cfg.Countries = DefaultCountries
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.StoriesPerCycle < 1 {
		return fmt.Errorf("STORIES_PER_CYCLE must be at least 1")
	}
	if c.CountriesPerCycle < 0 || c.FeedsPerCycle < 0 {
		return fmt.Errorf("COUNTRIES_PER_CYCLE and FEEDS_PER_CYCLE must not be negative")
	}
	if c.HeadlinePageSize < 1 || c.FeedItemLimit < 1 {
		return fmt.Errorf("HEADLINE_PAGE_SIZE and FEED_ITEM_LIMIT must be at least 1")
	}
	if c.CaptionScriptRunes < 1 || c.CaptionScriptRunes > MaxCaptionScriptRunes {
		return fmt.Errorf("CAPTION_SCRIPT_RUNES must be between 1 and %d", MaxCaptionScriptRunes)
	}
	if c.ScheduleInterval <= 0 {
		return fmt.Errorf("SCHEDULE_INTERVAL must be positive")
	}
	if c.PostInterval < 0 || c.SourceDelay < 0 {
		return fmt.Errorf("POST_INTERVAL and SOURCE_DELAY must not be negative")
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("HISTORY_SIZE must be at least 1")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.PublishedTTLHours < 1 {
		return fmt.Errorf("PUBLISHED_TTL_HOURS must be at least 1")
	}
	if c.FontFile != "" {
		if _, err := os.Stat(c.FontFile); err != nil {
			return fmt.Errorf("FONT_FILE: %w", err)
		}
	}
	switch c.ArchiveDriver {
	case "", "file", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres archive")
		}
	default:
		return fmt.Errorf("ARCHIVE_DRIVER must be one of file, postgres, sqlite")
	}
	return nil
}

// Configured reports which optional collaborators have credentials.
func (c *Config) Configured() map[string]bool {
	return map[string]bool{
		"newsapi":    c.NewsAPIKey != "",
		"groq":       c.GroqAPIKey != "",
		"gemini":     c.GeminiAPIKey != "",
		"elevenlabs": c.ElevenLabsKey != "",
		"telegram":   c.TelegramToken != "" && c.TelegramChatID != "",
		"video":      c.EnableVideo,
		"archive":    c.ArchiveDriver != "",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") or bare seconds.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
