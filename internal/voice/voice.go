// Package voice synthesizes narration audio with the ElevenLabs
// text-to-speech API.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/worldnews/internal/retry"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultModel   = "eleven_monolingual_v1"
)

type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

var DefaultSettings = Settings{
	Stability:       0.6,
	SimilarityBoost: 0.8,
	Style:           0.2,
	SpeakerBoost:    true,
}

type Client struct {
	baseURL  string
	apiKey   string
	voiceID  string
	model    string
	settings Settings
	http     *http.Client
	retry    retry.RetryConfig
}

func NewClient(baseURL, apiKey, voiceID string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		voiceID:  voiceID,
		model:    DefaultModel,
		settings: DefaultSettings,
		http:     &http.Client{Timeout: timeout},
		retry:    retry.RetryConfig{MaxAttempts: 2, Delay: 2 * time.Second},
	}
}

type ttsRequest struct {
	Text          string   `json:"text"`
	ModelID       string   `json:"model_id"`
	VoiceSettings Settings `json:"voice_settings"`
}

// Synthesize returns MP3 audio for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("voice: empty text")
	}

	payload, err := json.Marshal(ttsRequest{Text: text, ModelID: c.model, VoiceSettings: c.settings})
	if err != nil {
		return nil, fmt.Errorf("voice: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)

	var audio []byte
	err = retry.WithRetry(ctx, c.retry, func() error {
		var err error
		audio, err = c.post(ctx, endpoint, payload)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}
	return audio, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}
	return data, nil
}
