// Package gemini is the Google Gemini script model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash"

var (
	ErrEmptyResponse = errors.New("gemini returned no text")
	ErrMissingAPIKey = errors.New("gemini API key is required")
)

// generator is the part of *genai.GenerativeModel the client calls.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	generator   generator
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model, maxTokens: 350, temperature: 0.8}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Generate sends the prompt and returns the model's text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.generativeModel().GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return textOf(resp)
}

func (c *Client) generativeModel() generator {
	if c.generator != nil {
		return c.generator
	}
	m := c.client.GenerativeModel(c.model)
	c.configure(m)
	return m
}

func (c *Client) configure(m *genai.GenerativeModel) {
	m.SetMaxOutputTokens(c.maxTokens)
	m.SetTemperature(c.temperature)
}

func textOf(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
