// Package llm provides a thin client for structured-output model calls. The
// engine uses it for query phrasing expansion and last-resort field
// extraction; verification never calls a model.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client defines the model operations used by the engine.
type Client interface {
	// ExtractStructured sends a prompt expected to yield a single JSON value
	// and returns the validated raw JSON.
	ExtractStructured(ctx context.Context, system, prompt string) (json.RawMessage, error)
}

// Config tunes the Anthropic-backed client.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-haiku-4-5-20251001"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	return c
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
	cfg    Config
}

// NewAnthropic creates a Client backed by the Anthropic API.
func NewAnthropic(apiKey string, cfg Config) Client {
	return &sdkClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg.withDefaults(),
	}
}

func (c *sdkClient) ExtractStructured(ctx context.Context, system, prompt string) (json.RawMessage, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.cfg.Model),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: sdk.Float(c.cfg.Temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "llm: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseJSONBlock(text.String())
}

// ParseJSONBlock extracts and validates the first JSON value from model
// output, tolerating markdown code fences and surrounding prose.
func ParseJSONBlock(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, eris.Errorf("llm: no JSON value in output: %q", truncate(s, 120))
	}
	s = s[start:]

	// Walk to the matching close so trailing prose is ignored.
	var dec = json.NewDecoder(strings.NewReader(s))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, eris.Wrap(err, "llm: decode JSON output")
	}
	raw := json.RawMessage(s[:dec.InputOffset()])
	if !json.Valid(raw) {
		return nil, eris.New("llm: output is not valid JSON")
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
