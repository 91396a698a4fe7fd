// Package claude talks to the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harrisonrobin/jarvis/pkg/conversation"
	"github.com/harrisonrobin/jarvis/pkg/model"
)

const (
	DefaultBaseURL     = "https://api.anthropic.com/"
	DefaultModel       = "claude-3-7-sonnet-20250219"
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
)

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client implements conversation.Model.
type Client struct {
	cfg Config
	api anthropic.Client
}

var _ conversation.Model = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key is not set", model.ErrValidation)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	// Request paths already start with v1/.
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1") + "/"
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	api := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	)
	return &Client{cfg: cfg, api: api}, nil
}

// Complete sends the window and returns the concatenated text blocks of the
// answer. The API wants the conversation to open with a user turn, so leading
// assistant turns are dropped.
func (c *Client) Complete(ctx context.Context, system string, turns []conversation.Turn) (string, error) {
	for len(turns) > 0 && turns[0].Role != conversation.RoleUser {
		turns = turns[1:]
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("%w: no user message to send", model.ErrValidation)
	}

	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == conversation.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(c.cfg.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: claude returned HTTP %d: %w", model.ErrExternalService, apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("%w: claude request: %w", model.ErrExternalService, err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: claude returned no text (stop reason %q)", model.ErrExternalService, msg.StopReason)
	}
	return strings.Join(parts, ""), nil
}
