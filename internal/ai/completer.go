// Package ai talks to the summarization provider and turns its replies into
// article blocks, persona opinions and translations.
package ai

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/config"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("ai: api key not configured")

// Request is a single chat completion.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature *float32
	Schema      *JSONSchema
}

// JSONSchema asks the provider for structured output.
type JSONSchema struct {
	Name   string
	Strict bool
	Schema map[string]any
}

// Completer produces the assistant's reply text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Temp returns a pointer for Request.Temperature.
func Temp(t float32) *float32 {
	return &t
}

// NewCompleter builds the provider client selected by cfg. It returns
// ErrNotConfigured when the provider's key is blank.
func NewCompleter(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (Completer, error) {
	key := strings.TrimSpace(cfg.Key())
	if key == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.Provider {
	case "gemini":
		model := cfg.Model
		if model == "" || strings.HasPrefix(model, "gpt") {
			model = DefaultGeminiModel
		}
		return NewGeminiClient(ctx, key, model)
	default:
		client := resty.New()
		if cfg.TimeoutSeconds > 0 {
			client.SetTimeout(secondsDuration(cfg.TimeoutSeconds))
		}
		return NewOpenAIClient(client, cfg.BaseURL, key, cfg.Model, logger), nil
	}
}

func closeCompleter(c Completer) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
