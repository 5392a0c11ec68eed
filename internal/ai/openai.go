package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/logging"
)

// DefaultOpenAIBaseURL is the public OpenAI API root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// APIError is an error payload returned by an OpenAI-compatible endpoint.
type APIError struct {
	Status  int
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: status %d: %s", e.Status, e.Message)
}

func (e *APIError) mentions(word string) bool {
	return strings.Contains(strings.ToLower(e.Message+" "+e.Param+" "+e.Code), word)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         *float32        `json:"temperature,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// OpenAIClient calls /chat/completions on an OpenAI-compatible API.
type OpenAIClient struct {
	client *resty.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient configures client for baseURL with bearer apiKey.
func NewOpenAIClient(client *resty.Client, baseURL, apiKey, model string, logger *zap.Logger) *OpenAIClient {
	if client == nil {
		client = resty.New().SetTimeout(2 * time.Minute)
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	client.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &OpenAIClient{client: client, model: model, logger: logging.OrNop(logger).Named("openai")}
}

// Complete implements Completer. Models that reject a custom temperature are
// retried with temperature 1 and then with none.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	body := c.buildRequest(req)
	out, err := c.send(ctx, body)
	if err == nil {
		return out, nil
	}
	var apiErr *APIError
	if body.Temperature == nil || !errors.As(err, &apiErr) || !apiErr.mentions("temperature") {
		return "", err
	}
	c.logger.Debug("model rejected temperature, retrying", zap.String("model", c.model))
	body.Temperature = Temp(1)
	if out, err = c.send(ctx, body); err == nil {
		return out, nil
	}
	body.Temperature = nil
	return c.send(ctx, body)
}

func (c *OpenAIClient) buildRequest(req Request) chatRequest {
	body := chatRequest{
		Model:               c.model,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})
	if req.Schema != nil {
		body.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   req.Schema.Name,
				Strict: req.Schema.Strict,
				Schema: req.Schema.Schema,
			},
		}
	}
	return body
}

func (c *OpenAIClient) send(ctx context.Context, body chatRequest) (string, error) {
	var (
		result  chatResponse
		failure errorEnvelope
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if resp.IsError() {
		if failure.Error != nil {
			failure.Error.Status = resp.StatusCode()
			return "", failure.Error
		}
		return "", &APIError{Status: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
	}
	if len(result.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
