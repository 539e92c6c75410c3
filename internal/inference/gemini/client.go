// Package gemini implements the inference contract on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jobscout-dev/jobscout/internal/inference"
	"github.com/jobscout-dev/jobscout/internal/logger"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	defaultMaxLogLen  = 200

	retryBaseDelay = time.Second
)

var sleep = time.Sleep

// contentCaller matches the genai Models surface the client depends on.
// Narrowed to an interface so tests can swap the API out.
type contentCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client calls the Gemini API with deterministic decoding. It implements
// inference.Generator.
type Client struct {
	models     contentCaller
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

// New creates a Client configured for the Gemini API backend.
func New(ctx context.Context, apiKey, model string, maxRetries int, log *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Client{
		models:     client.Models,
		model:      model,
		maxRetries: maxRetries,
		maxLogLen:  defaultMaxLogLen,
		logger:     logger.WithBackendFields(log, "gemini", model),
	}, nil
}

// Generate sends the system instructions and user text to Gemini and returns
// the first textual response. Temporary API errors are retried up to the
// configured bound.
func (c *Client) Generate(ctx context.Context, systemInstructions, userText string) (string, error) {
	if c == nil || c.models == nil {
		return "", errors.New("gemini client is not initialized")
	}

	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", errors.New("user text must not be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if instructions := strings.TrimSpace(systemInstructions); instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(instructions, genai.RoleUser)
	}

	c.logger.Debug("gemini generate content request",
		zap.Int("user_text_length", utf8.RuneCountInString(userText)),
		zap.String("user_text_preview", logger.TruncateForLog(userText, c.maxLogLen)),
	)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(userText), config)
		if err == nil {
			return c.collectText(resp)
		}

		lastErr = err
		if !retryable(err) {
			return "", fmt.Errorf("generate content: %w", err)
		}

		if attempt < c.maxRetries {
			delay := retryBaseDelay * time.Duration(attempt)
			c.logger.Debug("retrying gemini call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			sleep(delay)
		}
	}

	return "", fmt.Errorf("generate content after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) collectText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", inference.ErrEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", inference.ErrEmptyResponse
	}

	c.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", logger.TruncateForLog(output, c.maxLogLen)),
	)

	return output, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

func retryable(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusTooManyRequests
}
