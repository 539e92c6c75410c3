// Package openaicompat implements the inference contract against a local
// OpenAI-compatible chat completions server (llama.cpp, ollama and friends).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jobscout-dev/jobscout/internal/inference"
	"github.com/jobscout-dev/jobscout/internal/logger"
)

const (
	completionsPath  = "/v1/chat/completions"
	defaultTimeout   = 5 * time.Minute
	defaultMaxLogLen = 200
)

// Client talks to a locally hosted model behind an OpenAI-compatible API.
// It implements inference.Generator.
type Client struct {
	baseURL   string
	model     string
	hc        *http.Client
	maxLogLen int
	logger    *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// New creates a Client pointed at the given base URL (for example
// http://127.0.0.1:8080). Model may be empty when the server hosts one model.
func New(baseURL, model string, log *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("local inference base url is required")
	}

	return &Client{
		baseURL:   baseURL,
		model:     strings.TrimSpace(model),
		hc:        &http.Client{Timeout: defaultTimeout},
		maxLogLen: defaultMaxLogLen,
		logger:    logger.WithBackendFields(log, "openai-compatible", model),
	}, nil
}

// Generate sends system and user messages with temperature pinned to zero and
// returns the first choice's content.
func (c *Client) Generate(ctx context.Context, systemInstructions, userText string) (string, error) {
	if c == nil || c.hc == nil {
		return "", errors.New("local inference client is not initialized")
	}

	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", errors.New("user text must not be empty")
	}

	messages := make([]chatMessage, 0, 2)
	if instructions := strings.TrimSpace(systemInstructions); instructions != "" {
		messages = append(messages, chatMessage{Role: "system", Content: instructions})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	c.logger.Debug("local generate request",
		zap.Int("user_text_length", utf8.RuneCountInString(userText)),
		zap.String("user_text_preview", logger.TruncateForLog(userText, c.maxLogLen)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completions call: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if res.StatusCode >= 400 {
		return "", fmt.Errorf("chat completions status %d: %s", res.StatusCode, logger.TruncateForLog(string(body), c.maxLogLen))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("chat completions error: %s", parsed.Error.Message)
	}

	if len(parsed.Choices) == 0 {
		return "", inference.ErrEmptyResponse
	}

	output := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if output == "" {
		return "", inference.ErrEmptyResponse
	}

	c.logger.Debug("local generate response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", logger.TruncateForLog(output, c.maxLogLen)),
	)

	return output, nil
}
