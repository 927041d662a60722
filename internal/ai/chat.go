package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ai-content-pipeline/internal/telemetry"
)

const chatProvider = "chat"

// ChatClient adapts an OpenAI-compatible chat completion backend to the
// TextGenerator contract.
type ChatClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Raw request/response shapes of the chat backend. These never leave this file.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
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

// NewChatClient builds the adapter. timeout bounds every request so a hung
// upstream cannot occupy a worker indefinitely; zero means 60s.
func NewChatClient(cfg Config, timeout time.Duration) (*ChatClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &ChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "ai-chat"),
	}, nil
}

// GenerateText sends a chat completion request and returns the first choice.
func (c *ChatClient) GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error) {
	resp, err := c.send(ctx, prompt, systemPrompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", wrapProviderErr(chatProvider, err, "decode response")
	}
	if len(parsed.Choices) == 0 {
		return "", providerErr(chatProvider, resp.StatusCode, "response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// GenerateTextStream requests incremental delivery and hands the caller a
// live stream. The handshake failing fails here; mid-stream errors surface
// from Stream.Recv.
func (c *ChatClient) GenerateTextStream(ctx context.Context, prompt, systemPrompt string) (*Stream, error) {
	resp, err := c.send(ctx, prompt, systemPrompt, true)
	if err != nil {
		return nil, err
	}
	return newStream(chatProvider, resp.Body), nil
}

func (c *ChatClient) send(ctx context.Context, prompt, systemPrompt string, stream bool) (*http.Response, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream: stream,
	})
	if err != nil {
		return nil, wrapProviderErr(chatProvider, err, "marshal request")
	}

	url := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, wrapProviderErr(chatProvider, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	telemetry.ProviderCalls.WithLabelValues(chatProvider).Inc()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.ProviderErrors.WithLabelValues(chatProvider).Inc()
		return nil, wrapProviderErr(chatProvider, err, "http call")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorBody(resp.Body)
		resp.Body.Close()
		telemetry.ProviderErrors.WithLabelValues(chatProvider).Inc()
		c.logger.Warn("chat backend returned non-2xx", "status", resp.StatusCode, "model", c.cfg.Model)
		return nil, providerErr(chatProvider, resp.StatusCode, "%s", detail)
	}
	return resp, nil
}

// readErrorBody extracts a loggable message from an error response without
// trusting its shape.
func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "upstream call failed"
	}
	var parsed chatResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return fmt.Sprintf("upstream call failed: %s", bytes.TrimSpace(raw))
}
