package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ai-content-pipeline/internal/telemetry"
)

const inferenceProvider = "inference"

// Summary length parameters sent on every summarization request.
const (
	summaryMinLength = 30
	summaryMaxLength = 150
)

// InferenceClient adapts an inference-style backend whose responses are
// top-level JSON arrays: [{"generated_text": ...}] for text,
// [{"summary_text": ...}] for summaries, and either a flat vector or a batch
// of vectors for embeddings. It implements TextGenerator (non-streaming),
// Summarizer, and Embedder.
type InferenceClient struct {
	textCfg      Config
	summaryCfg   Config
	embeddingCfg Config
	httpClient   *http.Client
	logger       *slog.Logger
}

type inferenceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// NewInferenceClient builds the adapter. Each task targets its own model so
// the three configs may differ only in Model while sharing APIKey/BaseURL.
func NewInferenceClient(textCfg, summaryCfg, embeddingCfg Config, timeout time.Duration) (*InferenceClient, error) {
	for _, cfg := range []Config{textCfg, summaryCfg, embeddingCfg} {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &InferenceClient{
		textCfg:      textCfg,
		summaryCfg:   summaryCfg,
		embeddingCfg: embeddingCfg,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       slog.Default().With("component", "ai-inference"),
	}, nil
}

// GenerateText returns the generated_text of the first array element.
func (c *InferenceClient) GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	raw, err := c.post(ctx, c.textCfg, inferenceRequest{Inputs: systemPrompt + "\n\n" + prompt})
	if err != nil {
		return "", err
	}

	var parsed []struct {
		GeneratedText *string `json:"generated_text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", providerErr(inferenceProvider, 0, "unexpected text response shape: %v", err)
	}
	if len(parsed) == 0 || parsed[0].GeneratedText == nil {
		return "", providerErr(inferenceProvider, 0, "response missing generated_text")
	}
	return *parsed[0].GeneratedText, nil
}

// GenerateTextStream is not supported by the inference backend; it satisfies
// TextGenerator by failing the handshake the same way a connection error would.
func (c *InferenceClient) GenerateTextStream(ctx context.Context, prompt, systemPrompt string) (*Stream, error) {
	return nil, providerErr(inferenceProvider, 0, "streaming not supported")
}

// GenerateSummary calls the summarization model with fixed min/max lengths.
// A present-but-empty summary yields "", nil: no summary available is not a
// failure.
func (c *InferenceClient) GenerateSummary(ctx context.Context, text string) (string, error) {
	raw, err := c.post(ctx, c.summaryCfg, inferenceRequest{
		Inputs: text,
		Parameters: map[string]any{
			"min_length": summaryMinLength,
			"max_length": summaryMaxLength,
		},
	})
	if err != nil {
		return "", err
	}

	var parsed []struct {
		SummaryText *string `json:"summary_text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", providerErr(inferenceProvider, 0, "unexpected summary response shape: %v", err)
	}
	if len(parsed) == 0 || parsed[0].SummaryText == nil {
		return "", nil
	}
	return *parsed[0].SummaryText, nil
}

// GenerateEmbedding accepts both a flat vector and a batch of vectors,
// always extracting exactly one.
func (c *InferenceClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	raw, err := c.post(ctx, c.embeddingCfg, inferenceRequest{Inputs: text})
	if err != nil {
		return nil, err
	}

	// Batched shape first: [[0.1, 0.2, ...], ...]
	var batch [][]float32
	if err := json.Unmarshal(raw, &batch); err == nil {
		if len(batch) == 0 || len(batch[0]) == 0 {
			return nil, providerErr(inferenceProvider, 0, "embedding batch is empty")
		}
		return batch[0], nil
	}

	// Flat shape: [0.1, 0.2, ...]
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, providerErr(inferenceProvider, 0, "embedding vector is empty")
		}
		return flat, nil
	}

	return nil, providerErr(inferenceProvider, 0, "response is neither a vector nor a batch of vectors")
}

func (c *InferenceClient) post(ctx context.Context, cfg Config, payload inferenceRequest) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapProviderErr(inferenceProvider, err, "marshal request")
	}

	url := cfg.BaseURL + "/models/" + cfg.Model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, wrapProviderErr(inferenceProvider, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	telemetry.ProviderCalls.WithLabelValues(inferenceProvider).Inc()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.ProviderErrors.WithLabelValues(inferenceProvider).Inc()
		return nil, wrapProviderErr(inferenceProvider, err, "http call")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorBody(resp.Body)
		telemetry.ProviderErrors.WithLabelValues(inferenceProvider).Inc()
		c.logger.Warn("inference backend returned non-2xx", "status", resp.StatusCode, "model", cfg.Model)
		return nil, providerErr(inferenceProvider, resp.StatusCode, "%s", detail)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapProviderErr(inferenceProvider, err, "read response")
	}
	return raw, nil
}
