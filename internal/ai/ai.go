// Package ai defines the contract over external text and embedding providers.
//
// Two backends with genuinely different JSON shapes sit behind these
// interfaces: an inference-style API that answers with top-level arrays
// (generated_text, summary_text, flat or batched embedding vectors) and a
// chat-style API that answers with choices[0].message.content. Each adapter
// owns its backend's raw shapes and normalizes them here at the boundary;
// raw provider JSON never crosses into the rest of the system.
package ai

import (
	"context"
	"errors"
)

// DefaultSystemPrompt is sent when the caller does not supply one.
const DefaultSystemPrompt = "You are a helpful writing assistant for a blog platform. " +
	"Write clear, well-structured prose."

// TextGenerator produces long-form text from a prompt.
// Implementations must be safe for concurrent use.
type TextGenerator interface {
	// GenerateText sends a completion request and returns the first
	// completion's text. systemPrompt may be empty, in which case
	// DefaultSystemPrompt is used.
	GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error)

	// GenerateTextStream issues the same request with incremental delivery.
	// The returned stream is single-pass and non-restartable; the caller
	// must drain or Close it.
	GenerateTextStream(ctx context.Context, prompt, systemPrompt string) (*Stream, error)
}

// Summarizer condenses text with fixed length parameters.
type Summarizer interface {
	// GenerateSummary returns an empty string, not an error, when the
	// response shape is present but carries no summary.
	GenerateSummary(ctx context.Context, text string) (string, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	// GenerateEmbedding always returns exactly one vector, taking the first
	// element when the backend answers with a batch.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Config carries the connection settings for one adapter. Values come from
// application configuration, never from the environment inside the adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("ai config: BaseURL is required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	return nil
}
