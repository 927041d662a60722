// Package mock provides test doubles for the ai package. Doubles default to
// deterministic behavior and allow behavior injection through function fields.
package mock

import (
	"context"
	"hash/fnv"
	"io"
	"math"
	"sync"

	"ai-content-pipeline/internal/ai"
)

// Dimension of vectors produced by the default deterministic embedder.
const Dimension = 384

// Generator is a test double for ai.TextGenerator.
type Generator struct {
	GenerateTextFunc func(ctx context.Context, prompt, systemPrompt string) (string, error)
	StreamFragments  []string
	StreamErr        error
	mu               sync.Mutex
	calls            int
}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateText echoes the prompt by default so tests can assert on prompt
// construction without scripting a response.
func (g *Generator) GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.GenerateTextFunc != nil {
		return g.GenerateTextFunc(ctx, prompt, systemPrompt)
	}
	return "generated: " + prompt, nil
}

// GenerateTextStream yields StreamFragments one by one, then StreamErr or a
// clean EOF. When no fragments are scripted, it streams the GenerateText
// result as a single fragment so streaming and non-streaming agree.
func (g *Generator) GenerateTextStream(ctx context.Context, prompt, systemPrompt string) (*ai.Stream, error) {
	fragments := g.StreamFragments
	if fragments == nil {
		full, err := g.GenerateText(ctx, prompt, systemPrompt)
		if err != nil {
			return nil, err
		}
		fragments = []string{full}
	}
	return ai.NewScriptedStream(fragments, g.StreamErr), nil
}

func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Embedder is a test double for ai.Embedder producing deterministic vectors
// from a text hash, so equal texts always embed identically.
type Embedder struct {
	GenerateEmbeddingFunc func(ctx context.Context, text string) ([]float32, error)
	mu                    sync.Mutex
	calls                 int
}

func NewEmbedder() *Embedder {
	return &Embedder{}
}

func (e *Embedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.GenerateEmbeddingFunc != nil {
		return e.GenerateEmbeddingFunc(ctx, text)
	}
	return DeterministicVector(text, Dimension), nil
}

func (e *Embedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Summarizer is a test double for ai.Summarizer.
type Summarizer struct {
	GenerateSummaryFunc func(ctx context.Context, text string) (string, error)
}

func NewSummarizer() *Summarizer {
	return &Summarizer{}
}

func (s *Summarizer) GenerateSummary(ctx context.Context, text string) (string, error) {
	if s.GenerateSummaryFunc != nil {
		return s.GenerateSummaryFunc(ctx, text)
	}
	if len(text) > 40 {
		return text[:40], nil
	}
	return text, nil
}

// DeterministicVector derives a unit-length vector of the given dimension
// from an FNV hash of the text.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	_, _ = io.WriteString(h, text)
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := range vector {
		seed = seed*1664525 + 1013904223
		vector[i] = float32(seed%1000)/1000.0 - 0.5
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		inv := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= inv
		}
	}
	return vector
}
