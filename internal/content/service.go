// Package content composes provider calls into the domain operations the
// facade and workers expose: long-form generation, SEO metadata, tags, and
// summaries. Except for SEO extraction, provider failures propagate as-is;
// no operation here retries.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ai-content-pipeline/internal/ai"
)

// Service bundles the adapter contracts the content operations need.
type Service struct {
	generator  ai.TextGenerator
	summarizer ai.Summarizer
	embedder   ai.Embedder
	logger     *slog.Logger
}

// New constructs the service. All three dependencies are required.
func New(generator ai.TextGenerator, summarizer ai.Summarizer, embedder ai.Embedder) *Service {
	return &Service{
		generator:  generator,
		summarizer: summarizer,
		embedder:   embedder,
		logger:     slog.Default().With("component", "content"),
	}
}

// GenerateArticle produces a long-form article for the topic, following the
// outline when one is given.
func (s *Service) GenerateArticle(ctx context.Context, topic, outline string) (string, error) {
	return s.generator.GenerateText(ctx, articlePrompt(topic, outline), "")
}

// GenerateArticleStream is the streaming variant of GenerateArticle.
func (s *Service) GenerateArticleStream(ctx context.Context, topic, outline string) (*ai.Stream, error) {
	return s.generator.GenerateTextStream(ctx, articlePrompt(topic, outline), "")
}

// Summarize is a thin pass-through to the summarization backend.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	return s.summarizer.GenerateSummary(ctx, text)
}

// EmbedText is a thin pass-through to the embedding backend.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.GenerateEmbedding(ctx, text)
}

// GenerateTags asks for a comma-separated list and normalizes it: split on
// commas, trim, drop empties, keep order. An empty list is a valid result.
func (s *Service) GenerateTags(ctx context.Context, text string) ([]string, error) {
	raw, err := s.generator.GenerateText(ctx, tagsPrompt(text), "")
	if err != nil {
		return nil, err
	}
	return SplitTags(raw), nil
}

// SplitTags parses a comma-separated tag list.
func SplitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if tag := strings.TrimSpace(p); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func articlePrompt(topic, outline string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a complete blog article about %q.\n", topic)
	if outline != "" {
		fmt.Fprintf(&b, "Follow this outline:\n%s\n", outline)
	}
	b.WriteString("Use markdown headings and write in an engaging, informative tone.")
	return b.String()
}

func tagsPrompt(text string) string {
	return "Suggest up to 8 topical tags for the following article. " +
		"Respond with only a comma-separated list, no other text.\n\n" + text
}
