package content

import (
	"context"
	"encoding/json"
	"strings"
)

// SeoMetadata is produced fresh on every call and never persisted here.
// IsFallback distinguishes the best-effort fallback from a genuine result.
type SeoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	IsFallback  bool     `json:"isFallback,omitempty"`
}

// fallbackSeo is returned whenever extraction fails. Metadata generation is
// best-effort and must never block publishing.
func fallbackSeo() SeoMetadata {
	return SeoMetadata{
		Title:      "Generated Title Error",
		Keywords:   []string{},
		IsFallback: true,
	}
}

// GenerateSEO prompts for SEO metadata as JSON and extracts it from the
// response. It always succeeds: any provider or parse failure yields the
// fixed fallback with IsFallback set, so callers check the flag rather than
// an error.
func (s *Service) GenerateSEO(ctx context.Context, article string) SeoMetadata {
	raw, err := s.generator.GenerateText(ctx, seoPrompt(article), "")
	if err != nil {
		s.logger.Warn("seo generation failed, using fallback", "err", err)
		return fallbackSeo()
	}

	meta, ok := extractSeoJSON(raw)
	if !ok {
		s.logger.Warn("seo response had no parseable JSON, using fallback")
		return fallbackSeo()
	}
	return meta
}

// extractSeoJSON finds the first {...} span in a possibly markdown-wrapped
// response and unmarshals it. Models routinely wrap JSON in code fences or
// prose, so searching for the braces is more robust than trimming fences.
func extractSeoJSON(raw string) (SeoMetadata, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return SeoMetadata{}, false
	}

	var meta SeoMetadata
	if err := json.Unmarshal([]byte(raw[start:end+1]), &meta); err != nil {
		return SeoMetadata{}, false
	}
	if meta.Keywords == nil {
		meta.Keywords = []string{}
	}
	return meta, true
}

func seoPrompt(article string) string {
	return "Generate SEO metadata for the following article. Respond with a single JSON object " +
		`of the shape {"title": string (max 60 chars), "description": string (max 160 chars), ` +
		`"keywords": [string]} and nothing else.` + "\n\n" + article
}
