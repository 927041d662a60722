package models

import (
	"encoding/json"
	"fmt"
)

// Payload variants per job name. Each handler decodes and validates the
// variant for its job before doing any work, so malformed enqueues fail
// fast instead of partway through a provider call.

// ArticlePayload is the input for generate-article jobs.
type ArticlePayload struct {
	Topic   string `json:"topic"`
	Outline string `json:"outline,omitempty"`
}

func (p ArticlePayload) Validate() error {
	if p.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidPayload)
	}
	return nil
}

// SeoPayload is the input for generate-seo jobs.
type SeoPayload struct {
	Content string `json:"content"`
}

func (p SeoPayload) Validate() error {
	if p.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}
	return nil
}

// EmbeddingsPayload is the input for generate-embeddings jobs.
type EmbeddingsPayload struct {
	Content string `json:"content"`
	PostID  string `json:"postId"`
}

func (p EmbeddingsPayload) Validate() error {
	if p.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}
	if p.PostID == "" {
		return fmt.Errorf("%w: postId is required", ErrInvalidPayload)
	}
	return nil
}

// ValidatePayload decodes raw against the variant for jobName and runs its
// validation. Used at enqueue time so the API rejects bad payloads before a
// job record is ever created.
func ValidatePayload(jobName string, raw json.RawMessage) error {
	switch jobName {
	case JobGenerateArticle:
		var p ArticlePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p.Validate()
	case JobGenerateSEO:
		var p SeoPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p.Validate()
	case JobGenerateEmbeddings:
		var p EmbeddingsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p.Validate()
	default:
		return fmt.Errorf("%w: unknown job name %q", ErrInvalidPayload, jobName)
	}
}
