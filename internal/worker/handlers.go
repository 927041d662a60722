package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-content-pipeline/internal/content"
	"ai-content-pipeline/internal/models"
)

// embeddingSaver is the slice of the store the embeddings handler writes to.
type embeddingSaver interface {
	SaveEmbedding(ctx context.Context, postID, content string, vector []float32) (string, error)
}

// Handlers owns the per-job-name execution logic. Content services never see
// the job record; they return plain results that the processor attaches.
type Handlers struct {
	content *content.Service
	vectors embeddingSaver
}

// NewHandlers builds the handler set and registers it on the processor.
func NewHandlers(svc *content.Service, vectors embeddingSaver) *Handlers {
	return &Handlers{content: svc, vectors: vectors}
}

// Register binds every job name to its handler.
func (h *Handlers) Register(p *Processor) {
	p.RegisterHandler(models.JobGenerateArticle, h.GenerateArticle)
	p.RegisterHandler(models.JobGenerateSEO, h.GenerateSEO)
	p.RegisterHandler(models.JobGenerateEmbeddings, h.GenerateEmbeddings)
}

// GenerateArticle runs a generate-article job: progress at start, one slow
// provider call, result {"content": ...}.
func (h *Handlers) GenerateArticle(ctx context.Context, job models.Job, report ProgressFunc) (json.RawMessage, error) {
	var p models.ArticlePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	report(10)
	article, err := h.content.GenerateArticle(ctx, p.Topic, p.Outline)
	if err != nil {
		return nil, err
	}
	report(100)

	return json.Marshal(map[string]string{"content": article})
}

// GenerateSEO runs a generate-seo job. The operation is fast, so no
// intermediate progress is reported. Metadata generation never fails; the
// fallback result still completes the job, flagged for the caller.
func (h *Handlers) GenerateSEO(ctx context.Context, job models.Job, _ ProgressFunc) (json.RawMessage, error) {
	var p models.SeoPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	meta := h.content.GenerateSEO(ctx, p.Content)
	return json.Marshal(meta)
}

// GenerateEmbeddings runs a generate-embeddings job: embed the content, then
// persist the vector. Result is {"vectorId": ...}.
func (h *Handlers) GenerateEmbeddings(ctx context.Context, job models.Job, report ProgressFunc) (json.RawMessage, error) {
	var p models.EmbeddingsPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	report(25)
	vector, err := h.content.EmbedText(ctx, p.Content)
	if err != nil {
		return nil, err
	}

	report(75)
	vectorID, err := h.vectors.SaveEmbedding(ctx, p.PostID, p.Content, vector)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{"vectorId": vectorID})
}
