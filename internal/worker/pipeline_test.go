package worker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ai-content-pipeline/internal/ai/mock"
	"ai-content-pipeline/internal/content"
	"ai-content-pipeline/internal/models"
	"ai-content-pipeline/internal/queue"
	"ai-content-pipeline/internal/search"
	"ai-content-pipeline/internal/store"
)

// vectorStore keeps saved embeddings and answers nearest-neighbor queries
// over them, standing in for the pgvector-backed store.
type vectorStore struct {
	mu      sync.Mutex
	records []savedVector
}

type savedVector struct {
	id      string
	postID  string
	content string
	vector  []float32
}

func (v *vectorStore) SaveEmbedding(_ context.Context, postID, text string, vector []float32) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec := savedVector{
		id:      fmt.Sprintf("vec-%d", len(v.records)+1),
		postID:  postID,
		content: text,
		vector:  vector,
	}
	v.records = append(v.records, rec)
	return rec.id, nil
}

func (v *vectorStore) NearestEmbeddings(_ context.Context, query []float32, limit int) ([]store.EmbeddingMatch, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	matches := make([]store.EmbeddingMatch, 0, len(v.records))
	for _, rec := range v.records {
		matches = append(matches, store.EmbeddingMatch{
			ID:         rec.id,
			PostID:     rec.postID,
			Content:    rec.content,
			Similarity: cosine(query, rec.vector),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TestEmbedThenSearchPipeline drives the full loop: embedding jobs go through
// the queue and worker, then a query against the same index ranks the post
// with identical content first.
func TestEmbedThenSearchPipeline(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(client, time.Minute)
	st := newMemJobStore()
	p := New(q, st, nil, 10*time.Millisecond, "test-worker")

	embedder := mock.NewEmbedder()
	svc := content.New(mock.NewGenerator(), mock.NewSummarizer(), embedder)
	vectors := &vectorStore{}
	NewHandlers(svc, vectors).Register(p)

	ctx := context.Background()
	posts := map[string]string{
		"p1": "goroutines and channels in go",
		"p2": "baking sourdough bread at home",
		"p3": "tuning postgres query plans",
	}
	i := 0
	for postID, text := range posts {
		i++
		jobID := fmt.Sprintf("j%d", i)
		st.add(jobID, models.QueueContentOps, models.JobGenerateEmbeddings,
			fmt.Sprintf(`{"content":%q,"postId":%q}`, text, postID))
		if err := q.Enqueue(ctx, models.QueueContentOps, jobID); err != nil {
			t.Fatalf("enqueue %s: %v", jobID, err)
		}
	}

	for range posts {
		leaseAndProcess(t, p, q, models.QueueContentOps)
	}
	for i := 1; i <= len(posts); i++ {
		job := st.get(fmt.Sprintf("j%d", i))
		if job.Status != models.StatusCompleted {
			t.Fatalf("job j%d status = %s (reason=%v)", i, job.Status, job.FailureReason)
		}
	}

	searcher := search.New(vectors, embedder)
	matches, err := searcher.Search(ctx, "baking sourdough bread at home", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(matches))
	}
	if matches[0].PostID != "p2" {
		t.Fatalf("top match = %s, want p2 (got %+v)", matches[0].PostID, matches)
	}
	if math.Abs(matches[0].Similarity-1.0) > 1e-6 {
		t.Fatalf("top similarity = %f, want ~1.0", matches[0].Similarity)
	}
	if matches[1].Similarity > matches[0].Similarity {
		t.Fatalf("results not ordered by similarity: %+v", matches)
	}
}
