package vectorize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/chunkforge/chunkforge/engine/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu       sync.Mutex
	pending  []domain.Chunk
	attached map[string][]float32
	status   domain.ProjectStatus
}

func newFakeStore(status domain.ProjectStatus, chunks ...domain.Chunk) *fakeStore {
	return &fakeStore{pending: chunks, attached: map[string][]float32{}, status: status}
}

func (f *fakeStore) ListUnvectorized(context.Context, int64) ([]domain.Chunk, error) {
	return f.pending, nil
}

func (f *fakeStore) AttachEmbedding(_ context.Context, id string, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[id] = vec
	return nil
}

func (f *fakeStore) TransitionStatus(_ context.Context, _ int64, from, to domain.ProjectStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != from {
		return false, nil
	}
	f.status = to
	return true, nil
}

func (f *fakeStore) SetStatus(_ context.Context, _ int64, status domain.ProjectStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	return nil
}

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    [][]string
	models   []string
	dims     []int
	failOn   string
	badWidth int
}

func (f *fakeEmbedder) Embed(_ context.Context, model string, input []string, dimensions int) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range input {
		if f.failOn != "" && strings.Contains(in, f.failOn) {
			return nil, fmt.Errorf("%w: boom", domain.ErrProvider)
		}
	}
	f.calls = append(f.calls, input)
	f.models = append(f.models, model)
	f.dims = append(f.dims, dimensions)
	out := make([][]float32, len(input))
	for i := range out {
		vec := make([]float32, f.vecLen())
		vec[0] = float32(len(input[i]))
		out[i] = vec
	}
	return out, nil
}

// vecLen is the width of returned vectors, the model width unless
// badWidth is set.
func (f *fakeEmbedder) vecLen() int {
	if f.badWidth > 0 {
		return f.badWidth
	}
	return domain.ModelTextEmbedding3Small.Dimensions()
}

func chunks(n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{ID: fmt.Sprintf("c%03d", i), Content: fmt.Sprintf("content %03d", i)}
	}
	return out
}

func TestVectorizeProjectNoopWhenAllEmbedded(t *testing.T) {
	store := newFakeStore(domain.StatusCompleted)
	p := New(store, &fakeEmbedder{}, nil, discard())
	project := &domain.Project{ID: 1, EmbeddingModel: domain.ModelTextEmbedding3Small}

	res, err := p.VectorizeProject(context.Background(), project)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 0 {
		t.Errorf("processed = %d, want 0", res.Processed)
	}
	if res.Message != "All documents are already vectorized." {
		t.Errorf("message = %q", res.Message)
	}
	if store.status != domain.StatusCompleted {
		t.Errorf("status should be untouched, got %s", store.status)
	}
}

func TestVectorizeProjectBulkBatches(t *testing.T) {
	store := newFakeStore(domain.StatusPending, chunks(60)...)
	emb := &fakeEmbedder{}
	p := New(store, emb, nil, discard())
	project := &domain.Project{ID: 1, EmbeddingModel: domain.ModelTextEmbedding3Large}

	res, err := p.VectorizeProject(context.Background(), project)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 60 {
		t.Errorf("processed = %d, want 60", res.Processed)
	}
	// 60 chunks at batch size 50 means two provider calls.
	if len(emb.calls) != 2 || len(emb.calls[0]) != 50 || len(emb.calls[1]) != 10 {
		t.Fatalf("calls = %d (%d, %d)", len(emb.calls), len(emb.calls[0]), len(emb.calls[1]))
	}
	if emb.models[0] != "text-embedding-3-large" || emb.dims[0] != 1536 {
		t.Errorf("model = %s, dims = %d", emb.models[0], emb.dims[0])
	}
	if len(store.attached) != 60 {
		t.Errorf("attached = %d, want 60", len(store.attached))
	}
	if store.status != domain.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", store.status)
	}
}

func TestVectorizeProjectFailureRollsBackStatus(t *testing.T) {
	store := newFakeStore(domain.StatusPending, chunks(60)...)
	// The second bulk batch holds chunk 50 and fails.
	emb := &fakeEmbedder{failOn: "content 055"}
	p := New(store, emb, nil, discard())
	project := &domain.Project{ID: 1, EmbeddingModel: domain.ModelTextEmbedding3Small}

	_, err := p.VectorizeProject(context.Background(), project)
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if store.status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING after failure", store.status)
	}
	// First batch's vectors stay attached.
	if len(store.attached) != 50 {
		t.Errorf("attached = %d, want 50 from the first batch", len(store.attached))
	}
}

func TestVectorizeRejectsWrongWidthVectors(t *testing.T) {
	store := newFakeStore(domain.StatusPending, chunks(3)...)
	emb := &fakeEmbedder{badWidth: 3}
	p := New(store, emb, nil, discard())
	project := &domain.Project{ID: 1, EmbeddingModel: domain.ModelTextEmbedding3Small}

	_, err := p.VectorizeProject(context.Background(), project)
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected provider error for wrong vector width, got %v", err)
	}
	if len(store.attached) != 0 {
		t.Errorf("attached = %d, want 0 when vectors are rejected", len(store.attached))
	}
	if store.status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING after failure", store.status)
	}
}

func TestVectorizeChunksPerRowCalls(t *testing.T) {
	store := newFakeStore(domain.StatusPending, chunks(20)...)
	emb := &fakeEmbedder{}
	p := New(store, emb, nil, discard())
	project := &domain.Project{ID: 1, EmbeddingModel: domain.ModelTextEmbeddingAda002}

	res, err := p.VectorizeChunks(context.Background(), project)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 20 {
		t.Errorf("processed = %d, want 20", res.Processed)
	}
	// One provider call per row.
	if len(emb.calls) != 20 {
		t.Errorf("calls = %d, want 20", len(emb.calls))
	}
	if emb.models[0] != "text-embedding-ada-002" || emb.dims[0] != 0 {
		t.Errorf("model = %s, dims = %d", emb.models[0], emb.dims[0])
	}
	if store.status != domain.StatusCompleted {
		t.Errorf("status = %s", store.status)
	}
}

func TestVectorizeConcurrentTriggerConflicts(t *testing.T) {
	store := newFakeStore(domain.StatusProcessing, chunks(3)...)
	p := New(store, &fakeEmbedder{}, nil, discard())
	project := &domain.Project{ID: 1, EmbeddingModel: domain.ModelTextEmbedding3Small}

	_, err := p.VectorizeProject(context.Background(), project)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict while PROCESSING, got %v", err)
	}
}

type fakeIndex struct {
	mu     sync.Mutex
	chunks int
	err    error
}

func (f *fakeIndex) Upsert(_ context.Context, _ *domain.Project, batch []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.chunks += len(batch)
	return nil
}

func TestVectorizeMirrorsToIndex(t *testing.T) {
	store := newFakeStore(domain.StatusPending, chunks(3)...)
	idx := &fakeIndex{}
	p := New(store, &fakeEmbedder{}, idx, discard())
	project := &domain.Project{ID: 1, EmbeddingModel: domain.ModelTextEmbedding3Small}

	if _, err := p.VectorizeProject(context.Background(), project); err != nil {
		t.Fatal(err)
	}
	if idx.chunks != 3 {
		t.Errorf("index received %d chunks, want 3", idx.chunks)
	}
}

func TestVectorizeIndexFailureIsNotFatal(t *testing.T) {
	store := newFakeStore(domain.StatusPending, chunks(3)...)
	idx := &fakeIndex{err: errors.New("index down")}
	p := New(store, &fakeEmbedder{}, idx, discard())
	project := &domain.Project{ID: 1, EmbeddingModel: domain.ModelTextEmbedding3Small}

	res, err := p.VectorizeProject(context.Background(), project)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 3 || store.status != domain.StatusCompleted {
		t.Errorf("index failure must not fail the run: %+v, %s", res, store.status)
	}
}
