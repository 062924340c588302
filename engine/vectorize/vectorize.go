// Package vectorize runs the embedding batch pipeline: it turns a
// project's unvectorized chunks into stored vectors and drives the
// project status machine.
package vectorize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/pkg/fn"
)

const (
	// BulkBatchSize is the chunk batch size for explicit re-vectorization,
	// one provider call per batch.
	BulkBatchSize = 50
	// IngestBatchSize is the batch size used right after ingestion.
	IngestBatchSize = 15
	// IngestWorkers bounds concurrent provider calls inside one
	// ingestion batch.
	IngestWorkers = 5
)

// Embedder turns text into vectors. Implemented by the OpenAI client.
type Embedder interface {
	Embed(ctx context.Context, model string, input []string, dimensions int) ([][]float32, error)
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	ListUnvectorized(ctx context.Context, projectID int64) ([]domain.Chunk, error)
	AttachEmbedding(ctx context.Context, chunkID string, vec []float32) error
	TransitionStatus(ctx context.Context, id int64, from, to domain.ProjectStatus) (bool, error)
	SetStatus(ctx context.Context, id int64, status domain.ProjectStatus) error
}

// Index receives vectors as they are written, mirroring them into an
// external vector index. Optional.
type Index interface {
	Upsert(ctx context.Context, project *domain.Project, chunks []domain.Chunk) error
}

// Pipeline is the embedding batch pipeline.
type Pipeline struct {
	store    Store
	embedder Embedder
	index    Index
	log      *slog.Logger
}

// New creates a Pipeline. index may be nil.
func New(store Store, embedder Embedder, index Index, log *slog.Logger) *Pipeline {
	return &Pipeline{store: store, embedder: embedder, index: index, log: log}
}

// Result summarizes one vectorization run.
type Result struct {
	Processed int    `json:"processed"`
	Message   string `json:"message"`
}

// VectorizeProject embeds all unvectorized chunks in batches of
// BulkBatchSize, one provider call per batch. Batches run strictly in
// sequence. On failure the project status rolls back to PENDING and
// vectors written by earlier batches stay in place.
func (p *Pipeline) VectorizeProject(ctx context.Context, project *domain.Project) (*Result, error) {
	return p.run(ctx, project, BulkBatchSize, p.embedBulkBatch)
}

// VectorizeChunks is the initial-ingestion variant: batches of
// IngestBatchSize with bounded per-row provider calls inside each batch.
func (p *Pipeline) VectorizeChunks(ctx context.Context, project *domain.Project) (*Result, error) {
	return p.run(ctx, project, IngestBatchSize, p.embedIngestBatch)
}

func (p *Pipeline) run(ctx context.Context, project *domain.Project, batchSize int, embedBatch func(context.Context, *domain.Project, []domain.Chunk) error) (*Result, error) {
	chunks, err := p.store.ListUnvectorized(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &Result{Processed: 0, Message: "All documents are already vectorized."}, nil
	}

	if err := p.begin(ctx, project); err != nil {
		return nil, err
	}

	stage := fn.TracedStage("vectorize.batch", func(ctx context.Context, batch []domain.Chunk) fn.Result[int] {
		if err := embedBatch(ctx, project, batch); err != nil {
			return fn.Err[int](err)
		}
		return fn.Ok(len(batch))
	})

	processed := 0
	for _, batch := range fn.Chunk(chunks, batchSize) {
		n, err := stage(ctx, batch).Unwrap()
		if err != nil {
			p.fail(ctx, project, err)
			return nil, err
		}
		processed += n
		p.log.Info("batch vectorized", "project", project.ID, "processed", processed, "total", len(chunks))
	}

	if err := p.store.SetStatus(ctx, project.ID, domain.StatusCompleted); err != nil {
		return nil, err
	}
	project.Status = domain.StatusCompleted
	return &Result{
		Processed: processed,
		Message:   fmt.Sprintf("Successfully vectorized %d chunks.", processed),
	}, nil
}

// begin claims the project for this run. The conditional transition
// admits exactly one in-flight vectorization per project.
func (p *Pipeline) begin(ctx context.Context, project *domain.Project) error {
	for _, from := range []domain.ProjectStatus{domain.StatusPending, domain.StatusCompleted} {
		ok, err := p.store.TransitionStatus(ctx, project.ID, from, domain.StatusProcessing)
		if err != nil {
			return err
		}
		if ok {
			project.Status = domain.StatusProcessing
			return nil
		}
	}
	return fmt.Errorf("%w: vectorization already in progress", domain.ErrConflict)
}

// fail rolls the status back to PENDING. Vectors already attached stay.
func (p *Pipeline) fail(ctx context.Context, project *domain.Project, cause error) {
	p.log.Error("vectorization failed", "project", project.ID, "error", cause)
	if err := p.store.SetStatus(ctx, project.ID, domain.StatusPending); err != nil {
		p.log.Error("status rollback failed", "project", project.ID, "error", err)
	}
	project.Status = domain.StatusPending
}

// embedBulkBatch embeds a whole batch with a single provider call.
func (p *Pipeline) embedBulkBatch(ctx context.Context, project *domain.Project, batch []domain.Chunk) error {
	model := project.EmbeddingModel
	inputs := fn.Map(batch, func(c domain.Chunk) string { return c.Content })

	vecs, err := p.embedder.Embed(ctx, model.ProviderModel(), inputs, model.RequestDimensions())
	if err != nil {
		return err
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrProvider, len(vecs), len(batch))
	}
	for i := range batch {
		batch[i].Embedding = vecs[i]
	}
	return p.persist(ctx, project, batch)
}

// embedIngestBatch embeds each row with its own provider call, bounded
// by IngestWorkers, collecting all rows before any write.
func (p *Pipeline) embedIngestBatch(ctx context.Context, project *domain.Project, batch []domain.Chunk) error {
	model := project.EmbeddingModel

	results := fn.ParMapResult(batch, IngestWorkers, func(c domain.Chunk) fn.Result[domain.Chunk] {
		vecs, err := p.embedder.Embed(ctx, model.ProviderModel(), []string{c.Content}, model.RequestDimensions())
		if err != nil {
			return fn.Err[domain.Chunk](err)
		}
		if len(vecs) != 1 {
			return fn.Err[domain.Chunk](fmt.Errorf("%w: got %d vectors for one input", domain.ErrProvider, len(vecs)))
		}
		c.Embedding = vecs[0]
		return fn.Ok(c)
	})

	embedded, err := fn.Collect(results).Unwrap()
	if err != nil {
		return err
	}
	return p.persist(ctx, project, embedded)
}

func (p *Pipeline) persist(ctx context.Context, project *domain.Project, batch []domain.Chunk) error {
	for _, c := range batch {
		// A wrong-width vector is a provider fault, not caller input.
		if err := domain.ValidateChunk(c, project.EmbeddingModel); err != nil {
			return fmt.Errorf("%w: chunk %s: %v", domain.ErrProvider, c.ID, err)
		}
		if err := p.store.AttachEmbedding(ctx, c.ID, c.Embedding); err != nil {
			return err
		}
	}
	if p.index != nil {
		if err := p.index.Upsert(ctx, project, batch); err != nil {
			// The store holds the source of truth; a mirror failure is
			// logged, not fatal.
			p.log.Warn("vector index upsert failed", "project", project.ID, "error", err)
		}
	}
	return nil
}
