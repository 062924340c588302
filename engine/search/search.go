// Package search ranks a project's chunks by vector similarity to a
// free-text query.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/chunkforge/chunkforge/engine/domain"
)

const (
	// SimilarityThreshold is the minimum similarity for a chunk to be
	// eligible; comparison is strict.
	SimilarityThreshold = 0.1
	// DefaultMatchCount is the result limit when the caller does not
	// supply one.
	DefaultMatchCount = 10
)

// Embedder turns the query into a vector.
type Embedder interface {
	Embed(ctx context.Context, model string, input []string, dimensions int) ([][]float32, error)
}

// Store reads projects and their embedded chunks.
type Store interface {
	GetProject(ctx context.Context, id int64, ownerID string) (*domain.Project, error)
	ListEmbedded(ctx context.Context, projectID int64) ([]domain.Chunk, error)
}

// Index is an optional accelerated search path backed by an external
// vector index. A failure falls back to the in-process ranking.
type Index interface {
	Search(ctx context.Context, project *domain.Project, vec []float32, limit int, threshold float32) ([]domain.SearchResult, error)
}

// Engine embeds queries and ranks chunks.
type Engine struct {
	store    Store
	embedder Embedder
	index    Index
	log      *slog.Logger
}

// New creates an Engine. index may be nil.
func New(store Store, embedder Embedder, index Index, log *slog.Logger) *Engine {
	return &Engine{store: store, embedder: embedder, index: index, log: log}
}

// Search embeds query with the project's model and returns matches in
// descending similarity order, truncated to matchCount (DefaultMatchCount
// when zero). Only chunks with similarity strictly above
// SimilarityThreshold appear.
func (e *Engine) Search(ctx context.Context, ownerID string, projectID int64, query string, matchCount int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewValidationError("query", "required")
	}
	if projectID == 0 {
		return nil, domain.NewValidationError("projectId", "required")
	}
	if matchCount <= 0 {
		matchCount = DefaultMatchCount
	}

	project, err := e.store.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}

	model := project.EmbeddingModel
	vecs, err := e.embedder.Embed(ctx, model.ProviderModel(), []string{query}, model.RequestDimensions())
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", domain.ErrProvider, len(vecs))
	}
	qvec := vecs[0]

	if e.index != nil {
		results, err := e.index.Search(ctx, project, qvec, matchCount, SimilarityThreshold)
		if err == nil {
			return results, nil
		}
		e.log.Warn("vector index search failed, falling back", "project", project.ID, "error", err)
	}
	return e.rank(ctx, project.ID, qvec, matchCount)
}

// rank is the in-process path: brute-force cosine over the project's
// embedded chunks.
func (e *Engine) rank(ctx context.Context, projectID int64, qvec []float32, matchCount int) ([]domain.SearchResult, error) {
	chunks, err := e.store.ListEmbedded(ctx, projectID)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		sim := CosineSimilarity(c.Embedding, qvec)
		if sim <= SimilarityThreshold {
			continue
		}
		results = append(results, domain.SearchResult{
			ID:         c.ID,
			Content:    c.Content,
			Metadata:   c.Metadata,
			Similarity: sim,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > matchCount {
		results = results[:matchCount]
	}
	return results, nil
}
