// Package domain defines core domain types, constants, and validation for the
// chunkforge engine. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// ProjectStatus tracks the vectorization lifecycle of a project.
type ProjectStatus string

const (
	// StatusPending is the initial state, and the state a failed
	// vectorization run falls back to.
	StatusPending ProjectStatus = "PENDING"
	// StatusProcessing is set while the embedding pipeline is running.
	StatusProcessing ProjectStatus = "PROCESSING"
	// StatusCompleted is the terminal state of a successful run.
	StatusCompleted ProjectStatus = "COMPLETED"
)

// ValidStatuses is the set of recognised project statuses.
var ValidStatuses = map[ProjectStatus]bool{
	StatusPending: true, StatusProcessing: true, StatusCompleted: true,
}

// Project groups chunks produced from one document under one embedding model.
type Project struct {
	ID             int64          `json:"id,string"`
	Name           string         `json:"name"`
	EmbeddingModel EmbeddingModel `json:"embedding_model"`
	Status         ProjectStatus  `json:"status"`
	OwnerID        string         `json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`

	// ChunkCount is populated on reads that join against chunks.
	ChunkCount int `json:"chunkCount"`
}

// Chunk is a contiguous span of document text stored as a retrievable unit.
// Metadata carries non-content CSV columns; derived chunks have none.
// Embedding is nil until the vectorization pipeline attaches a vector.
type Chunk struct {
	ID        string            `json:"id"`
	ProjectID int64             `json:"projectId,string"`
	Position  int               `json:"position"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"-"`
}

// SearchResult is a single similarity-search hit.
// Similarity is 1 minus the cosine distance between the chunk's vector and
// the query vector, in [0,1].
type SearchResult struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float64           `json:"similarity"`
}
