// Package ingest streams chunk creation: it turns extracted rows into
// persisted chunks while emitting progress events in input order.
package ingest

import "github.com/chunkforge/chunkforge/engine/domain"

// EventType tags an ingestion stream event.
type EventType string

const (
	// EventStatus is a human-readable phase update.
	EventStatus EventType = "status"
	// EventStart opens a bulk ingestion, carrying the total row count.
	EventStart EventType = "start"
	// EventProgress reports rows processed so far during bulk ingestion.
	EventProgress EventType = "progress"
	// EventChunk carries one persisted chunk.
	EventChunk EventType = "chunk"
	// EventDone terminates a successful stream.
	EventDone EventType = "done"
	// EventError terminates a failed stream.
	EventError EventType = "error"
)

// Event is one element of the ingestion stream. Exactly one of the
// payload fields is meaningful, selected by Type.
type Event struct {
	Type      EventType     `json:"type"`
	Message   string        `json:"message,omitempty"`
	Data      *domain.Chunk `json:"data,omitempty"`
	ProjectID string        `json:"projectId,omitempty"`
	Total     int           `json:"total,omitempty"`
	Processed int           `json:"processed,omitempty"`
}

// Row is one unit of input to the writer: chunk content plus the
// remaining columns as metadata.
type Row struct {
	Content  string
	Metadata map[string]string
}
