package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chunkforge/chunkforge/engine/domain"
)

// ChunkStore persists chunks. Implemented by the SQLite store.
type ChunkStore interface {
	InsertChunk(ctx context.Context, c *domain.Chunk) error
}

// Writer persists rows as chunks and streams one event per outcome.
type Writer struct {
	store ChunkStore
	log   *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(store ChunkStore, log *slog.Logger) *Writer {
	return &Writer{store: store, log: log}
}

// RunOpts configures one ingestion stream.
type RunOpts struct {
	// Bulk additionally emits start and per-row progress events, as the
	// CSV upload path does.
	Bulk bool
}

// Run persists rows for the project and returns the event stream. Rows
// with empty content are skipped. Chunk events preserve row order and
// the stream always terminates with either a done or an error event;
// chunks written before a failure are not rolled back.
func (w *Writer) Run(ctx context.Context, project *domain.Project, rows []Row, opts RunOpts) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)

		send := func(e Event) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(Event{Type: EventStatus, Message: fmt.Sprintf("Saving %d chunks...", len(rows))}) {
			return
		}
		if opts.Bulk && !send(Event{Type: EventStart, Total: len(rows)}) {
			return
		}

		position := 0
		for i, row := range rows {
			if strings.TrimSpace(row.Content) == "" {
				continue
			}
			chunk := &domain.Chunk{
				ProjectID: project.ID,
				Position:  position,
				Content:   row.Content,
				Metadata:  row.Metadata,
			}
			if err := w.store.InsertChunk(ctx, chunk); err != nil {
				w.log.Error("chunk insert failed", "project", project.ID, "row", i, "error", err)
				send(Event{Type: EventError, Message: "Failed to save chunk: " + err.Error()})
				return
			}
			position++
			if !send(Event{Type: EventChunk, Data: chunk}) {
				return
			}
			if opts.Bulk && !send(Event{Type: EventProgress, Processed: i + 1, Total: len(rows)}) {
				return
			}
		}

		send(Event{Type: EventDone, ProjectID: strconv.FormatInt(project.ID, 10)})
	}()
	return events
}
