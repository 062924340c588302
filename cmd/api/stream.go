package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"

	"github.com/chunkforge/chunkforge/engine/ingest"
	"github.com/chunkforge/chunkforge/pkg/natsutil"
)

// eventStream writes ingestion events to the client as NDJSON, one JSON
// object per line, flushing after each event. When a NATS connection is
// configured every event is mirrored to an ingest subject as well.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	nc      *nats.Conn
	subject string
	log     *slog.Logger
}

func newEventStream(w http.ResponseWriter, nc *nats.Conn, projectID int64, log *slog.Logger) *eventStream {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return &eventStream{
		w:       w,
		flusher: flusher,
		nc:      nc,
		subject: fmt.Sprintf("chunkforge.ingest.%d", projectID),
		log:     log,
	}
}

// send writes one event. A write failure means the client went away;
// server-side work already done stays done.
func (s *eventStream) send(ctx context.Context, e ingest.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	if s.nc != nil {
		if err := natsutil.Publish(ctx, s.nc, s.subject, e); err != nil {
			s.log.Warn("event mirror publish failed", "subject", s.subject, "err", err)
		}
	}
	return nil
}

func (s *eventStream) status(ctx context.Context, message string) error {
	return s.send(ctx, ingest.Event{Type: ingest.EventStatus, Message: message})
}

func (s *eventStream) fail(ctx context.Context, message string) {
	_ = s.send(ctx, ingest.Event{Type: ingest.EventError, Message: message})
}
