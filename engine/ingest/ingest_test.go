package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/engine/ocr"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChunkStore struct {
	chunks  []domain.Chunk
	failAt  int // insert index that fails, -1 for never
	inserts int
}

func (f *fakeChunkStore) InsertChunk(_ context.Context, c *domain.Chunk) error {
	if f.failAt >= 0 && f.inserts == f.failAt {
		return errors.New("disk full")
	}
	f.inserts++
	c.ID = "id-" + c.Content
	f.chunks = append(f.chunks, *c)
	return nil
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestRowsFromCSV(t *testing.T) {
	in := "Chunk,Source,PAGE\nhello,manual.pdf,3\nworld,manual.pdf,4\n"
	rows, err := RowsFromCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Content != "hello" {
		t.Errorf("content = %q", rows[0].Content)
	}
	if rows[0].Metadata["source"] != "manual.pdf" || rows[0].Metadata["page"] != "3" {
		t.Errorf("metadata = %v", rows[0].Metadata)
	}
	if _, ok := rows[0].Metadata["chunk"]; ok {
		t.Error("content column must not leak into metadata")
	}
}

func TestRowsFromCSVMissingContentColumn(t *testing.T) {
	_, err := RowsFromCSV(strings.NewReader("a,b\n1,2\n"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRowsFromCSVEmpty(t *testing.T) {
	_, err := RowsFromCSV(strings.NewReader(""))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestWriterStreamOrderAndDone(t *testing.T) {
	store := &fakeChunkStore{failAt: -1}
	w := NewWriter(store, discard())
	project := &domain.Project{ID: 7}
	rows := []Row{{Content: "a"}, {Content: "  "}, {Content: "b"}}

	events := collect(w.Run(context.Background(), project, rows, RunOpts{}))

	if events[0].Type != EventStatus {
		t.Errorf("first event = %s, want status", events[0].Type)
	}
	var chunks []Event
	for _, e := range events {
		if e.Type == EventChunk {
			chunks = append(chunks, e)
		}
	}
	if len(chunks) != 2 {
		t.Fatalf("chunk events = %d, want 2 (blank row skipped)", len(chunks))
	}
	if chunks[0].Data.Content != "a" || chunks[1].Data.Content != "b" {
		t.Errorf("chunk order: %q, %q", chunks[0].Data.Content, chunks[1].Data.Content)
	}
	if chunks[0].Data.Position != 0 || chunks[1].Data.Position != 1 {
		t.Errorf("positions = %d, %d", chunks[0].Data.Position, chunks[1].Data.Position)
	}

	last := events[len(events)-1]
	if last.Type != EventDone || last.ProjectID != "7" {
		t.Errorf("last event = %+v, want done for project 7", last)
	}
}

func TestWriterBulkEmitsStartAndProgress(t *testing.T) {
	store := &fakeChunkStore{failAt: -1}
	w := NewWriter(store, discard())
	rows := []Row{{Content: "a"}, {Content: "b"}}

	events := collect(w.Run(context.Background(), &domain.Project{ID: 1}, rows, RunOpts{Bulk: true}))

	var start, progress int
	var lastProgress Event
	for _, e := range events {
		switch e.Type {
		case EventStart:
			start++
			if e.Total != 2 {
				t.Errorf("start total = %d", e.Total)
			}
		case EventProgress:
			progress++
			lastProgress = e
		}
	}
	if start != 1 || progress != 2 {
		t.Fatalf("start = %d, progress = %d", start, progress)
	}
	if lastProgress.Processed != 2 || lastProgress.Total != 2 {
		t.Errorf("final progress = %+v", lastProgress)
	}
}

func TestWriterErrorTerminatesStream(t *testing.T) {
	store := &fakeChunkStore{failAt: 1}
	w := NewWriter(store, discard())
	rows := []Row{{Content: "a"}, {Content: "b"}, {Content: "c"}}

	events := collect(w.Run(context.Background(), &domain.Project{ID: 1}, rows, RunOpts{}))

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	for _, e := range events {
		if e.Type == EventDone {
			t.Fatal("done must not follow an error")
		}
	}
	// The chunk written before the failure stays written.
	if len(store.chunks) != 1 || store.chunks[0].Content != "a" {
		t.Errorf("stored chunks = %+v", store.chunks)
	}
}

type fakeOCR struct {
	req ocr.Request
	res *ocr.Result
	err error
}

func (f *fakeOCR) Process(_ context.Context, req ocr.Request) (*ocr.Result, error) {
	f.req = req
	return f.res, f.err
}

func TestPrepareContextualGatesAnnotation(t *testing.T) {
	fake := &fakeOCR{res: &ocr.Result{
		Pages: []ocr.Page{
			{Index: 0, Markdown: "# One"},
			{Index: 1, Markdown: "# Two"},
		},
		DocumentAnnotation: `{"language":"en","chapter_titles":["One","Two"]}`,
	}}
	p := &Preparer{OCR: fake, Log: discard()}

	text, ann, err := p.PrepareContextual(context.Background(), "https://example.com/doc.pdf", 2)
	if err != nil {
		t.Fatal(err)
	}
	if !fake.req.WithDocumentAnnotation {
		t.Error("annotation should be requested at 2 pages")
	}
	if len(fake.req.Pages) != 2 {
		t.Errorf("pages = %v", fake.req.Pages)
	}
	if text != "# One\n\n# Two" {
		t.Errorf("text = %q", text)
	}
	if ann == nil || len(ann.ChapterTitles) != 2 {
		t.Errorf("annotation = %+v", ann)
	}
}

func TestPrepareContextualSkipsAnnotationAboveCeiling(t *testing.T) {
	fake := &fakeOCR{res: &ocr.Result{Pages: []ocr.Page{{Markdown: "# Only"}}}}
	p := &Preparer{OCR: fake, Log: discard()}

	_, ann, err := p.PrepareContextual(context.Background(), "u", 9)
	if err != nil {
		t.Fatal(err)
	}
	if fake.req.WithDocumentAnnotation {
		t.Error("annotation must not be requested above the page ceiling")
	}
	if ann != nil {
		t.Errorf("annotation = %+v, want nil", ann)
	}
}

func TestPrepareContextualBadAnnotationDegrades(t *testing.T) {
	fake := &fakeOCR{res: &ocr.Result{
		Pages:              []ocr.Page{{Markdown: "# A"}},
		DocumentAnnotation: "{broken",
	}}
	p := &Preparer{OCR: fake, Log: discard()}

	text, ann, err := p.PrepareContextual(context.Background(), "u", 1)
	if err != nil {
		t.Fatal(err)
	}
	if ann != nil {
		t.Errorf("annotation = %+v, want nil", ann)
	}
	if text != "# A" {
		t.Errorf("text = %q", text)
	}
}
