package ocr

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnrichPagesReplacesPlaceholder(t *testing.T) {
	pages := []Page{{
		Index:    0,
		Markdown: "Intro text\n![img-0.jpeg](img-0.jpeg)\nMore text",
		Images: []Image{{
			ID:         "img-0.jpeg",
			Annotation: `{"short_description":"wiring diagram","summary":"Fuse box layout for the main harness."}`,
		}},
	}}

	got := EnrichPages(discard(), pages)[0].Markdown
	want := "Intro text\n[wiring diagram](img-0.jpeg) [Fuse box layout for the main harness.]\nMore text"
	if got != want {
		t.Fatalf("markdown = %q, want %q", got, want)
	}
}

func TestEnrichPagesBadAnnotationLeavesMarkdown(t *testing.T) {
	md := "![img-1.jpeg](img-1.jpeg)"
	pages := []Page{{
		Markdown: md,
		Images:   []Image{{ID: "img-1.jpeg", Annotation: "not json"}},
	}}

	got := EnrichPages(discard(), pages)[0].Markdown
	if got != md {
		t.Fatalf("unparsable annotation should leave markdown unchanged, got %q", got)
	}
}

func TestEnrichPagesMixedImages(t *testing.T) {
	pages := []Page{{
		Markdown: "![a](a) and ![b](b)",
		Images: []Image{
			{ID: "a", Annotation: `{"short_description":"first","summary":"ok"}`},
			{ID: "b", Annotation: "{broken"},
		},
	}}

	got := EnrichPages(discard(), pages)[0].Markdown
	if !strings.Contains(got, "[first](a) [ok]") {
		t.Errorf("image a should be enriched, got %q", got)
	}
	if !strings.Contains(got, "![b](b)") {
		t.Errorf("image b should stay a placeholder, got %q", got)
	}
}

func TestParseDocumentAnnotation(t *testing.T) {
	ann, err := ParseDocumentAnnotation(`{"language":"en","chapter_titles":["Intro","Maintenance"]}`)
	if err != nil {
		t.Fatal(err)
	}
	if ann.Language != "en" || len(ann.ChapterTitles) != 2 {
		t.Fatalf("parsed annotation = %+v", ann)
	}

	if ann, err := ParseDocumentAnnotation(""); err != nil || ann != nil {
		t.Fatalf("empty payload should parse to nil, got %+v, %v", ann, err)
	}

	if _, err := ParseDocumentAnnotation("{bad"); err == nil {
		t.Fatal("malformed payload should error")
	}
}
