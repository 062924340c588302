package chunking

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/engine/ocr"
)

// sharedOverlap returns the length of the longest suffix of a that is a
// prefix of b.
func sharedOverlap(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(a, b[:n]) {
			return n
		}
	}
	return 0
}

func words(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "word%03d", i)
	}
	return sb.String()
}

func TestFixedWindowAndOverlap(t *testing.T) {
	text := words(120)
	pieces := Fixed{Size: 100, Overlap: 20, Separator: " "}.Split(text)

	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if i < len(pieces)-1 && len(p.Content) > 100 {
			t.Errorf("piece %d exceeds size: %d chars", i, len(p.Content))
		}
		if i > 0 {
			if ov := sharedOverlap(pieces[i-1].Content, p.Content); ov < 20 {
				t.Errorf("pieces %d/%d share only %d chars of overlap", i-1, i, ov)
			}
		}
	}
}

func TestFixedNoMidWordBreaks(t *testing.T) {
	text := words(50)
	for _, p := range (Fixed{Size: 60, Overlap: 10, Separator: " "}).Split(text) {
		for _, w := range strings.Fields(p.Content) {
			if !strings.HasPrefix(w, "word") || len(w) != 7 {
				t.Fatalf("word split mid-token: %q", w)
			}
		}
	}
}

func TestFixedShortTextSinglePiece(t *testing.T) {
	pieces := Fixed{Size: 100, Overlap: 20, Separator: " "}.Split("just a few words")
	if len(pieces) != 1 || pieces[0].Content != "just a few words" {
		t.Fatalf("pieces = %+v", pieces)
	}
}

func TestRecursivePrefersParagraphBoundaries(t *testing.T) {
	text := "first paragraph here.\n\nsecond paragraph here.\n\nthird paragraph here."
	pieces := Recursive{Size: 30, Overlap: 0}.Split(text)

	if len(pieces) != 3 {
		t.Fatalf("expected one piece per paragraph, got %d: %+v", len(pieces), pieces)
	}
	for i, want := range []string{"first", "second", "third"} {
		if !strings.HasPrefix(pieces[i].Content, want) {
			t.Errorf("piece %d = %q, want %s paragraph", i, pieces[i].Content, want)
		}
	}
}

func TestRecursiveDescendsIntoOversizedFragments(t *testing.T) {
	// One paragraph far over size forces sentence, then word splits.
	text := "Sentence one is here. Sentence two is here. Sentence three follows along. Sentence four ends it."
	pieces := Recursive{Size: 50, Overlap: 10}.Split(text)

	if len(pieces) < 2 {
		t.Fatalf("expected several pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if i < len(pieces)-1 && len(p.Content) > 50 {
			t.Errorf("piece %d exceeds size: %q", i, p.Content)
		}
	}
	if !strings.HasPrefix(pieces[0].Content, "Sentence one") {
		t.Errorf("first piece = %q", pieces[0].Content)
	}
}

func TestRecursiveHardCutLastResort(t *testing.T) {
	text := strings.Repeat("x", 25)
	pieces := Recursive{Size: 10, Overlap: 0}.Split(text)
	if len(pieces) != 3 {
		t.Fatalf("expected 3 hard-cut pieces, got %d", len(pieces))
	}
	if pieces[0].Content != strings.Repeat("x", 10) || pieces[2].Content != strings.Repeat("x", 5) {
		t.Fatalf("pieces = %+v", pieces)
	}
}

func TestContextualHeadingTree(t *testing.T) {
	text := "# A\nbody1\n## B\nbody2\n## C\nbody3"
	pieces := Contextual{}.Split(text)

	if len(pieces) != 3 {
		t.Fatalf("expected 3 pieces, got %d: %+v", len(pieces), pieces)
	}
	want := []string{
		"Section Path: A\n# A\nbody1",
		"Section Path: A > B\n## B\nbody2",
		"Section Path: A > C\n## C\nbody3",
	}
	for i, w := range want {
		if pieces[i].Content != w {
			t.Errorf("piece %d = %q, want %q", i, pieces[i].Content, w)
		}
	}
}

func TestContextualEmptyHeadingProducesNothing(t *testing.T) {
	text := "# A\n# B\nbody"
	pieces := Contextual{}.Split(text)

	if len(pieces) != 1 {
		t.Fatalf("expected only B's piece, got %d: %+v", len(pieces), pieces)
	}
	if !strings.Contains(pieces[0].Content, "# B") {
		t.Errorf("piece = %q", pieces[0].Content)
	}
}

func TestContextualLevelClamping(t *testing.T) {
	// A level jump from # to ### must not break the ancestor path.
	text := "# A\nintro\n### Deep\ndeep body\n## Back\nback body"
	pieces := Contextual{}.Split(text)

	if len(pieces) != 3 {
		t.Fatalf("expected 3 pieces, got %d: %+v", len(pieces), pieces)
	}
	if !strings.HasPrefix(pieces[1].Content, "Section Path: A > Deep\n") {
		t.Errorf("deep piece = %q", pieces[1].Content)
	}
	if !strings.HasPrefix(pieces[2].Content, "Section Path: A > Back\n") {
		t.Errorf("back piece = %q", pieces[2].Content)
	}
}

func TestContextualNoHeadingsFallback(t *testing.T) {
	pieces := Contextual{}.Split("plain text with no structure\n")
	if len(pieces) != 1 || pieces[0].Content != "plain text with no structure" {
		t.Fatalf("pieces = %+v", pieces)
	}
}

func TestParseHeadingsChapterMatch(t *testing.T) {
	lines := []string{"# Engine Maintenance", "text", "## Oil"}
	chapters := []string{"Safety", "maintenance"}
	hs := parseHeadings(lines, chapters)

	if len(hs) != 2 {
		t.Fatalf("headings = %+v", hs)
	}
	if hs[0].ChapterIndex != 1 {
		t.Errorf("chapter index = %d, want 1", hs[0].ChapterIndex)
	}
	if hs[1].ChapterIndex != -1 {
		t.Errorf("unmatched heading should have index -1, got %d", hs[1].ChapterIndex)
	}
}

func TestNewSelector(t *testing.T) {
	if _, err := New("bogus", Options{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown strategy should be a validation error, got %v", err)
	}
	s, err := New("", Options{Size: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(Recursive); !ok {
		t.Fatalf("default strategy = %T, want Recursive", s)
	}
	s, err = New(StrategyContextual, Options{Annotation: &ocr.DocumentAnnotation{Language: "en"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(Contextual); !ok {
		t.Fatalf("strategy = %T, want Contextual", s)
	}
}
