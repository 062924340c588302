// Package chunking implements the segmentation strategies that split
// extracted document text into retrievable pieces.
package chunking

import (
	"strings"

	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/engine/ocr"
)

// Strategy names, as accepted on ingestion requests.
const (
	StrategyFixed      = "simple"
	StrategyRecursive  = "recursive"
	StrategyContextual = "contextual"
)

const (
	// DefaultChunkSize is the target number of characters per piece.
	DefaultChunkSize = 1000
	// DefaultOverlap is the number of characters repeated between
	// consecutive pieces.
	DefaultOverlap = 200
)

// Piece is one segmentation unit: content plus free-form metadata.
// Strategy-derived pieces carry no metadata; CSV rows do.
type Piece struct {
	Content  string
	Metadata map[string]string
}

// Strategy splits extracted text into an ordered sequence of pieces.
type Strategy interface {
	Split(text string) []Piece
}

// Options configures strategy construction.
type Options struct {
	Size      int
	Overlap   int
	Separator string
	// Annotation is the document-level OCR annotation, used only by the
	// contextual strategy for chapter cross-referencing.
	Annotation *ocr.DocumentAnnotation
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.Size {
		o.Overlap = o.Size / 2
	}
	if o.Separator == "" {
		o.Separator = " "
	}
	return o
}

// New selects a strategy by name. An empty name falls back to recursive.
func New(name string, opts Options) (Strategy, error) {
	opts = opts.withDefaults()
	switch name {
	case StrategyFixed:
		return Fixed{Size: opts.Size, Overlap: opts.Overlap, Separator: opts.Separator}, nil
	case StrategyRecursive, "":
		return Recursive{Size: opts.Size, Overlap: opts.Overlap}, nil
	case StrategyContextual:
		return Contextual{Annotation: opts.Annotation}, nil
	default:
		return nil, domain.NewValidationError("strategy", "unknown chunking strategy "+name)
	}
}

// mergeFragments greedily packs fragments into chunks of at most size
// characters, backfilling overlap characters from the tail of the
// previous chunk. Fragments are joined with joiner; a single fragment
// longer than size becomes its own oversized chunk.
func mergeFragments(frags []string, size, overlap int, joiner string) []string {
	var chunks []string
	var cur []string
	curLen := 0
	joinLen := len(joiner)

	flush := func() {
		if s := strings.TrimSpace(strings.Join(cur, joiner)); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, f := range frags {
		add := len(f)
		if curLen > 0 {
			add += joinLen
		}
		if curLen+add > size && curLen > 0 {
			flush()
			// Keep the smallest tail of the current chunk that still
			// covers the requested overlap. Fitting the incoming
			// fragment takes precedence over keeping the overlap.
			for len(cur) > 0 {
				overflow := curLen+joinLen+len(f) > size
				coversOverlap := len(cur) > 1 && curLen-len(cur[0])-joinLen >= overlap
				if !overflow && !coversOverlap {
					break
				}
				curLen -= len(cur[0])
				if len(cur) > 1 {
					curLen -= joinLen
				}
				cur = cur[1:]
			}
			if overlap == 0 {
				cur = cur[:0]
				curLen = 0
			}
		}
		if curLen > 0 {
			curLen += joinLen
		}
		cur = append(cur, f)
		curLen += len(f)
	}
	flush()
	return chunks
}

func toPieces(chunks []string) []Piece {
	out := make([]Piece, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			continue
		}
		out = append(out, Piece{Content: c})
	}
	return out
}
