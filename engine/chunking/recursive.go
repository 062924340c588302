package chunking

import "strings"

// recursiveSeparators orders boundaries from largest to smallest:
// paragraph, line, sentence, word, and finally a hard character cut.
var recursiveSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Recursive splits at the largest boundary that keeps each piece within
// Size characters, recursing into oversized fragments with the
// next-smaller boundary, then backfills Overlap from the previous piece.
type Recursive struct {
	Size    int
	Overlap int
}

// Split implements Strategy.
func (r Recursive) Split(text string) []Piece {
	frags := r.fragments(text, recursiveSeparators)
	return toPieces(mergeFragments(frags, r.Size, r.Overlap, ""))
}

// fragments breaks text into pieces no longer than Size, keeping
// separators attached so merged output reconstructs the source.
func (r Recursive) fragments(text string, seps []string) []string {
	if len(text) <= r.Size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if len(seps) == 0 || seps[0] == "" {
		return hardCut(text, r.Size)
	}

	parts := splitAfter(text, seps[0])
	if len(parts) == 1 {
		// Separator absent; try the next-smaller boundary.
		return r.fragments(text, seps[1:])
	}

	var out []string
	for _, p := range parts {
		if len(p) <= r.Size {
			out = append(out, p)
			continue
		}
		out = append(out, r.fragments(p, seps[1:])...)
	}
	return out
}

// splitAfter splits text on sep, keeping sep attached to the preceding
// fragment and dropping fragments that are empty.
func splitAfter(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return kept
}

// hardCut slices text into size-rune pieces as a last resort.
func hardCut(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
