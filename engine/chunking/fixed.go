package chunking

import "strings"

// Fixed slides a window of Size characters over the text with Overlap
// characters repeated between consecutive pieces, breaking only at
// Separator so words stay intact.
type Fixed struct {
	Size      int
	Overlap   int
	Separator string
}

// Split implements Strategy.
func (f Fixed) Split(text string) []Piece {
	sep := f.Separator
	if sep == "" {
		sep = " "
	}
	frags := strings.Split(text, sep)
	// Splitting on whitespace can produce empty fragments from runs of
	// the separator; they carry no content.
	kept := frags[:0]
	for _, fr := range frags {
		if fr != "" {
			kept = append(kept, fr)
		}
	}
	return toPieces(mergeFragments(kept, f.Size, f.Overlap, sep))
}
