package chunking

import (
	"strings"

	"github.com/chunkforge/chunkforge/engine/ocr"
)

// Contextual reconstructs document structure from enriched OCR markdown,
// emitting one piece per section body prefixed with its hierarchical
// path. The optional document annotation supplies chapter titles for
// best-effort cross-referencing.
type Contextual struct {
	Annotation *ocr.DocumentAnnotation
}

// Split implements Strategy.
func (c Contextual) Split(text string) []Piece {
	lines := strings.Split(text, "\n")

	var chapters []string
	if c.Annotation != nil {
		chapters = c.Annotation.ChapterTitles
	}
	headings := parseHeadings(lines, chapters)

	if len(headings) == 0 {
		// No structure to reconstruct; the whole document is one section.
		if body := strings.TrimSpace(text); body != "" {
			return []Piece{{Content: body}}
		}
		return nil
	}

	var pieces []Piece
	for i, h := range headings {
		bodyEnd := len(lines)
		if i+1 < len(headings) {
			bodyEnd = headings[i+1].Line
		}
		body := strings.TrimSpace(strings.Join(lines[h.Line+1:bodyEnd], "\n"))

		hasChildren := i+1 < len(headings) && headings[i+1].Level > h.Level
		if !hasChildren {
			if body != "" {
				pieces = append(pieces, c.piece(h, body))
			}
			continue
		}

		// Introduction: the lines before the first child heading.
		if body != "" {
			pieces = append(pieces, c.piece(h, body))
		}

		// Conclusion: the lines after the last descendant's body but
		// still inside this heading's section.
		last := i
		for j := i + 1; j < len(headings) && headings[j].Level > h.Level; j++ {
			if isDescendant(headings[j], h) {
				last = j
			}
		}
		if last == i {
			continue
		}
		conclStart := len(lines)
		if last+1 < len(headings) {
			conclStart = headings[last+1].Line
		}
		conclEnd := len(lines)
		for j := last + 1; j < len(headings); j++ {
			if headings[j].Level <= h.Level {
				conclEnd = headings[j].Line
				break
			}
		}
		if conclStart < conclEnd {
			if concl := strings.TrimSpace(strings.Join(lines[conclStart:conclEnd], "\n")); concl != "" {
				pieces = append(pieces, c.piece(h, concl))
			}
		}
	}
	return pieces
}

// isDescendant reports whether d sits under ancestor in the heading tree,
// by comparing d's path against ancestor's full path.
func isDescendant(d, ancestor Heading) bool {
	if len(d.Path) <= len(ancestor.Path) {
		return false
	}
	for i, title := range ancestor.Path {
		if d.Path[i] != title {
			return false
		}
	}
	return true
}

func (c Contextual) piece(h Heading, body string) Piece {
	var sb strings.Builder
	sb.WriteString("Section Path: ")
	sb.WriteString(strings.Join(h.Path, " > "))
	sb.WriteByte('\n')
	sb.WriteString(strings.Repeat("#", h.Level))
	sb.WriteByte(' ')
	sb.WriteString(h.Title)
	sb.WriteByte('\n')
	sb.WriteString(body)
	return Piece{Content: sb.String()}
}
