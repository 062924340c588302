package chunking

import (
	"regexp"
	"strings"
)

// Heading is a section marker recovered from markdown. It exists only
// while the contextual strategy runs and is never persisted.
type Heading struct {
	// Level is the marker count; 1 is the top level.
	Level int
	Title string
	// Line is the heading's position in the document's line list.
	Line int
	// Path is the ordered ancestor titles, ending with this heading's own.
	Path []string
	// ChapterIndex points into the document-level chapter list, or -1
	// when no chapter matched. Informational only.
	ChapterIndex int
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// parseHeadings scans lines for markdown headings, tracking an ancestor
// stack to build each heading's full hierarchical path. Malformed level
// jumps are tolerated by clamping the stack to the declared level.
func parseHeadings(lines []string, chapters []string) []Heading {
	var headings []Heading
	var stack []string

	for i, line := range lines {
		m := headingRe.FindStringSubmatch(strings.TrimRight(line, " \t"))
		if m == nil {
			continue
		}
		level := len(m[1])
		title := strings.TrimSpace(m[2])

		// Truncate ancestors at or below this level, then push.
		if level-1 < len(stack) {
			stack = stack[:level-1]
		}
		stack = append(stack, title)

		path := make([]string, len(stack))
		copy(path, stack)

		headings = append(headings, Heading{
			Level:        level,
			Title:        title,
			Line:         i,
			Path:         path,
			ChapterIndex: matchChapter(title, chapters),
		})
	}
	return headings
}

// matchChapter finds the first chapter title related to the heading by
// case-insensitive substring containment in either direction. Best
// effort; a miss returns -1.
func matchChapter(title string, chapters []string) int {
	t := strings.ToLower(title)
	for i, ch := range chapters {
		c := strings.ToLower(strings.TrimSpace(ch))
		if c == "" {
			continue
		}
		if strings.Contains(t, c) || strings.Contains(c, t) {
			return i
		}
	}
	return -1
}
