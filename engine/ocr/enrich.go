package ocr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// imageAnnotation is the expected shape of a per-image annotation payload.
type imageAnnotation struct {
	ShortDescription string `json:"short_description"`
	Summary          string `json:"summary"`
}

// EnrichPages rewrites each page's markdown, replacing image placeholder
// links with the image's generated caption and summary. An image whose
// annotation cannot be parsed is left untouched; enrichment degrades
// per-image and never fails a page.
func EnrichPages(log *slog.Logger, pages []Page) []Page {
	out := make([]Page, len(pages))
	for i, page := range pages {
		md := page.Markdown
		for _, img := range page.Images {
			var ann imageAnnotation
			if err := json.Unmarshal([]byte(img.Annotation), &ann); err != nil {
				log.Warn("skipping image annotation", "page", page.Index, "image", img.ID, "error", err)
				continue
			}
			placeholder := fmt.Sprintf("![%s](%s)", img.ID, img.ID)
			replacement := fmt.Sprintf("[%s](%s) [%s]", ann.ShortDescription, img.ID, ann.Summary)
			md = strings.ReplaceAll(md, placeholder, replacement)
		}
		out[i] = Page{Index: page.Index, Markdown: md, Images: page.Images}
	}
	return out
}
