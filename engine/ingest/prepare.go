package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/chunkforge/chunkforge/engine/extract"
	"github.com/chunkforge/chunkforge/engine/ocr"
)

// Preparer assembles the input for contextual chunking: it runs OCR over
// a source document, enriches image placeholders, and recovers the
// document-level annotation when the provider allows it.
type Preparer struct {
	Extractor *extract.Extractor
	OCR       ocr.Provider
	Log       *slog.Logger
	// MaxAnnotationPages overrides the provider's annotation ceiling;
	// zero uses ocr.MaxAnnotationPages.
	MaxAnnotationPages int
}

// PrepareContextual OCRs the document at url and returns the enriched
// markdown plus the parsed document annotation, nil when unavailable.
// pageCount may be zero, in which case the document is inspected and
// extract.DefaultPageCount used as fallback.
func (p *Preparer) PrepareContextual(ctx context.Context, url string, pageCount int) (string, *ocr.DocumentAnnotation, error) {
	if pageCount <= 0 {
		n, err := p.Extractor.PageCount(ctx, url)
		if err != nil {
			p.Log.Warn("page count inspection failed, using fallback", "url", url, "error", err)
			n = extract.DefaultPageCount
		}
		pageCount = n
	}

	ceiling := p.MaxAnnotationPages
	if ceiling <= 0 {
		ceiling = ocr.MaxAnnotationPages
	}

	pages := make([]int, pageCount)
	for i := range pages {
		pages[i] = i
	}

	res, err := p.OCR.Process(ctx, ocr.Request{
		URL:                    url,
		Pages:                  pages,
		WithDocumentAnnotation: pageCount <= ceiling,
	})
	if err != nil {
		return "", nil, err
	}

	enriched := ocr.EnrichPages(p.Log, res.Pages)
	parts := make([]string, len(enriched))
	for i, page := range enriched {
		parts[i] = page.Markdown
	}

	ann, err := ocr.ParseDocumentAnnotation(res.DocumentAnnotation)
	if err != nil {
		p.Log.Warn("document annotation unusable", "url", url, "error", err)
		ann = nil
	}
	return strings.Join(parts, "\n\n"), ann, nil
}
