// Package extract turns uploaded files and remote documents into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/time/rate"

	"github.com/chunkforge/chunkforge/engine/domain"
)

// DefaultPageCount is the fallback when a document's page count cannot
// be determined by inspection.
const DefaultPageCount = 8

// maxFetchBytes bounds remote document downloads.
const maxFetchBytes = 64 << 20

// Extractor produces plain text from byte sources and URLs. Remote
// fetches share a rate limiter so a burst of ingestions cannot hammer
// a single origin.
type Extractor struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// FromBytes extracts plain text from data according to the declared
// content type. PDF bytes are parsed page by page in reading order;
// anything else is decoded as text verbatim.
func (e *Extractor) FromBytes(data []byte, contentType string) (string, error) {
	if isPDF(contentType, data) {
		return pdfText(data)
	}
	return string(data), nil
}

// FromURL fetches the document at url and extracts its text, classifying
// by the reported Content-Type.
func (e *Extractor) FromURL(ctx context.Context, url string) (string, error) {
	data, contentType, err := e.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return e.FromBytes(data, contentType)
}

// PageCount fetches the document at url and reports its PDF page count.
// Use DefaultPageCount when this fails.
func (e *Extractor) PageCount(ctx context.Context, url string) (int, error) {
	data, _, err := e.fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: inspect pdf: %w", domain.ErrExtraction, err)
	}
	return r.NumPage(), nil
}

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch %s: %w", domain.ErrExtraction, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, "", fmt.Errorf("%w: fetch %s: status %d", domain.ErrExtraction, url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %w", domain.ErrExtraction, url, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// isPDF classifies by the declared content type, falling back to the
// file magic when the type is missing or generic.
func isPDF(contentType string, data []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if mt == "application/pdf" {
			return true
		}
		if strings.HasPrefix(mt, "text/") {
			return false
		}
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// pdfText extracts page text in reading order, pages joined by newlines.
func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse pdf: %w", domain.ErrExtraction, err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: pdf page %d: %w", domain.ErrExtraction, i, err)
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
