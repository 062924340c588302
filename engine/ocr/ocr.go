// Package ocr defines the OCR provider contract and the annotation
// enricher that rewrites image placeholders in OCR markdown.
package ocr

import (
	"context"
	"encoding/json"
	"fmt"
)

// MaxAnnotationPages is the provider ceiling for document-level structural
// annotation. Documents above this page count are processed without
// chapter cross-referencing.
const MaxAnnotationPages = 8

// BBox is the bounding box of an image on a page, in page coordinates.
type BBox struct {
	TopLeftX     int `json:"top_left_x"`
	TopLeftY     int `json:"top_left_y"`
	BottomRightX int `json:"bottom_right_x"`
	BottomRightY int `json:"bottom_right_y"`
}

// Image is an embedded image extracted from a page. Annotation carries the
// provider's raw structured description, JSON-encoded.
type Image struct {
	ID         string `json:"id"`
	BBox       *BBox  `json:"bbox,omitempty"`
	Annotation string `json:"annotation,omitempty"`
}

// Page is one page of OCR output: markdown text plus embedded images.
type Page struct {
	Index    int     `json:"index"`
	Markdown string  `json:"markdown"`
	Images   []Image `json:"images,omitempty"`
}

// Result is a full OCR run over a document.
type Result struct {
	Pages []Page
	// DocumentAnnotation is the raw document-level annotation payload,
	// empty when annotation was not requested or not returned.
	DocumentAnnotation string
}

// DocumentAnnotation is the parsed document-level structural annotation.
type DocumentAnnotation struct {
	Language      string   `json:"language"`
	ChapterTitles []string `json:"chapter_titles"`
}

// ParseDocumentAnnotation decodes the raw document annotation payload.
func ParseDocumentAnnotation(raw string) (*DocumentAnnotation, error) {
	if raw == "" {
		return nil, nil
	}
	var ann DocumentAnnotation
	if err := json.Unmarshal([]byte(raw), &ann); err != nil {
		return nil, fmt.Errorf("parse document annotation: %w", err)
	}
	return &ann, nil
}

// Request asks the provider to OCR the document at URL. Pages selects
// zero-based page indices; WithDocumentAnnotation additionally requests
// the document-level structural annotation.
type Request struct {
	URL                    string
	Pages                  []int
	WithDocumentAnnotation bool
}

// Provider is the external OCR service.
type Provider interface {
	Process(ctx context.Context, req Request) (*Result, error)
}
