// Package mistral provides a Mistral-backed OCR provider.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/engine/ocr"
)

const (
	DefaultBaseURL = "https://api.mistral.ai/v1"
	DefaultModel   = "mistral-ocr-latest"
)

// Config configures the OCR client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls the Mistral OCR endpoint. It implements ocr.Provider.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a Mistral OCR client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type annotationFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema"`
}

type ocrRequest struct {
	Model                    string            `json:"model"`
	Document                 ocrDocument       `json:"document"`
	Pages                    []int             `json:"pages,omitempty"`
	BBoxAnnotationFormat     *annotationFormat `json:"bbox_annotation_format,omitempty"`
	DocumentAnnotationFormat *annotationFormat `json:"document_annotation_format,omitempty"`
	IncludeImageBase64       bool              `json:"include_image_base64"`
}

type ocrImage struct {
	ID              string `json:"id"`
	TopLeftX        *int   `json:"top_left_x"`
	TopLeftY        *int   `json:"top_left_y"`
	BottomRightX    *int   `json:"bottom_right_x"`
	BottomRightY    *int   `json:"bottom_right_y"`
	ImageAnnotation string `json:"image_annotation"`
}

type ocrPage struct {
	Index    int        `json:"index"`
	Markdown string     `json:"markdown"`
	Images   []ocrImage `json:"images"`
}

type ocrResponse struct {
	Pages              []ocrPage `json:"pages"`
	DocumentAnnotation string    `json:"document_annotation"`
}

// bboxSchema describes the per-image annotation the provider should produce.
var bboxSchema = map[string]any{
	"name": "image_annotation",
	"schema": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"short_description": map[string]any{"type": "string"},
			"summary":           map[string]any{"type": "string"},
		},
		"required": []string{"short_description", "summary"},
	},
}

// documentSchema describes the document-level structural annotation.
var documentSchema = map[string]any{
	"name": "document_annotation",
	"schema": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"language": map[string]any{"type": "string"},
			"chapter_titles": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"language", "chapter_titles"},
	},
}

// Process runs OCR over the document at req.URL.
func (c *Client) Process(ctx context.Context, req ocr.Request) (*ocr.Result, error) {
	wire := ocrRequest{
		Model:    c.cfg.Model,
		Document: ocrDocument{Type: "document_url", DocumentURL: req.URL},
		Pages:    req.Pages,
		BBoxAnnotationFormat: &annotationFormat{
			Type:       "json_schema",
			JSONSchema: bboxSchema,
		},
	}
	if req.WithDocumentAnnotation {
		wire.DocumentAnnotationFormat = &annotationFormat{
			Type:       "json_schema",
			JSONSchema: documentSchema,
		}
	}

	body, _ := json.Marshal(wire)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mistral ocr: %w: %w", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("mistral ocr: %w: status %d: %s", domain.ErrProvider, resp.StatusCode, bytes.TrimSpace(data))
	}

	var result ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("mistral ocr decode: %w", err)
	}

	out := &ocr.Result{DocumentAnnotation: result.DocumentAnnotation}
	for _, p := range result.Pages {
		page := ocr.Page{Index: p.Index, Markdown: p.Markdown}
		for _, img := range p.Images {
			image := ocr.Image{ID: img.ID, Annotation: img.ImageAnnotation}
			if img.TopLeftX != nil && img.TopLeftY != nil && img.BottomRightX != nil && img.BottomRightY != nil {
				image.BBox = &ocr.BBox{
					TopLeftX:     *img.TopLeftX,
					TopLeftY:     *img.TopLeftY,
					BottomRightX: *img.BottomRightX,
					BottomRightY: *img.BottomRightY,
				}
			}
			page.Images = append(page.Images, image)
		}
		out.Pages = append(out.Pages, page)
	}
	return out, nil
}
