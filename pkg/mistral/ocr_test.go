package mistral

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/engine/ocr"
)

func TestProcessMapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ocrRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Document.Type != "document_url" || req.Document.DocumentURL != "https://example.com/manual.pdf" {
			t.Errorf("document = %+v", req.Document)
		}
		if req.DocumentAnnotationFormat == nil {
			t.Error("document annotation format should be requested")
		}
		if req.BBoxAnnotationFormat == nil {
			t.Error("bbox annotation format should always be requested")
		}
		x := 1
		json.NewEncoder(w).Encode(ocrResponse{
			Pages: []ocrPage{{
				Index:    0,
				Markdown: "# Title\n![img-0](img-0)",
				Images: []ocrImage{{
					ID:              "img-0",
					TopLeftX:        &x,
					TopLeftY:        &x,
					BottomRightX:    &x,
					BottomRightY:    &x,
					ImageAnnotation: `{"short_description":"d","summary":"s"}`,
				}},
			}},
			DocumentAnnotation: `{"language":"en","chapter_titles":["Title"]}`,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	res, err := c.Process(context.Background(), ocr.Request{
		URL:                    "https://example.com/manual.pdf",
		Pages:                  []int{0, 1},
		WithDocumentAnnotation: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Pages) != 1 || res.Pages[0].Markdown != "# Title\n![img-0](img-0)" {
		t.Fatalf("pages = %+v", res.Pages)
	}
	img := res.Pages[0].Images[0]
	if img.ID != "img-0" || img.BBox == nil || img.BBox.TopLeftX != 1 {
		t.Fatalf("image = %+v", img)
	}
	ann, err := ocr.ParseDocumentAnnotation(res.DocumentAnnotation)
	if err != nil || ann.Language != "en" {
		t.Fatalf("annotation = %+v, %v", ann, err)
	}
}

func TestProcessSkipsDocumentAnnotationWhenNotRequested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ocrRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.DocumentAnnotationFormat != nil {
			t.Error("document annotation format should be omitted")
		}
		json.NewEncoder(w).Encode(ocrResponse{})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.Process(context.Background(), ocr.Request{URL: "u"}); err != nil {
		t.Fatal(err)
	}
}

func TestProcessProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Process(context.Background(), ocr.Request{URL: "u"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}
