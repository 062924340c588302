package domain

import (
	"errors"
	"testing"
)

func TestProviderModel(t *testing.T) {
	cases := []struct {
		model EmbeddingModel
		want  string
	}{
		{ModelTextEmbedding3Small, "text-embedding-3-small"},
		{ModelTextEmbedding3Large, "text-embedding-3-large"},
		{ModelTextEmbeddingAda002, "text-embedding-ada-002"},
	}
	for _, c := range cases {
		if got := c.model.ProviderModel(); got != c.want {
			t.Errorf("%s: got %q, want %q", c.model, got, c.want)
		}
	}
}

func TestRequestDimensions(t *testing.T) {
	if d := ModelTextEmbedding3Large.RequestDimensions(); d != 1536 {
		t.Errorf("large model should request 1536 dims, got %d", d)
	}
	if d := ModelTextEmbedding3Small.RequestDimensions(); d != 0 {
		t.Errorf("small model should use provider default, got %d", d)
	}
	if d := ModelTextEmbeddingAda002.RequestDimensions(); d != 0 {
		t.Errorf("ada model should use provider default, got %d", d)
	}
}

func TestValidateProject(t *testing.T) {
	valid := Project{Name: "Q3 Report", EmbeddingModel: ModelTextEmbedding3Small, OwnerID: "user1"}
	if err := ValidateProject(valid); err != nil {
		t.Fatalf("valid project rejected: %v", err)
	}

	noName := valid
	noName.Name = "   "
	if err := ValidateProject(noName); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank name, got %v", err)
	}

	badModel := valid
	badModel.EmbeddingModel = "openai_gpt_4"
	if err := ValidateProject(badModel); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown model, got %v", err)
	}

	noOwner := valid
	noOwner.OwnerID = ""
	if err := ValidateProject(noOwner); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing owner, got %v", err)
	}
}

func TestValidateChunk(t *testing.T) {
	model := ModelTextEmbedding3Small

	if err := ValidateChunk(Chunk{Content: "hello"}, model); err != nil {
		t.Fatalf("valid chunk rejected: %v", err)
	}
	if err := ValidateChunk(Chunk{Content: " \n "}, model); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank content, got %v", err)
	}

	short := Chunk{Content: "x", Embedding: make([]float32, 3)}
	if err := ValidateChunk(short, model); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for dimension mismatch, got %v", err)
	}

	ok := Chunk{Content: "x", Embedding: make([]float32, model.Dimensions())}
	if err := ValidateChunk(ok, model); err != nil {
		t.Errorf("matching embedding rejected: %v", err)
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := NewValidationError("query", "required")
	if !errors.Is(err, ErrValidation) {
		t.Error("ValidationError should unwrap to ErrValidation")
	}
	if err.Error() != "validation: query: required" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
