package domain

import "strings"

// MaxProjectNameLength bounds project names at the validation gate.
const MaxProjectNameLength = 200

// ValidateProject checks a project before creation.
func ValidateProject(p Project) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return NewValidationError("name", "required")
	}
	if len(name) > MaxProjectNameLength {
		return NewValidationError("name", "too long")
	}
	if !ValidModels[p.EmbeddingModel] {
		return NewValidationError("model", "unknown embedding model "+string(p.EmbeddingModel))
	}
	if p.OwnerID == "" {
		return NewValidationError("owner", "required")
	}
	return nil
}

// ValidateChunk checks a chunk before persistence. Content must be non-empty
// and any attached embedding must match the model's dimensionality.
func ValidateChunk(c Chunk, model EmbeddingModel) error {
	if strings.TrimSpace(c.Content) == "" {
		return NewValidationError("content", "required")
	}
	if c.Embedding != nil && len(c.Embedding) != model.Dimensions() {
		return NewValidationError("embedding", "dimension mismatch")
	}
	return nil
}
