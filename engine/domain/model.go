package domain

import "strings"

// EmbeddingModel identifies which provider model a project embeds with.
// The stored identifier uses underscores; ProviderModel maps it to the
// provider's dashed model name.
type EmbeddingModel string

const (
	ModelTextEmbedding3Small EmbeddingModel = "openai_text_embedding_3_small"
	ModelTextEmbedding3Large EmbeddingModel = "openai_text_embedding_3_large"
	ModelTextEmbeddingAda002 EmbeddingModel = "openai_text_embedding_ada_002"
)

// ValidModels is the set of recognised embedding models.
var ValidModels = map[EmbeddingModel]bool{
	ModelTextEmbedding3Small: true,
	ModelTextEmbedding3Large: true,
	ModelTextEmbeddingAda002: true,
}

// ProviderModel returns the provider-side model name, e.g.
// "openai_text_embedding_3_small" -> "text-embedding-3-small".
func (m EmbeddingModel) ProviderModel() string {
	name := strings.ReplaceAll(string(m), "_", "-")
	return strings.TrimPrefix(name, "openai-")
}

// Dimensions returns the vector dimensionality chunks of this model carry.
// The large model is requested at a reduced 1536 dimensions so all models
// share one vector width.
func (m EmbeddingModel) Dimensions() int {
	return 1536
}

// RequestDimensions returns the dimensions value to send to the provider,
// or 0 when the provider default should be used. Only the large model
// overrides its native 3072 dimensions.
func (m EmbeddingModel) RequestDimensions() int {
	if m == ModelTextEmbedding3Large {
		return 1536
	}
	return 0
}
