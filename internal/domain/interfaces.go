package domain

import "context"

// TextGenerator produces free-form text from a prompt. Every pipeline stage
// that needs language understanding goes through this single capability.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder converts text into numeric vectors for similarity ranking.
// The capability is optional at assembly time; running without one degrades
// retrieval to unranked spans rather than failing requests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}
