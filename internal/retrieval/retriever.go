// Package retrieval ranks candidate spans against a query by embedding
// similarity.
package retrieval

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"paperqa/internal/domain"
)

// Retriever embeds a query and candidate spans and returns the best matches.
// It never fails: every error path degrades to an unscored prefix of the
// spans in their original order.
type Retriever struct {
	embedder domain.Embedder
	log      *slog.Logger
}

// New creates a Retriever on top of an embedding capability.
func New(embedder domain.Embedder, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{embedder: embedder, log: log}
}

// Retrieve returns up to topK spans ranked by cosine similarity to the
// query, best first. Ties keep document order. A span whose own embedding is
// missing scores 0 and stays in the result rather than vanishing.
func (r *Retriever) Retrieve(ctx context.Context, query string, spans []domain.Span, topK int) (ranked []domain.ScoredSpan) {
	if len(spans) == 0 {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("similarity scoring panicked, using unscored fallback", "panic", rec)
			ranked = Unscored(spans, topK)
		}
	}()

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil || len(queryVec) == 0 {
		r.log.Warn("query embedding failed, using unscored fallback", "err", err)
		return Unscored(spans, topK)
	}

	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(spans) {
		r.log.Warn("span embedding failed, using unscored fallback", "err", err)
		return Unscored(spans, topK)
	}

	ranked = make([]domain.ScoredSpan, len(spans))
	for i, s := range spans {
		score := 0.0
		if len(vecs[i]) > 0 {
			score = Cosine(queryVec, vecs[i])
		}
		ranked[i] = domain.ScoredSpan{Text: s.Text, Score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// Unscored is the fallback result: the first topK spans in document order,
// each carrying the 0.0 sentinel score.
func Unscored(spans []domain.Span, topK int) []domain.ScoredSpan {
	if topK <= 0 || topK > len(spans) {
		topK = len(spans)
	}
	out := make([]domain.ScoredSpan, topK)
	for i := 0; i < topK; i++ {
		out[i] = domain.ScoredSpan{Text: spans[i].Text, Score: 0}
	}
	return out
}

// Cosine returns the cosine similarity of two vectors, or 0 when either has
// zero norm. It panics when the dimensions differ; Retrieve recovers that
// into the unscored fallback.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("retrieval: vectors must have the same dimension")
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
