// Package answer runs the evidence-filtering and answer-generation model
// calls and the fallbacks that keep them from sinking a request.
package answer

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"paperqa/internal/domain"
	"paperqa/internal/prompt"
)

// Generator produces the final response text for one request's language.
type Generator struct {
	gen  domain.TextGenerator
	lang domain.Language
	log  *slog.Logger
}

// NewGenerator creates a Generator bound to the request's language.
func NewGenerator(gen domain.TextGenerator, lang domain.Language, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{gen: gen, lang: lang, log: log}
}

// How much evidence moves forward when the model's selection is unusable.
const (
	unparseableKeep = 5
	filterErrorKeep = 8
)

// FilterEvidence asks the model which passages matter for the question and
// returns them in the order they were selected. It never fails: an
// unparseable response keeps the first 5 passages, a failed call the first 8,
// and an empty input skips the call entirely.
func (g *Generator) FilterEvidence(ctx context.Context, query string, passages []string) []string {
	if len(passages) == 0 {
		return nil
	}
	resp, err := g.gen.Generate(ctx, prompt.EvidenceFilter(query, passages, g.lang))
	if err != nil {
		g.log.Warn("evidence filtering failed, keeping leading passages", "err", err)
		return head(passages, filterErrorKeep)
	}
	selected := parseSelection(resp, len(passages))
	if len(selected) == 0 {
		g.log.Warn("no passage numbers in filter response, keeping leading passages")
		return head(passages, unparseableKeep)
	}
	out := make([]string, 0, len(selected))
	for _, n := range selected {
		out = append(out, passages[n-1])
	}
	return out
}

var passageRef = regexp.MustCompile(`(?:段落|Passage)\s*(\d+)`)

// parseSelection extracts the 1-based passage numbers referenced in the
// model's response, deduplicated in order of first mention. Numbers outside
// [1, total] are dropped.
func parseSelection(resp string, total int) []int {
	matches := passageRef.FindAllStringSubmatch(resp, -1)
	seen := make(map[int]bool, len(matches))
	var out []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > total {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func head(passages []string, n int) []string {
	if len(passages) < n {
		n = len(passages)
	}
	return passages[:n]
}

// GenerateAnswer produces the final answer text. When no evidence survived,
// the paper's own sections stand in as context so the model still has the
// document in front of it.
func (g *Generator) GenerateAnswer(ctx context.Context, query string, doc domain.DocumentInfo, evidence []string) (string, error) {
	if len(evidence) == 0 {
		evidence = sectionContext(doc)
		g.log.Info("no evidence passages, using structured sections", "sections", len(evidence))
	}
	return g.gen.Generate(ctx, prompt.AnswerGeneration(query, doc, evidence, g.lang))
}

// sectionContext builds the evidence stand-in from the abstract,
// introduction and methodology, each capped at 500 runes.
func sectionContext(doc domain.DocumentInfo) []string {
	var out []string
	for _, s := range []string{doc.Abstract, doc.Introduction, doc.Methodology} {
		if s == "" {
			continue
		}
		out = append(out, prompt.TruncateRunes(s, 500))
	}
	return out
}
