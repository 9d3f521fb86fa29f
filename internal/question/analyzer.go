// Package question turns the user's free-form query into a structured
// reading: question type, keywords, intent and answer focus.
package question

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"paperqa/internal/domain"
	"paperqa/internal/prompt"
)

// maxKeywords caps how many extracted keywords are kept.
const maxKeywords = 5

// Analyzer runs one language-bound analysis call per question.
type Analyzer struct {
	gen  domain.TextGenerator
	lang domain.Language
}

// NewAnalyzer creates an analyzer bound to the request's language.
func NewAnalyzer(gen domain.TextGenerator, lang domain.Language) *Analyzer {
	return &Analyzer{gen: gen, lang: lang}
}

// Analyze asks the model to classify the question and parses the response
// into a QuestionInfo.
func (a *Analyzer) Analyze(ctx context.Context, query string) (domain.QuestionInfo, error) {
	response, err := a.gen.Generate(ctx, prompt.QuestionAnalysis(query, a.lang))
	if err != nil {
		return domain.QuestionInfo{}, fmt.Errorf("question analysis: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return domain.QuestionInfo{}, fmt.Errorf("question analysis returned empty result")
	}
	return parseAnalysis(response), nil
}

// field labels the parser recognizes, in both languages. The model answers
// in loose markdown, so matching is by substring on each line.
var fieldLabels = []struct {
	field string
	zh    string
	en    string
}{
	{"type", "问题类型", "Question Type"},
	{"keywords", "关键词", "Keyword"},
	{"intent", "意图", "Intent"},
	{"focus", "重点", "Focus"},
}

// parseAnalysis walks the response line by line, switching fields when a
// labeled line appears and accumulating continuation lines into the current
// field. Content on the label line itself (after the colon) is kept.
func parseAnalysis(response string) domain.QuestionInfo {
	info := domain.QuestionInfo{Raw: response}
	fields := map[string][]string{}

	current := ""
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		matched := false
		for _, fl := range fieldLabels {
			if strings.Contains(line, fl.zh) || strings.Contains(line, fl.en) {
				current = fl.field
				if rest := afterColon(line); rest != "" {
					fields[current] = append(fields[current], rest)
				}
				matched = true
				break
			}
		}
		if !matched && current != "" {
			fields[current] = append(fields[current], line)
		}
	}

	info.QuestionType = strings.Join(fields["type"], "\n")
	info.Intent = strings.Join(fields["intent"], "\n")
	info.AnswerFocus = strings.Join(fields["focus"], "\n")
	info.Keywords = splitKeywords(strings.Join(fields["keywords"], "\n"))
	return info
}

// afterColon returns the content after the first half- or full-width colon,
// or "" when the line has none.
func afterColon(line string) string {
	idx := strings.IndexAny(line, ":：")
	if idx < 0 {
		return ""
	}
	_, size := utf8.DecodeRuneInString(line[idx:])
	return strings.TrimSpace(line[idx+size:])
}

// splitKeywords breaks the keywords field on commas (both widths), trims
// list markup and caps the result at maxKeywords.
func splitKeywords(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '，' || r == '\n'
	})
	var keywords []string
	for _, p := range parts {
		kw := strings.Trim(strings.TrimSpace(p), "-* ")
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
