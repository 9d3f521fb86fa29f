package domain

import (
	"strings"
	"unicode/utf8"
)

// Language is a coarse guess of the user's language, used to select the
// prompt and message templates for a request.
type Language string

const (
	LanguageChinese Language = "zh"
	LanguageEnglish Language = "en"
)

// Span is a contiguous slice of source text produced by chunking.
// Offsets are rune positions of the raw window before trimming.
type Span struct {
	Text        string
	StartOffset int
	EndOffset   int
}

// ScoredSpan pairs a span's text with its retrieval score. Score is cosine
// similarity in [-1, 1]; exactly 0 marks an unscored fallback result.
type ScoredSpan struct {
	Text  string
	Score float64
}

// DocumentInfo holds the structured fields extracted from a paper.
// Fields the model could not locate stay empty.
type DocumentInfo struct {
	Title         string
	Authors       string
	Abstract      string
	Keywords      string
	Introduction  string
	Methodology   string
	Experiments   string
	Results       string
	Conclusion    string
	PaperType     string
	Contributions string
	Approach      string

	// RawText is the extracted PDF text the structured fields came from.
	RawText string
}

// ContextText returns the text passage retrieval runs over: the raw
// extracted text when present, otherwise the structured sections joined
// together. A join under 100 runes is too thin to chunk, so the raw text
// wins again in that case.
func (d DocumentInfo) ContextText() string {
	if d.RawText != "" {
		return d.RawText
	}
	joined := strings.Join([]string{d.Abstract, d.Introduction, d.Methodology, d.Results, d.Conclusion}, "\n")
	if utf8.RuneCountInString(strings.TrimSpace(joined)) < 100 {
		return d.RawText
	}
	return joined
}

// QuestionInfo is the structured reading of the user's question.
type QuestionInfo struct {
	QuestionType string
	Keywords     []string
	Intent       string
	AnswerFocus  string

	// Raw keeps the full analysis response for logging.
	Raw string
}
