// Package pdf turns a base64 PDF payload into structured document info: text
// extraction via docconv, structuring via one model call, and a no-model
// fallback for when structuring runs out of time.
package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv/v2"

	"paperqa/internal/domain"
	"paperqa/internal/prompt"
)

// Parser extracts and structures paper content.
type Parser struct {
	gen domain.TextGenerator
	log *slog.Logger
}

// NewParser creates a Parser on top of a text-generation capability.
func NewParser(gen domain.TextGenerator, log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{gen: gen, log: log}
}

// Parse extracts the PDF's text and asks the model to structure it into the
// document fields. The raw extracted text rides along for retrieval.
func (p *Parser) Parse(ctx context.Context, pdfContent string, lang domain.Language) (domain.DocumentInfo, error) {
	text, err := p.ExtractText(pdfContent)
	if err != nil {
		return domain.DocumentInfo{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.DocumentInfo{}, fmt.Errorf("pdf contains no extractable text")
	}
	p.log.Debug("pdf text extracted", "runes", utf8.RuneCountInString(text))

	response, err := p.gen.Generate(ctx, prompt.PDFParse(text, lang))
	if err != nil {
		return domain.DocumentInfo{}, fmt.Errorf("structure extraction: %w", err)
	}
	return parseStructured(response, text), nil
}

// FallbackExtract builds a minimal DocumentInfo without the model: capped
// raw text, the leading runes as abstract and a guessed title.
func (p *Parser) FallbackExtract(pdfContent string) (domain.DocumentInfo, error) {
	text, err := p.ExtractText(pdfContent)
	if err != nil {
		return domain.DocumentInfo{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.DocumentInfo{}, fmt.Errorf("pdf contains no extractable text")
	}
	return fallbackFrom(text), nil
}

// ExtractText decodes the base64 payload and pulls the plain text out of the
// PDF bytes.
func (p *Parser) ExtractText(pdfContent string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(pdfContent)
	if err != nil {
		return "", fmt.Errorf("decode pdf payload: %w", err)
	}
	res, err := docconv.Convert(bytes.NewReader(raw), "application/pdf", true)
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return res.Body, nil
}

const (
	fallbackRawCap      = 10000
	fallbackAbstractCap = 500

	titleMinRunes  = 10
	titleMaxRunes  = 200
	titleScanLines = 10
	titleHeadRunes = 100

	// maxBareHeadingRunes bounds how long a colon-less line may be and
	// still count as a section heading.
	maxBareHeadingRunes = 40
)

func fallbackFrom(text string) domain.DocumentInfo {
	return domain.DocumentInfo{
		Title:    guessTitle(text),
		Abstract: prompt.TruncateRunes(text, fallbackAbstractCap),
		RawText:  prompt.TruncateRunes(text, fallbackRawCap),
	}
}

// guessTitle takes the first early line of plausible title length; failing
// that, the head of the text with whitespace collapsed.
func guessTitle(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i == titleScanLines {
			break
		}
		line = strings.TrimSpace(line)
		if n := utf8.RuneCountInString(line); n > titleMinRunes && n < titleMaxRunes {
			return line
		}
	}
	head := prompt.TruncateRunes(text, titleHeadRunes)
	return strings.Join(strings.Fields(head), " ")
}

// fieldLabels maps response headings to document fields, both languages.
// References is recognized so bibliography lines don't bleed into whatever
// field came before it, but its content is discarded.
var fieldLabels = []struct {
	field string
	en    string
	zh    string
}{
	{"title", "Title", "标题"},
	{"authors", "Authors", "作者"},
	{"abstract", "Abstract", "摘要"},
	{"keywords", "Keywords", "关键词"},
	{"introduction", "Introduction", "引言"},
	{"methodology", "Methodology", "方法论"},
	{"experiments", "Experiments", "实验"},
	{"results", "Results", "结果"},
	{"conclusion", "Conclusion", "结论"},
	{"references", "References", "参考文献"},
	{"papertype", "Paper Type", "论文类型"},
	{"contributions", "Core Contributions", "核心贡献"},
	{"approach", "Technical Approach", "技术方法"},
}

// parseStructured walks the model response line by line, switching fields on
// heading lines and accumulating continuations into the current field.
func parseStructured(response, rawText string) domain.DocumentInfo {
	fields := map[string][]string{}
	current := ""
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if field, rest, ok := matchHeading(line); ok {
			current = field
			if rest != "" {
				fields[current] = append(fields[current], rest)
			}
			continue
		}
		if current != "" {
			fields[current] = append(fields[current], line)
		}
	}
	return domain.DocumentInfo{
		Title:         cleanField(fields["title"]),
		Authors:       cleanField(fields["authors"]),
		Abstract:      cleanField(fields["abstract"]),
		Keywords:      cleanField(fields["keywords"]),
		Introduction:  cleanField(fields["introduction"]),
		Methodology:   cleanField(fields["methodology"]),
		Experiments:   cleanField(fields["experiments"]),
		Results:       cleanField(fields["results"]),
		Conclusion:    cleanField(fields["conclusion"]),
		PaperType:     cleanField(fields["papertype"]),
		Contributions: cleanField(fields["contributions"]),
		Approach:      cleanField(fields["approach"]),
		RawText:       rawText,
	}
}

// matchHeading reports whether the line opens a new field. A heading either
// carries its label before the first colon, or is a short colon-less line
// like "**Abstract**". Prose mentioning a label after a colon stays in the
// current field.
func matchHeading(line string) (field, rest string, ok bool) {
	head := line
	if idx := strings.IndexAny(line, ":："); idx >= 0 {
		head = line[:idx]
		_, size := utf8.DecodeRuneInString(line[idx:])
		rest = strings.TrimSpace(line[idx+size:])
	} else if utf8.RuneCountInString(line) > maxBareHeadingRunes {
		return "", "", false
	}
	for _, fl := range fieldLabels {
		if strings.Contains(head, fl.en) || strings.Contains(head, fl.zh) {
			return fl.field, rest, true
		}
	}
	return "", "", false
}

// cleanField joins a field's lines and drops the model's explicit
// "not found" placeholders.
func cleanField(lines []string) string {
	joined := strings.Trim(strings.TrimSpace(strings.Join(lines, "\n")), "*# ")
	switch strings.ToLower(strings.Trim(joined, ".。")) {
	case "not found", "未找到":
		return ""
	}
	return joined
}
