package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"paperqa/internal/domain"
)

func TestCatalogSelectsLanguage(t *testing.T) {
	zh := ForLanguage(domain.LanguageChinese)
	en := ForLanguage(domain.LanguageEnglish)

	assert.Contains(t, zh.ParseCompleted(), "步骤 1/5")
	assert.Contains(t, en.ParseCompleted(), "Step 1/5")
	assert.Contains(t, zh.RetrieveHeader(), "步骤 3/5")
	assert.Contains(t, en.GenerateHeader(), "Step 5/5")
	assert.Contains(t, zh.AnswerTitle(), "答案")
	assert.Contains(t, en.AnswerTitle(), "Answer")
}

func TestStageHeadersEndWithBlankLine(t *testing.T) {
	// Every template closes with a blank markdown line so streamed output
	// stays readable when the next block follows immediately.
	c := ForLanguage(domain.LanguageEnglish)
	for _, msg := range []string{
		c.ParseCompleted(), c.AnalyzeCompleted(), c.RetrieveHeader(),
		c.FilterHeader(), c.GenerateHeader(), c.AnswerTitle(),
		c.ParseTimedOut(), c.FallbackCompleted(),
	} {
		assert.True(t, strings.HasSuffix(msg, "\n\n"), "%q", msg)
	}
}

func TestErrorMessagesEmbedReason(t *testing.T) {
	en := ForLanguage(domain.LanguageEnglish)
	zh := ForLanguage(domain.LanguageChinese)

	assert.Contains(t, en.ParseFailure("boom"), "PDF parsing failed. Cannot continue: boom")
	assert.Contains(t, zh.ParseFailure("炸了"), "PDF解析失败，无法继续: 炸了")
	assert.Contains(t, en.AnalyzeFailure("x"), "Question analysis failed: x")
	assert.Contains(t, en.RetrievalFailure("y"), "Passage retrieval failed: y")
	assert.Contains(t, en.FilterFailure("z"), "Evidence filtering failed: z")
	assert.Contains(t, en.AnswerFailure("w"), "Answer generation failed: w")
	assert.True(t, strings.HasPrefix(en.ParseFailure("boom"), "## ❌ Error\n\n"))
	assert.True(t, strings.HasPrefix(zh.ParseFailure("炸了"), "## ❌ 错误\n\n"))
}

func TestTimeoutMessagesReportSeconds(t *testing.T) {
	en := ForLanguage(domain.LanguageEnglish)
	zh := ForLanguage(domain.LanguageChinese)

	assert.Contains(t, en.RequestTimeout(93*time.Second), "exceeded 93 seconds")
	assert.Contains(t, zh.RequestTimeout(93*time.Second), "超过 93 秒")
	assert.Contains(t, en.StageTimeout(45*time.Second), "45 seconds")
	assert.Contains(t, zh.StageTimeout(45*time.Second), "45 秒")
}

func TestAnswerEmpty(t *testing.T) {
	assert.Contains(t, ForLanguage(domain.LanguageEnglish).AnswerEmpty(), "generated answer is empty")
	assert.Contains(t, ForLanguage(domain.LanguageChinese).AnswerEmpty(), "生成的答案为空")
}
