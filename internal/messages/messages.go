// Package messages holds the bilingual progress and error text the pipeline
// streams to clients. The controller asks for display text by event; the
// wording and layout live here and nowhere else.
package messages

import (
	"fmt"
	"time"

	"paperqa/internal/domain"
)

// Catalog formats pipeline events for one request's language.
type Catalog struct {
	lang domain.Language
}

// ForLanguage returns the catalog for the given language guess.
func ForLanguage(lang domain.Language) Catalog {
	return Catalog{lang: lang}
}

func (c Catalog) zh() bool { return c.lang == domain.LanguageChinese }

// ParseCompleted is emitted when the structuring stage succeeds.
func (c Catalog) ParseCompleted() string {
	if c.zh() {
		return "### 📄 步骤 1/5: PDF解析与结构化提取\n\n✅ 已完成\n\n"
	}
	return "### 📄 Step 1/5: PDF Parsing and Structure Extraction\n\n✅ Completed\n\n"
}

// AnalyzeCompleted is emitted when the question analysis stage succeeds.
func (c Catalog) AnalyzeCompleted() string {
	if c.zh() {
		return "### ❓ 步骤 2/5: 问题理解与关键词提取\n\n✅ 已完成\n\n"
	}
	return "### ❓ Step 2/5: Question Understanding and Keyword Extraction\n\n✅ Completed\n\n"
}

// RetrieveHeader precedes the passage retrieval stage.
func (c Catalog) RetrieveHeader() string {
	if c.zh() {
		return "### 🔍 步骤 3/5: 相关段落检索\n\n"
	}
	return "### 🔍 Step 3/5: Relevant Passage Retrieval\n\n"
}

// FilterHeader precedes the evidence filtering stage.
func (c Catalog) FilterHeader() string {
	if c.zh() {
		return "### 📊 步骤 4/5: 上下文构建与证据筛选\n\n"
	}
	return "### 📊 Step 4/5: Context Building and Evidence Filtering\n\n"
}

// GenerateHeader precedes the answer generation stage.
func (c Catalog) GenerateHeader() string {
	if c.zh() {
		return "### 📝 步骤 5/5: 答案生成\n\n"
	}
	return "### 📝 Step 5/5: Answer Generation\n\n"
}

// AnswerTitle precedes the streamed answer text.
func (c Catalog) AnswerTitle() string {
	if c.zh() {
		return "## 📄 答案\n\n"
	}
	return "## 📄 Answer\n\n"
}

// ParseTimedOut announces the switch to the no-LLM fallback extraction.
func (c Catalog) ParseTimedOut() string {
	if c.zh() {
		return "⚠️ PDF解析超时，使用备用方法提取基本信息\n\n"
	}
	return "⚠️ PDF parsing timeout, using fallback method to extract basic information\n\n"
}

// FallbackCompleted reports a successful fallback extraction.
func (c Catalog) FallbackCompleted() string {
	if c.zh() {
		return "基本信息提取完成\n\n"
	}
	return "Basic information extraction completed\n\n"
}

// LLMInitFailure reports a missing or broken text-generation client; the
// request cannot proceed without one.
func (c Catalog) LLMInitFailure(reason string) string {
	if c.zh() {
		return fmt.Sprintf("## ❌ 错误\n\nLLM客户端初始化失败: %s\n\n", reason)
	}
	return fmt.Sprintf("## ❌ Error\n\nLLM client initialization failed: %s\n\n", reason)
}

// ParseFailure reports a fatal structuring failure.
func (c Catalog) ParseFailure(reason string) string {
	if c.zh() {
		return fmt.Sprintf("## ❌ 错误\n\nPDF解析失败，无法继续: %s\n\n", reason)
	}
	return fmt.Sprintf("## ❌ Error\n\nPDF parsing failed. Cannot continue: %s\n\n", reason)
}

// AnalyzeFailure reports a fatal question-analysis failure.
func (c Catalog) AnalyzeFailure(reason string) string {
	if c.zh() {
		return fmt.Sprintf("## ❌ 错误\n\n问题分析失败: %s\n\n", reason)
	}
	return fmt.Sprintf("## ❌ Error\n\nQuestion analysis failed: %s\n\n", reason)
}

// RetrievalFailure reports a retrieval stage breakdown. Retrieval failures
// are absorbed: the pipeline continues without evidence passages.
func (c Catalog) RetrievalFailure(reason string) string {
	if c.zh() {
		return fmt.Sprintf("## ❌ 错误\n\n段落检索失败: %s\n\n", reason)
	}
	return fmt.Sprintf("## ❌ Error\n\nPassage retrieval failed: %s\n\n", reason)
}

// FilterFailure reports a fatal evidence-filtering failure.
func (c Catalog) FilterFailure(reason string) string {
	if c.zh() {
		return fmt.Sprintf("## ❌ 错误\n\n证据筛选失败: %s\n\n", reason)
	}
	return fmt.Sprintf("## ❌ Error\n\nEvidence filtering failed: %s\n\n", reason)
}

// AnswerFailure reports a fatal answer-generation failure.
func (c Catalog) AnswerFailure(reason string) string {
	if c.zh() {
		return fmt.Sprintf("## ❌ 错误\n\n答案生成失败: %s\n\n", reason)
	}
	return fmt.Sprintf("## ❌ Error\n\nAnswer generation failed: %s\n\n", reason)
}

// AnswerEmpty reports a generation call that returned no text.
func (c Catalog) AnswerEmpty() string {
	if c.zh() {
		return c.AnswerFailure("生成的答案为空")
	}
	return c.AnswerFailure("generated answer is empty")
}

// RequestTimeout reports that the whole request exceeded its time budget.
func (c Catalog) RequestTimeout(elapsed time.Duration) string {
	secs := int(elapsed.Seconds())
	if c.zh() {
		return fmt.Sprintf("## ❌ 超时错误\n\n请求处理超过 %d 秒，已自动终止\n\n", secs)
	}
	return fmt.Sprintf("## ❌ Timeout Error\n\nRequest processing exceeded %d seconds. Automatically terminated.\n\n", secs)
}

// GeneralFailure is the catch-all for anything escaping the controller.
func (c Catalog) GeneralFailure(reason string) string {
	if c.zh() {
		return fmt.Sprintf("## ❌ 错误\n\n程序执行失败: %s\n\n", reason)
	}
	return fmt.Sprintf("## ❌ Error\n\nProcess execution failed: %s\n\n", reason)
}

// StageTimeout is the reason text embedded in a stage failure message when
// the stage hit its own deadline rather than erroring.
func (c Catalog) StageTimeout(elapsed time.Duration) string {
	secs := int(elapsed.Seconds())
	if c.zh() {
		return fmt.Sprintf("任务执行超过 %d 秒，已取消", secs)
	}
	return fmt.Sprintf("task exceeded %d seconds and was cancelled", secs)
}
