package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stageFake answers each stage's prompt by keyword, standing in for the
// model.
type stageFake struct {
	mu      sync.Mutex
	prompts []string

	analyzeResp string
	analyzeErr  error
	filterResp  string
	filterErr   error
	answerResp  string
	answerErr   error
	answerDelay time.Duration
}

func (f *stageFake) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	switch {
	case strings.Contains(prompt, "carefully analyze the following user question") ||
		strings.Contains(prompt, "请仔细分析以下用户问题"):
		return f.analyzeResp, f.analyzeErr
	case strings.Contains(prompt, "filter the most relevant and valuable evidence passages") ||
		strings.Contains(prompt, "筛选出最相关、最有价值的证据段落"):
		return f.filterResp, f.filterErr
	case strings.Contains(prompt, "answer the user's question based on the following paper information") ||
		strings.Contains(prompt, "请基于以下论文信息和相关证据段落"):
		if f.answerDelay > 0 {
			select {
			case <-time.After(f.answerDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return f.answerResp, f.answerErr
	}
	return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
}

func (f *stageFake) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeParser struct {
	doc         domain.DocumentInfo
	err         error
	block       bool
	fallbackDoc domain.DocumentInfo
	fallbackErr error
}

func (p *fakeParser) Parse(ctx context.Context, _ string, _ domain.Language) (domain.DocumentInfo, error) {
	if p.block {
		<-ctx.Done()
		return domain.DocumentInfo{}, ctx.Err()
	}
	return p.doc, p.err
}

func (p *fakeParser) FallbackExtract(string) (domain.DocumentInfo, error) {
	return p.fallbackDoc, p.fallbackErr
}

type panickyParser struct{ fakeParser }

func (*panickyParser) FallbackExtract(string) (domain.DocumentInfo, error) {
	panic("fallback exploded")
}

type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, _ string) ([]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingEmbedder) EmbedBatch(ctx context.Context, _ []string) ([][]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// fastConfig trades realistic deadlines for subsecond tests. Large stream
// chunks keep each catalog message in a single event.
func fastConfig() Config {
	return Config{
		ParseTimeout:      time.Second,
		AnalyzeTimeout:    time.Second,
		RetrieveTimeout:   time.Second,
		FilterTimeout:     time.Second,
		GenerateTimeout:   time.Second,
		HeartbeatInterval: 50 * time.Millisecond,
		RequestTimeout:    5 * time.Second,
		PollInterval:      2 * time.Millisecond,
		ChunkSize:         200,
		TopK:              5,
		StreamChunkRunes:  4096,
	}
}

// collectEvents drains a stream to closure, returning the content texts and
// the number of Done markers. Nothing may follow Done.
func collectEvents(t *testing.T, ch <-chan StreamEvent) ([]string, int) {
	t.Helper()
	var contents []string
	done := 0
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return contents, done
			}
			switch e := ev.(type) {
			case Content:
				assert.Zero(t, done, "content after the Done marker")
				contents = append(contents, e.Text)
			case Done:
				done++
			}
		case <-deadline:
			t.Fatal("stream never closed")
		}
	}
}

func TestAnswerHappyPathOrdering(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "Question Type: factual\nKeywords: attention, recurrence",
		filterResp:  "Passage 2 and Passage 1",
		answerResp:  "**Attention** replaces recurrence entirely.",
	}
	parser := &fakeParser{doc: domain.DocumentInfo{
		Title:   "Attention Is All You Need",
		RawText: strings.Repeat("Self-attention layers connect all positions. ", 30),
	}}
	c := NewController(gen, nil, parser, fastConfig(), testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "What replaces recurrence?", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")

	markers := []string{
		"Step 1/5", "Step 2/5", "Step 3/5", "Step 4/5", "Step 5/5",
		"## 📄 Answer", "**Attention** replaces recurrence entirely.",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(text, m)
		require.NotEqual(t, -1, idx, "missing %q", m)
		assert.Greater(t, idx, last, "%q out of order", m)
		last = idx
	}
	assert.NotContains(t, text, "## ❌")
}

func TestAnswerChineseCatalog(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "问题类型：事实性",
		filterResp:  "选择 段落 1",
		answerResp:  "注意力机制取代了循环结构。",
	}
	parser := &fakeParser{doc: domain.DocumentInfo{RawText: strings.Repeat("自注意力连接所有位置。", 60)}}
	c := NewController(gen, nil, parser, fastConfig(), testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "这篇论文的核心贡献是什么？", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "步骤 1/5")
	assert.Contains(t, text, "## 📄 答案")
	assert.Contains(t, text, "注意力机制取代了循环结构。")
}

func TestAnswerNilGenerator(t *testing.T) {
	c := NewController(nil, nil, &fakeParser{}, fastConfig(), testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", ""))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "LLM client initialization failed")
	assert.NotContains(t, text, "Step 1/5")
}

func TestAnswerParseFailureStops(t *testing.T) {
	gen := &stageFake{}
	parser := &fakeParser{err: errors.New("broken base64 payload")}
	c := NewController(gen, nil, parser, fastConfig(), testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "zzz"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "PDF parsing failed")
	assert.Contains(t, text, "broken base64 payload")
	assert.NotContains(t, text, "Step 2/5")
	assert.Empty(t, gen.recorded(), "no model calls after a fatal parse")
}

func TestAnswerParseTimeoutRecoversThroughFallback(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "Question Type: factual",
		filterResp:  "Passage 1",
		answerResp:  "recovered answer",
	}
	parser := &fakeParser{
		block:       true,
		fallbackDoc: domain.DocumentInfo{Title: "T", RawText: strings.Repeat("fallback text body. ", 30)},
	}
	cfg := fastConfig()
	cfg.ParseTimeout = 30 * time.Millisecond
	c := NewController(gen, nil, parser, cfg, testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "PDF parsing timeout, using fallback method")
	assert.Contains(t, text, "Basic information extraction completed")
	assert.Contains(t, text, "Step 2/5", "pipeline continues after a successful fallback")
	assert.Contains(t, text, "recovered answer")
	assert.NotContains(t, text, "PDF parsing failed")
}

func TestAnswerFallbackFailureIsFatal(t *testing.T) {
	parser := &fakeParser{block: true, fallbackErr: errors.New("empty document")}
	cfg := fastConfig()
	cfg.ParseTimeout = 30 * time.Millisecond
	c := NewController(&stageFake{}, nil, parser, cfg, testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "PDF parsing timeout")
	assert.Contains(t, text, "PDF parsing failed")
	assert.Contains(t, text, "empty document")
	assert.NotContains(t, text, "Step 2/5")
}

func TestAnswerAnalyzeFailureStops(t *testing.T) {
	gen := &stageFake{analyzeErr: errors.New("model offline")}
	parser := &fakeParser{doc: domain.DocumentInfo{RawText: "short text body"}}
	c := NewController(gen, nil, parser, fastConfig(), testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "Question analysis failed")
	assert.Contains(t, text, "model offline")
	assert.NotContains(t, text, "Step 3/5")
}

func TestAnswerRetrieveTimeoutAbsorbed(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "Question Type: factual",
		answerResp:  "answer from sections",
	}
	parser := &fakeParser{doc: domain.DocumentInfo{
		Abstract: "the abstract",
		RawText:  strings.Repeat("body text. ", 50),
	}}
	cfg := fastConfig()
	cfg.RetrieveTimeout = 30 * time.Millisecond
	c := NewController(gen, blockingEmbedder{}, parser, cfg, testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "Passage retrieval failed")
	assert.Contains(t, text, "Step 4/5", "retrieval breakdowns do not stop the pipeline")
	assert.Contains(t, text, "Step 5/5")
	assert.Contains(t, text, "answer from sections")
}

func TestAnswerWithoutEmbedderDegrades(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "Question Type: factual",
		filterResp:  "Passage 1",
		answerResp:  "degraded-mode answer",
	}
	parser := &fakeParser{doc: domain.DocumentInfo{RawText: strings.Repeat("plain text body. ", 40)}}
	c := NewController(gen, nil, parser, fastConfig(), testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.NotContains(t, text, "Passage retrieval failed")
	assert.Contains(t, text, "degraded-mode answer")

	var filterPrompt string
	for _, p := range gen.recorded() {
		if strings.Contains(p, "filter the most relevant") {
			filterPrompt = p
		}
	}
	require.NotEmpty(t, filterPrompt, "fixed-window chunks still feed the filter")
	assert.Contains(t, filterPrompt, "Passage 1:")
}

func TestAnswerGenerateFailure(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "Question Type: factual",
		filterResp:  "Passage 1",
		answerErr:   errors.New("quota exhausted"),
	}
	parser := &fakeParser{doc: domain.DocumentInfo{RawText: strings.Repeat("text. ", 60)}}
	c := NewController(gen, nil, parser, fastConfig(), testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "Answer generation failed")
	assert.Contains(t, text, "quota exhausted")
}

func TestAnswerEmptyAnswerReported(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "Question Type: factual",
		filterResp:  "Passage 1",
		answerResp:  "  \n ",
	}
	parser := &fakeParser{doc: domain.DocumentInfo{RawText: strings.Repeat("text. ", 60)}}
	c := NewController(gen, nil, parser, fastConfig(), testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	assert.Contains(t, strings.Join(contents, ""), "generated answer is empty")
}

func TestAnswerRequestTimeout(t *testing.T) {
	parser := &fakeParser{block: true}
	cfg := fastConfig()
	cfg.ParseTimeout = 10 * time.Second
	cfg.RequestTimeout = 40 * time.Millisecond
	c := NewController(&stageFake{}, nil, parser, cfg, testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	text := strings.Join(contents, "")
	assert.Contains(t, text, "Request processing exceeded")
	assert.NotContains(t, text, "PDF parsing failed", "the request timeout replaces the stage message")
}

func TestAnswerClientCancelClosesStream(t *testing.T) {
	parser := &fakeParser{block: true}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewController(&stageFake{}, nil, parser, fastConfig(), testLogger())
	ch := c.Answer(ctx, "q", "cGRm")

	time.Sleep(10 * time.Millisecond)
	cancel()

	_, done := collectEvents(t, ch)
	assert.Equal(t, 1, done)
}

func TestAnswerHeartbeatsDuringSlowStage(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "Question Type: factual",
		filterResp:  "Passage 1",
		answerResp:  "slow but fine",
		answerDelay: 80 * time.Millisecond,
	}
	parser := &fakeParser{doc: domain.DocumentInfo{RawText: strings.Repeat("text body. ", 40)}}
	cfg := fastConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	c := NewController(gen, nil, parser, cfg, testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done)
	beats := 0
	for _, s := range contents {
		if s == " " {
			beats++
		}
	}
	assert.GreaterOrEqual(t, beats, 1, "keep-alives expected while generation is pending")
	assert.Contains(t, strings.Join(contents, ""), "slow but fine")
}

func TestAnswerStreamsRuneChunks(t *testing.T) {
	gen := &stageFake{
		analyzeResp: "问题类型：事实性",
		filterResp:  "段落 1",
		answerResp:  "短答案",
	}
	parser := &fakeParser{doc: domain.DocumentInfo{RawText: strings.Repeat("正文。", 100)}}
	cfg := fastConfig()
	cfg.StreamChunkRunes = 1
	c := NewController(gen, nil, parser, cfg, testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "这篇论文讲了什么", "cGRm"))
	require.Equal(t, 1, done)
	for _, s := range contents {
		assert.LessOrEqual(t, utf8.RuneCountInString(s), 1)
	}
	assert.Contains(t, strings.Join(contents, ""), "短答案")
}

func TestAnswerPanicBecomesGeneralFailure(t *testing.T) {
	parser := &panickyParser{fakeParser{block: true}}
	cfg := fastConfig()
	cfg.ParseTimeout = 20 * time.Millisecond
	c := NewController(&stageFake{}, nil, parser, cfg, testLogger())

	contents, done := collectEvents(t, c.Answer(context.Background(), "q", "cGRm"))
	require.Equal(t, 1, done, "Done still arrives after a panic")
	text := strings.Join(contents, "")
	assert.Contains(t, text, "Process execution failed")
	assert.Contains(t, text, "fallback exploded")
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	assert.Equal(t, 240*time.Second, cfg.ParseTimeout)
	assert.Equal(t, 300*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, 15*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, 1, cfg.StreamChunkRunes)
}

func TestRequestIDPlumbing(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", requestID(ctx))
	assert.NotEmpty(t, requestID(context.Background()), "missing id falls back to a generated one")
}
