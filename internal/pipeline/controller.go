package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"paperqa/internal/answer"
	"paperqa/internal/chunker"
	"paperqa/internal/domain"
	"paperqa/internal/messages"
	"paperqa/internal/prompt"
	"paperqa/internal/question"
	"paperqa/internal/retrieval"
)

// Stage identifies one step of the answering pipeline.
type Stage string

const (
	StageParse    Stage = "parse"
	StageAnalyze  Stage = "analyze"
	StageRetrieve Stage = "retrieve"
	StageFilter   Stage = "filter"
	StageGenerate Stage = "generate"
	StageDone     Stage = "done"
)

// DocumentParser is the parse stage's collaborator: it turns a base64 PDF
// payload into structured document info, and carries a cheaper no-model
// fallback for when structuring times out.
type DocumentParser interface {
	Parse(ctx context.Context, pdfContent string, lang domain.Language) (domain.DocumentInfo, error)
	FallbackExtract(pdfContent string) (domain.DocumentInfo, error)
}

// Config holds the stage deadlines, retrieval knobs and streaming grain of
// the controller. Zero values fall back to the service defaults.
type Config struct {
	ParseTimeout    time.Duration
	AnalyzeTimeout  time.Duration
	RetrieveTimeout time.Duration
	FilterTimeout   time.Duration
	GenerateTimeout time.Duration

	// HeartbeatInterval is the keep-alive cadence for every stage.
	HeartbeatInterval time.Duration

	// RequestTimeout bounds the whole pipeline; when it fires the current
	// stage dies with the request context.
	RequestTimeout time.Duration

	// PollInterval is passed through to the stage runner; tests shrink it.
	PollInterval time.Duration

	ChunkSize    int
	ChunkOverlap int
	TopK         int

	// StreamChunkRunes is how many runes each Content event carries.
	StreamChunkRunes int
}

func (c *Config) applyDefaults() {
	if c.ParseTimeout <= 0 {
		c.ParseTimeout = 240 * time.Second
	}
	if c.AnalyzeTimeout <= 0 {
		c.AnalyzeTimeout = 60 * time.Second
	}
	if c.RetrieveTimeout <= 0 {
		c.RetrieveTimeout = 90 * time.Second
	}
	if c.FilterTimeout <= 0 {
		c.FilterTimeout = 120 * time.Second
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 300 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 20 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Minute
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.StreamChunkRunes <= 0 {
		c.StreamChunkRunes = 1
	}
}

// Controller drives one request through parse → analyze → retrieve → filter
// → generate, translating stage outcomes into a stream of events that always
// ends with Done. The embedder may be nil: retrieval then degrades to
// unranked fixed-size chunks instead of failing the request.
type Controller struct {
	gen      domain.TextGenerator
	embedder domain.Embedder
	parser   DocumentParser
	cfg      Config
	log      *slog.Logger
}

// NewController assembles a controller from its collaborators.
func NewController(gen domain.TextGenerator, embedder domain.Embedder, parser DocumentParser, cfg Config, log *slog.Logger) *Controller {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Controller{gen: gen, embedder: embedder, parser: parser, cfg: cfg, log: log}
}

// eventBuffer absorbs bursts of rune-sized content events so stages are not
// lockstepped with the transport.
const eventBuffer = 64

// Answer runs the full pipeline for one request and returns its event
// stream. The channel closes after the terminal Done event; the caller must
// drain it. Cancelling ctx (client disconnect) stops the pipeline.
func (c *Controller) Answer(ctx context.Context, query, pdfContent string) <-chan StreamEvent {
	events := make(chan StreamEvent, eventBuffer)
	go c.run(ctx, query, pdfContent, events)
	return events
}

// requestState is the per-request pipeline state, owned by exactly one
// request goroutine and discarded when the stream closes.
type requestState struct {
	id       string
	language domain.Language
	doc      domain.DocumentInfo
	question domain.QuestionInfo
	spans    []domain.ScoredSpan
	answer   string
	stage    Stage
}

func (c *Controller) run(ctx context.Context, query, pdfContent string, events chan<- StreamEvent) {
	defer close(events)

	start := time.Now()
	state := &requestState{id: requestID(ctx), language: prompt.DetectLanguage(query)}
	cat := messages.ForLanguage(state.language)
	em := &emitter{ctx: ctx, ch: events, chunk: c.cfg.StreamChunkRunes}
	log := c.log.With("request_id", state.id)

	// Done is the very last event in every terminal case, panics included;
	// errors are appended to whatever progress text already went out, never
	// rolled back.
	defer em.done()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline panicked", "stage", state.stage, "panic", rec)
			em.text(cat.GeneralFailure(fmt.Sprint(rec)))
		}
	}()

	if c.gen == nil {
		em.text(cat.LLMInitFailure("no text generation client configured"))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	// expired reports the request-wide deadline and emits its message; the
	// stage's own message is suppressed in that case.
	expired := func() bool {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			em.text(cat.RequestTimeout(time.Since(start)))
			return true
		}
		return false
	}

	log.Info("request started", "language", state.language, "query_runes", utf8.RuneCountInString(query))

	// Parse.
	state.stage = StageParse
	parseStart := time.Now()
	parsed := runStage(reqCtx, em, func(ctx context.Context) (domain.DocumentInfo, error) {
		return c.parser.Parse(ctx, pdfContent, state.language)
	}, c.stageOptions(c.cfg.ParseTimeout))
	logStage(log, StageParse, parseStart, parsed)

	switch {
	case parsed.IsResult():
		state.doc = parsed.Value()
		em.text(cat.ParseCompleted())
	case parsed.IsTimedOut():
		// The one recoverable timeout: extract basic fields without the
		// model and keep going.
		em.text(cat.ParseTimedOut())
		doc, err := c.parser.FallbackExtract(pdfContent)
		if err != nil {
			log.Warn("fallback extraction failed", "err", err)
			em.text(cat.ParseFailure(err.Error()))
			return
		}
		state.doc = doc
		em.text(cat.FallbackCompleted())
	default:
		if expired() {
			return
		}
		em.text(cat.ParseFailure(failureReason(cat, parsed)))
		return
	}

	// Analyze.
	state.stage = StageAnalyze
	analyzer := question.NewAnalyzer(c.gen, state.language)
	analyzeStart := time.Now()
	analyzed := runStage(reqCtx, em, func(ctx context.Context) (domain.QuestionInfo, error) {
		return analyzer.Analyze(ctx, query)
	}, c.stageOptions(c.cfg.AnalyzeTimeout))
	logStage(log, StageAnalyze, analyzeStart, analyzed)

	if !analyzed.IsResult() {
		if expired() {
			return
		}
		em.text(cat.AnalyzeFailure(failureReason(cat, analyzed)))
		return
	}
	state.question = analyzed.Value()
	em.text(cat.AnalyzeCompleted())
	log.Debug("question analyzed", "type", state.question.QuestionType, "keywords", len(state.question.Keywords))

	// Retrieve. The header goes out before the stage runs.
	state.stage = StageRetrieve
	em.text(cat.RetrieveHeader())
	contextText := state.doc.ContextText()
	if c.embedder == nil {
		// Degraded non-error path: fixed windows, no ranking; the work is
		// local and instant, so no runner.
		spans := chunker.Fixed(contextText, c.cfg.ChunkSize)
		state.spans = retrieval.Unscored(spans, c.cfg.TopK)
		log.Info("retrieval degraded to fixed chunks", "spans", len(state.spans))
	} else {
		retriever := retrieval.New(c.embedder, log)
		boundary := chunker.NewBoundaryChunker(c.cfg.ChunkSize, c.cfg.ChunkOverlap)
		retrieveStart := time.Now()
		retrieved := runStage(reqCtx, em, func(ctx context.Context) ([]domain.ScoredSpan, error) {
			return retriever.Retrieve(ctx, query, boundary.Chunk(contextText), c.cfg.TopK), nil
		}, c.stageOptions(c.cfg.RetrieveTimeout))
		logStage(log, StageRetrieve, retrieveStart, retrieved)

		switch {
		case retrieved.IsResult():
			state.spans = retrieved.Value()
		default:
			if expired() {
				return
			}
			// Retrieval breakdowns are absorbed: report them and continue
			// with no evidence passages.
			em.text(cat.RetrievalFailure(failureReason(cat, retrieved)))
			state.spans = nil
		}
	}

	passages := make([]string, len(state.spans))
	for i, s := range state.spans {
		passages[i] = s.Text
	}

	// Filter.
	state.stage = StageFilter
	em.text(cat.FilterHeader())
	generator := answer.NewGenerator(c.gen, state.language, log)
	filterStart := time.Now()
	filtered := runStage(reqCtx, em, func(ctx context.Context) ([]string, error) {
		return generator.FilterEvidence(ctx, query, passages), nil
	}, c.stageOptions(c.cfg.FilterTimeout))
	logStage(log, StageFilter, filterStart, filtered)

	if !filtered.IsResult() {
		if expired() {
			return
		}
		em.text(cat.FilterFailure(failureReason(cat, filtered)))
		return
	}

	// Generate.
	state.stage = StageGenerate
	em.text(cat.GenerateHeader())
	em.text(cat.AnswerTitle())
	generateStart := time.Now()
	generated := runStage(reqCtx, em, func(ctx context.Context) (string, error) {
		return generator.GenerateAnswer(ctx, query, state.doc, filtered.Value())
	}, c.stageOptions(c.cfg.GenerateTimeout))
	logStage(log, StageGenerate, generateStart, generated)

	if !generated.IsResult() {
		if expired() {
			return
		}
		em.text(cat.AnswerFailure(failureReason(cat, generated)))
		return
	}
	state.answer = generated.Value()
	if strings.TrimSpace(state.answer) == "" {
		em.text(cat.AnswerEmpty())
		return
	}
	em.text(state.answer)

	state.stage = StageDone
	log.Info("request finished", "duration", time.Since(start), "answer_runes", utf8.RuneCountInString(state.answer))
}

func (c *Controller) stageOptions(timeout time.Duration) RunOptions {
	return RunOptions{
		HeartbeatInterval: c.cfg.HeartbeatInterval,
		Timeout:           timeout,
		PollInterval:      c.cfg.PollInterval,
	}
}

// runStage executes work under the stage runner, forwarding each heartbeat
// as a keep-alive event, and returns the terminal outcome.
func runStage[T any](ctx context.Context, em *emitter, work func(context.Context) (T, error), opts RunOptions) Outcome[T] {
	terminal := FailedOf[T](errors.New("stage ended without an outcome"))
	for o := range Run(ctx, work, opts) {
		if o.IsHeartbeat() {
			em.heartbeat()
			continue
		}
		terminal = o
	}
	return terminal
}

func logStage[T any](log *slog.Logger, stage Stage, started time.Time, o Outcome[T]) {
	log.Info("stage finished", "stage", stage, "outcome", o.Kind(), "duration", time.Since(started))
}

// failureReason renders a terminal non-result outcome as display text.
func failureReason[T any](cat messages.Catalog, o Outcome[T]) string {
	if o.IsTimedOut() {
		return cat.StageTimeout(o.Elapsed())
	}
	if err := o.Err(); err != nil {
		return err.Error()
	}
	return "unknown failure"
}

// emitter delivers events to the consumer, splitting text into fixed-size
// rune groups so the client sees the same char-level streaming in every
// message. Delivery is abandoned only when the request context has died and
// no consumer drains the channel anymore.
type emitter struct {
	ctx   context.Context
	ch    chan<- StreamEvent
	chunk int
}

func (e *emitter) send(ev StreamEvent) {
	select {
	case e.ch <- ev:
		return
	default:
	}
	select {
	case e.ch <- ev:
	case <-e.ctx.Done():
	}
}

func (e *emitter) heartbeat() { e.send(Content{Text: " "}) }

func (e *emitter) text(s string) {
	runes := []rune(s)
	for i := 0; i < len(runes); i += e.chunk {
		end := min(i+e.chunk, len(runes))
		e.send(Content{Text: string(runes[i:end])})
	}
}

func (e *emitter) done() { e.send(Done{}) }

type requestIDKey struct{}

// WithRequestID attaches the transport's request identifier so pipeline logs
// line up with the response headers.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
