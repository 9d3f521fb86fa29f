// Package pipeline orchestrates the five-stage answering pipeline: it runs
// each stage as a cancellable background unit with heartbeats and a hard
// deadline, and turns the stage outcomes into one outgoing event stream.
package pipeline

import "time"

// Kind discriminates the variants of an Outcome.
type Kind int

const (
	KindHeartbeat Kind = iota
	KindResult
	KindFailed
	KindTimedOut
)

// String returns the kind name used in stage logs.
func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindResult:
		return "result"
	case KindFailed:
		return "failed"
	case KindTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Outcome is one value of a stage's event sequence: any number of heartbeats
// followed by exactly one terminal Result, Failed or TimedOut. Nothing is
// ever emitted after a terminal outcome.
type Outcome[T any] struct {
	kind    Kind
	value   T
	err     error
	elapsed time.Duration
}

// HeartbeatOf is the keep-alive outcome emitted while work is still pending.
func HeartbeatOf[T any]() Outcome[T] {
	return Outcome[T]{kind: KindHeartbeat}
}

// ResultOf wraps a completed work unit's value.
func ResultOf[T any](v T) Outcome[T] {
	return Outcome[T]{kind: KindResult, value: v}
}

// FailedOf wraps a work unit's error, including recovered panics.
func FailedOf[T any](err error) Outcome[T] {
	return Outcome[T]{kind: KindFailed, err: err}
}

// TimedOutOf records that the work unit exceeded its deadline after running
// for elapsed time; cancellation has already been requested when it is
// emitted.
func TimedOutOf[T any](elapsed time.Duration) Outcome[T] {
	return Outcome[T]{kind: KindTimedOut, elapsed: elapsed}
}

// Kind returns the variant tag.
func (o Outcome[T]) Kind() Kind { return o.kind }

// Value returns the work result; meaningful only when IsResult reports true.
func (o Outcome[T]) Value() T { return o.value }

// Err returns the failure cause; meaningful only when IsFailed reports true.
func (o Outcome[T]) Err() error { return o.err }

// Elapsed returns how long the work ran before its deadline fired;
// meaningful only when IsTimedOut reports true.
func (o Outcome[T]) Elapsed() time.Duration { return o.elapsed }

func (o Outcome[T]) IsHeartbeat() bool { return o.kind == KindHeartbeat }
func (o Outcome[T]) IsResult() bool    { return o.kind == KindResult }
func (o Outcome[T]) IsFailed() bool    { return o.kind == KindFailed }
func (o Outcome[T]) IsTimedOut() bool  { return o.kind == KindTimedOut }

// IsTerminal reports whether this outcome ends the stage's sequence.
func (o Outcome[T]) IsTerminal() bool { return o.kind != KindHeartbeat }
