package pipeline

import (
	"context"
	"fmt"
	"time"
)

// RunOptions controls one stage execution. Heartbeat cadence and the hard
// deadline are independent; keeping the interval below the timeout is the
// caller's job.
type RunOptions struct {
	// HeartbeatInterval is the minimum gap between keep-alive emissions
	// while the work is pending.
	HeartbeatInterval time.Duration

	// Timeout is the hard deadline measured from launch. Zero or negative
	// means no deadline.
	Timeout time.Duration

	// PollInterval is how often the runner checks on the work. It defaults
	// to one second; tests shrink it.
	PollInterval time.Duration
}

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultPollInterval      = time.Second
)

type workResult[T any] struct {
	value T
	err   error
}

// Run launches work in its own goroutine and returns a channel carrying the
// stage's outcome sequence: zero or more heartbeats, then exactly one
// terminal outcome, then close.
//
// The work function receives a context that is cancelled when the deadline
// fires or the parent context ends. Cancellation is cooperative: the runner
// emits TimedOut without waiting for the work to actually stop, so a work
// unit that ignores its context may keep running (and holding resources)
// after the caller has already seen the timeout. The result channel is
// buffered, so such a unit still cannot leak its goroutine.
func Run[T any](ctx context.Context, work func(context.Context) (T, error), opts RunOptions) <-chan Outcome[T] {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	out := make(chan Outcome[T], 1)
	workCtx, cancel := context.WithCancel(ctx)

	done := make(chan workResult[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- workResult[T]{err: fmt.Errorf("stage work panicked: %v", rec)}
			}
		}()
		v, err := work(workCtx)
		done <- workResult[T]{value: v, err: err}
	}()

	go func() {
		defer close(out)
		defer cancel()

		start := time.Now()
		lastBeat := start
		ticker := time.NewTicker(opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case r := <-done:
				out <- terminalOf(r)
				return
			case <-ctx.Done():
				out <- FailedOf[T](ctx.Err())
				return
			case <-ticker.C:
				// A completion that raced the tick wins over a heartbeat.
				select {
				case r := <-done:
					out <- terminalOf(r)
					return
				default:
				}
				now := time.Now()
				if now.Sub(lastBeat) >= opts.HeartbeatInterval {
					out <- HeartbeatOf[T]()
					lastBeat = now
				}
				if elapsed := now.Sub(start); opts.Timeout > 0 && elapsed > opts.Timeout {
					cancel()
					out <- TimedOutOf[T](elapsed)
					return
				}
			}
		}
	}()

	return out
}

func terminalOf[T any](r workResult[T]) Outcome[T] {
	if r.err != nil {
		return FailedOf[T](r.err)
	}
	return ResultOf(r.value)
}
