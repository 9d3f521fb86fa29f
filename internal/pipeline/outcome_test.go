package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeConstructors(t *testing.T) {
	hb := HeartbeatOf[int]()
	assert.True(t, hb.IsHeartbeat())
	assert.False(t, hb.IsTerminal())

	res := ResultOf(42)
	assert.True(t, res.IsResult())
	assert.True(t, res.IsTerminal())
	assert.Equal(t, 42, res.Value())

	cause := errors.New("boom")
	failed := FailedOf[int](cause)
	assert.True(t, failed.IsFailed())
	assert.True(t, failed.IsTerminal())
	assert.ErrorIs(t, failed.Err(), cause)

	to := TimedOutOf[int](3 * time.Second)
	assert.True(t, to.IsTimedOut())
	assert.True(t, to.IsTerminal())
	assert.Equal(t, 3*time.Second, to.Elapsed())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "heartbeat", KindHeartbeat.String())
	assert.Equal(t, "result", KindResult.String())
	assert.Equal(t, "failed", KindFailed.String())
	assert.Equal(t, "timed_out", KindTimedOut.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
