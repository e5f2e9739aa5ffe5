package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicyDoublesUpToCap(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Cap: 8 * time.Second}
	// jitter adds up to 25%, so check the floor of each step instead of
	// an exact value.
	assert.GreaterOrEqual(t, p.Delay(0), time.Second)
	assert.Less(t, p.Delay(0), 2*time.Second)

	assert.GreaterOrEqual(t, p.Delay(3), 8*time.Second)
	assert.LessOrEqual(t, p.Delay(3), 10*time.Second)

	assert.GreaterOrEqual(t, p.Delay(20), 8*time.Second)
	assert.LessOrEqual(t, p.Delay(20), 10*time.Second)
}

func TestStateStringCoversEveryState(t *testing.T) {
	states := []State{StateIdle, StateConnecting, StateBootstrapping, StateLive, StateRecovering, StateBackoff, StateStopped}
	for _, s := range states {
		assert.NotEqual(t, "unknown", s.String())
	}
}
