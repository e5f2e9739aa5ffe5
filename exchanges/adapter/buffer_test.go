package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingBufferSortsSequencedUpdatesFirst(t *testing.T) {
	var buf pendingBuffer
	buf.add(Update{HasSequence: true, Sequence: 5})
	buf.add(Update{HasSequence: false})
	buf.add(Update{HasSequence: true, Sequence: 2})
	buf.add(Update{HasSequence: true, Sequence: 3})

	sorted := buf.sorted()
	assert.EqualValues(t, 2, sorted[0].Sequence)
	assert.EqualValues(t, 3, sorted[1].Sequence)
	assert.EqualValues(t, 5, sorted[2].Sequence)
	assert.False(t, sorted[3].HasSequence)
}

func TestPendingBufferResetClears(t *testing.T) {
	var buf pendingBuffer
	buf.add(Update{Sequence: 1})
	buf.reset()
	assert.Equal(t, 0, buf.len())
}
