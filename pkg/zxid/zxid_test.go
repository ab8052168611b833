package zxid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEpochCounterSplit(t *testing.T) {
	z := ZXID(int64(3)<<32 | int64(7))
	assert.Equal(t, int32(3), z.Epoch())
	assert.Equal(t, int32(7), z.Counter())
}

func TestTracker_ObserveMonotonic(t *testing.T) {
	var tr Tracker
	assert.True(t, tr.Observe(5))
	assert.Equal(t, int64(5), tr.Load())

	assert.False(t, tr.Observe(5))
	assert.False(t, tr.Observe(3))
	assert.Equal(t, int64(5), tr.Load())

	assert.True(t, tr.Observe(10))
	assert.Equal(t, int64(10), tr.Load())
}

func TestTracker_Reset(t *testing.T) {
	var tr Tracker
	tr.Observe(42)
	tr.Reset()
	assert.Equal(t, int64(0), tr.Load())
	assert.True(t, tr.Observe(1))
}
