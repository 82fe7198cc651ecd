package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageResetClearsDataAndDirtyButNotPinCount(t *testing.T) {
	p := New(ID(3), 8)
	copy(p.Data, []byte("abcdefgh"))
	p.SetDirty(true)
	p.PinCount = 2

	p.Reset(ID(7))

	assert.Equal(t, ID(7), p.ID)
	assert.False(t, p.IsDirty())
	assert.Equal(t, int32(2), p.PinCount, "Reset leaves pin-count bookkeeping to the caller")
	for _, b := range p.Data {
		assert.Equal(t, byte(0), b)
	}
}

func TestPageUnpinReachesZeroAndRejectsOverUnpin(t *testing.T) {
	p := New(ID(1), 4)
	p.Pin()
	p.Pin()

	reachedZero, ok := p.Unpin(false)
	require.True(t, ok)
	assert.False(t, reachedZero)

	reachedZero, ok = p.Unpin(true)
	require.True(t, ok)
	assert.True(t, reachedZero)
	assert.True(t, p.IsDirty())

	_, ok = p.Unpin(false)
	assert.False(t, ok, "unpinning a page with pin count 0 is rejected")
}

func TestPageDirtyIsOrAccumulated(t *testing.T) {
	p := New(ID(1), 4)
	p.Pin()
	p.Pin()
	p.Unpin(true)
	p.Unpin(false)
	assert.True(t, p.IsDirty(), "a dirty hint from any unpin sticks until explicitly cleared")
}
