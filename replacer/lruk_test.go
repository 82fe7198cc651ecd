package replacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario mirrors the classic LRU-K walkthrough: frames seen fewer than K
// times are always evicted before any frame that has reached K accesses,
// and among the below-K frames eviction is plain FIFO.
func TestLRUKEvictsBelowKFramesFirst(t *testing.T) {
	r := New(8, 2)

	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(3)
	r.RecordAccess(1) // frame 1 now has 2 accesses, reaches K

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)
	r.SetEvictable(3, true)

	// 2 and 3 have only one access each (below K); 1 has reached K and
	// moved to the cache list. History list evicts before cache list, and
	// within history FIFO order is oldest-first: 2 before 3.
	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), fid)

	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(3), fid)

	// Only frame 1 remains, now in the cache list.
	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), fid)

	_, ok = r.Evict()
	assert.False(t, ok, "nothing left to evict")
}

func TestLRUKCacheListOrdersByKthMostRecentAccess(t *testing.T) {
	r := New(8, 2)

	// Both frames reach K=2 accesses; frame 1's K-th access happens
	// before frame 2's, so frame 1 is the older cache entry and evicts
	// first.
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(1)
	r.RecordAccess(2)

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), fid)

	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), fid)
}

func TestLRUKNonEvictableFrameIsSkipped(t *testing.T) {
	r := New(8, 2)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.SetEvictable(1, false)
	r.SetEvictable(2, true)

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), fid, "frame 1 is pinned (non-evictable)")

	_, ok = r.Evict()
	assert.False(t, ok)
}

func TestLRUKSetEvictableIsIdempotent(t *testing.T) {
	r := New(4, 2)
	r.RecordAccess(1)
	r.SetEvictable(1, true)
	r.SetEvictable(1, true)
	assert.Equal(t, 1, r.Size())
	r.SetEvictable(1, false)
	r.SetEvictable(1, false)
	assert.Equal(t, 0, r.Size())
}

func TestLRUKRemoveRejectsNonEvictableFrame(t *testing.T) {
	r := New(4, 2)
	r.RecordAccess(1)
	err := r.Remove(1)
	assert.Error(t, err, "frame 1 is not evictable yet")

	r.SetEvictable(1, true)
	assert.NoError(t, r.Remove(1))
	assert.Equal(t, 0, r.Size())
}

func TestLRUKRemoveUntrackedFrameIsNoOp(t *testing.T) {
	r := New(4, 2)
	assert.NoError(t, r.Remove(99))
}

func TestLRUKSize(t *testing.T) {
	r := New(4, 2)
	r.RecordAccess(1)
	r.RecordAccess(2)
	assert.Equal(t, 0, r.Size())
	r.SetEvictable(1, true)
	assert.Equal(t, 1, r.Size())
	r.SetEvictable(2, true)
	assert.Equal(t, 2, r.Size())
}
