package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/dbconfig"
	"coredb/dberrors"
	"coredb/lockmanager"
)

func newTestManager() *Manager {
	locks := lockmanager.New(dbconfig.DefaultConfig())
	return NewManager(locks)
}

func TestBeginAssignsIncreasingIDs(t *testing.T) {
	m := newTestManager()
	t1 := m.Begin(dbconfig.RepeatableRead)
	t2 := m.Begin(dbconfig.RepeatableRead)
	assert.Less(t, t1.ID(), t2.ID())
	assert.Same(t, t1, m.Get(t1.ID()))
}

func TestCommitReleasesAllLocksAndRemovesFromActive(t *testing.T) {
	locks := lockmanager.New(dbconfig.DefaultConfig())
	m := NewManager(locks)

	tr := m.Begin(dbconfig.RepeatableRead)
	require.NoError(t, locks.LockTable(tr, lockmanager.IntentionExclusive, "t"))
	require.NoError(t, locks.LockRow(tr, lockmanager.Exclusive, "t", lockmanager.RID{PageID: 1}))

	require.NoError(t, m.Commit(tr))
	assert.Equal(t, lockmanager.Committed, tr.GetState())
	assert.Nil(t, m.Get(tr.ID()))

	// Every lock was released: a fresh transaction can take an exclusive
	// table lock without blocking.
	other := m.Begin(dbconfig.RepeatableRead)
	assert.NoError(t, locks.LockTable(other, lockmanager.Exclusive, "t"))
}

func TestAbortInvertsWriteLogBeforeReleasingLocks(t *testing.T) {
	locks := lockmanager.New(dbconfig.DefaultConfig())
	m := NewManager(locks)

	tr := m.Begin(dbconfig.RepeatableRead)
	require.NoError(t, locks.LockTable(tr, lockmanager.IntentionExclusive, "t"))
	require.NoError(t, locks.LockRow(tr, lockmanager.Exclusive, "t", lockmanager.RID{PageID: 1}))

	undone := false
	locksHeldDuringUndo := false
	tr.AppendTableWriteRecord("t", lockmanager.RID{PageID: 1}, WriteInsert, func() error {
		undone = true
		locksHeldDuringUndo = tr.HasTableLock("t", lockmanager.IntentionExclusive) && tr.HasAnyRowLock("t")
		return nil
	})

	require.NoError(t, m.Abort(tr))
	assert.True(t, undone, "abort must invert the logged write")
	assert.True(t, locksHeldDuringUndo, "locks are released only after the write log is inverted")
	assert.Equal(t, lockmanager.Aborted, tr.GetState())
	assert.Nil(t, m.Get(tr.ID()))

	other := m.Begin(dbconfig.RepeatableRead)
	assert.NoError(t, locks.LockTable(other, lockmanager.Exclusive, "t"))
}

func TestAbortSurfacesFirstUndoErrorButStillReleasesLocks(t *testing.T) {
	locks := lockmanager.New(dbconfig.DefaultConfig())
	m := NewManager(locks)

	tr := m.Begin(dbconfig.RepeatableRead)
	require.NoError(t, locks.LockTable(tr, lockmanager.Exclusive, "t"))

	boom := dberrors.ErrNotFound
	tr.AppendTableWriteRecord("t", lockmanager.RID{PageID: 1}, WriteInsert, func() error {
		return boom
	})

	err := m.Abort(tr)
	assert.ErrorIs(t, err, boom)

	other := m.Begin(dbconfig.RepeatableRead)
	assert.NoError(t, locks.LockTable(other, lockmanager.Exclusive, "t"), "lock still released despite the undo error")
}
