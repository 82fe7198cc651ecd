package lockmanager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/dbconfig"
)

// fakeTxn is a minimal Txn implementation for exercising the lock manager
// without pulling in package txn (which itself depends on lockmanager).
type fakeTxn struct {
	mu sync.Mutex

	id         uint64
	isolation  dbconfig.IsolationLevel
	state      TxnState
	tableLocks map[TableID]LockMode
	rowLocks   map[TableID]map[RID]LockMode
}

func newFakeTxn(id uint64, isolation dbconfig.IsolationLevel) *fakeTxn {
	return &fakeTxn{
		id:         id,
		isolation:  isolation,
		state:      Growing,
		tableLocks: make(map[TableID]LockMode),
		rowLocks:   make(map[TableID]map[RID]LockMode),
	}
}

func (f *fakeTxn) ID() uint64                             { return f.id }
func (f *fakeTxn) IsolationLevel() dbconfig.IsolationLevel { return f.isolation }
func (f *fakeTxn) LockTxn()                                { f.mu.Lock() }
func (f *fakeTxn) UnlockTxn()                              { f.mu.Unlock() }

func (f *fakeTxn) GetState() TxnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTxn) SetState(s TxnState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeTxn) GrantTableLock(mode LockMode, oid TableID) {
	f.mu.Lock()
	f.tableLocks[oid] = mode
	f.mu.Unlock()
}

func (f *fakeTxn) RevokeTableLock(mode LockMode, oid TableID) {
	f.mu.Lock()
	if f.tableLocks[oid] == mode {
		delete(f.tableLocks, oid)
	}
	f.mu.Unlock()
}

func (f *fakeTxn) GrantRowLock(mode LockMode, oid TableID, rid RID) {
	f.mu.Lock()
	if f.rowLocks[oid] == nil {
		f.rowLocks[oid] = make(map[RID]LockMode)
	}
	f.rowLocks[oid][rid] = mode
	f.mu.Unlock()
}

func (f *fakeTxn) RevokeRowLock(mode LockMode, oid TableID, rid RID) {
	f.mu.Lock()
	if set := f.rowLocks[oid]; set != nil && set[rid] == mode {
		delete(set, rid)
	}
	f.mu.Unlock()
}

func (f *fakeTxn) HasTableLock(oid TableID, modes ...LockMode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	held, ok := f.tableLocks[oid]
	if !ok {
		return false
	}
	for _, m := range modes {
		if held == m {
			return true
		}
	}
	return false
}

func (f *fakeTxn) HasAnyRowLock(oid TableID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rowLocks[oid]) > 0
}

func testConfig() dbconfig.Config {
	return dbconfig.New(dbconfig.WithDeadlockDetectionInterval(10 * time.Millisecond))
}

func TestLockTableGrantsCompatibleLocksConcurrently(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	t2 := newFakeTxn(2, dbconfig.RepeatableRead)

	require.NoError(t, m.LockTable(t1, Shared, "t"))
	require.NoError(t, m.LockTable(t2, Shared, "t"))
	assert.True(t, t1.HasTableLock("t", Shared))
	assert.True(t, t2.HasTableLock("t", Shared))
}

func TestLockTableRepeatRequestIsANoOp(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, Shared, "t"))
	require.NoError(t, m.LockTable(t1, Shared, "t"))
	assert.True(t, t1.HasTableLock("t", Shared))
}

func TestLockTableUpgradeSucceeds(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, Shared, "t"))
	require.NoError(t, m.LockTable(t1, Exclusive, "t"))
	assert.True(t, t1.HasTableLock("t", Exclusive))
	assert.False(t, t1.HasTableLock("t", Shared))
}

func TestLockTableIncompatibleUpgradeAborts(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, IntentionExclusive, "t"))
	err := m.LockTable(t1, Shared, "t")
	assert.Error(t, err, "IX -> S is not a permitted upgrade")
	assert.Equal(t, Aborted, t1.GetState())
}

func TestLockTableBlocksOnIncompatibleGrantedLock(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	t2 := newFakeTxn(2, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, Exclusive, "t"))

	done := make(chan error, 1)
	go func() { done <- m.LockTable(t2, Shared, "t") }()

	select {
	case <-done:
		t.Fatal("t2 should block behind t1's exclusive lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.UnlockTable(t1, "t", false))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("t2 never got granted after t1 released")
	}
}

func TestUnlockTableFailsIfRowLocksSurvive(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, IntentionExclusive, "t"))
	require.NoError(t, m.LockRow(t1, Exclusive, "t", RID{PageID: 1, SlotNum: 0}))

	err := m.UnlockTable(t1, "t", false)
	assert.Error(t, err)

	require.NoError(t, m.UnlockRow(t1, "t", RID{PageID: 1, SlotNum: 0}, false))
	require.NoError(t, m.UnlockTable(t1, "t", false))
}

func TestUnlockTableForceIgnoresSurvivingRowLocks(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, IntentionExclusive, "t"))
	require.NoError(t, m.LockRow(t1, Exclusive, "t", RID{PageID: 1, SlotNum: 0}))
	assert.NoError(t, m.UnlockTable(t1, "t", true))
}

func TestUnlockTableWithoutHoldingErrors(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	assert.Error(t, m.UnlockTable(t1, "t", false))
}

func TestRowLockRejectsIntentionModes(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, IntentionExclusive, "t"))
	err := m.LockRow(t1, IntentionShared, "t", RID{PageID: 1})
	assert.Error(t, err)
	assert.Equal(t, Aborted, t1.GetState())
}

func TestExclusiveRowLockRequiresTableIntentionLock(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	err := m.LockRow(t1, Exclusive, "t", RID{PageID: 1})
	assert.Error(t, err, "no table lock held at all")

	t2 := newFakeTxn(2, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t2, IntentionExclusive, "t"))
	require.NoError(t, m.LockRow(t2, Exclusive, "t", RID{PageID: 2}))
}

func TestSharedRowLockRequiresAnyTableLock(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, IntentionShared, "t"))
	require.NoError(t, m.LockRow(t1, Shared, "t", RID{PageID: 1}))
}

func TestReadUncommittedRejectsSharedLocks(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.ReadUncommitted)
	err := m.LockTable(t1, Shared, "t")
	assert.Error(t, err)
	assert.Equal(t, Aborted, t1.GetState())
}

func TestReadUncommittedAllowsExclusive(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.ReadUncommitted)
	assert.NoError(t, m.LockTable(t1, Exclusive, "t"))
}

func TestRepeatableReadRejectsAnyLockAfterShrinking(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	require.NoError(t, m.LockTable(t1, Shared, "t1"))
	require.NoError(t, m.UnlockTable(t1, "t1", false))
	assert.Equal(t, Shrinking, t1.GetState())

	err := m.LockTable(t1, Shared, "t2")
	assert.Error(t, err, "repeatable-read forbids acquiring any new lock once shrinking")
}

func TestReadCommittedAllowsSharedLockWhileShrinking(t *testing.T) {
	m := New(testConfig())
	t1 := newFakeTxn(1, dbconfig.ReadCommitted)
	require.NoError(t, m.LockTable(t1, Exclusive, "t1"))
	require.NoError(t, m.UnlockTable(t1, "t1", false))
	assert.Equal(t, Shrinking, t1.GetState())

	assert.NoError(t, m.LockTable(t1, Shared, "t2"), "read-committed allows S/IS while shrinking")
	err := m.LockTable(t1, Exclusive, "t3")
	assert.Error(t, err, "read-committed still forbids X while shrinking")
}

// A cycle at interval start yields at least one abort before interval end:
// t1 holds "a" and waits on "b", t2 holds "b" and waits on "a". The
// detector aborts one waiter to break the cycle; releasing the aborted
// transaction's already-granted lock (the transaction manager's job in
// production, done by hand here) then lets the survivor proceed.
func TestDeadlockDetectorAbortsYoungestInCycle(t *testing.T) {
	m := New(dbconfig.New(dbconfig.WithDeadlockDetectionInterval(5 * time.Millisecond)))
	m.StartDeadlockDetection()
	defer m.StopDeadlockDetection()

	t1 := newFakeTxn(1, dbconfig.RepeatableRead)
	t2 := newFakeTxn(2, dbconfig.RepeatableRead)

	require.NoError(t, m.LockTable(t1, Exclusive, "a"))
	require.NoError(t, m.LockTable(t2, Exclusive, "b"))

	errCh1 := make(chan error, 1)
	errCh2 := make(chan error, 1)
	go func() { errCh1 <- m.LockTable(t1, Exclusive, "b") }()
	go func() { errCh2 <- m.LockTable(t2, Exclusive, "a") }()

	// Wait for the detector to abort one side's wait; the survivor stays
	// blocked until the loser's already-granted lock is released below.
	deadline := time.After(2 * time.Second)
	var loserAborted uint64
	for loserAborted == 0 {
		select {
		case <-deadline:
			t.Fatal("no transaction was aborted before the deadline")
		case <-time.After(5 * time.Millisecond):
		}
		if t1.GetState() == Aborted {
			loserAborted = 1
		} else if t2.GetState() == Aborted {
			loserAborted = 2
		}
	}
	assert.Equal(t, uint64(2), loserAborted, "the detector aborts the youngest id in the cycle")

	require.NoError(t, m.UnlockTable(t2, "b", true))

	select {
	case err := <-errCh1:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("t1 never got granted after t2's lock was released")
	}
	select {
	case err := <-errCh2:
		assert.Error(t, err, "t2's own wait was aborted")
	case <-time.After(2 * time.Second):
		t.Fatal("t2's aborted wait never returned")
	}
}
