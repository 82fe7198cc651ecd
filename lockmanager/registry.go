package lockmanager

import "coredb/dbconfig"

// TableID names a lockable table; the catalog layer that would otherwise
// mint these is out of scope (spec.md's executor interface is minus SQL),
// so callers pass whatever stable string their table identifier is.
type TableID string

// RID identifies a row within a table, mirroring original_source's RID
// (page id + slot number) by way of the teacher's types.RowPointer.
type RID struct {
	PageID  int64
	SlotNum uint32
}

// TxnState is the 2PL phase plus the two terminal outcomes, spec.md §3's
// growing/shrinking/committed/aborted state machine. Lives here rather
// than in package txn so that lockmanager need not import it (txn imports
// lockmanager instead: one-directional, no cycle).
type TxnState int

const (
	Growing TxnState = iota
	Shrinking
	Committed
	Aborted
)

func (s TxnState) String() string {
	switch s {
	case Growing:
		return "growing"
	case Shrinking:
		return "shrinking"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Txn is the minimal view of a transaction the lock manager needs: its
// identity, isolation level and 2PL phase, a mutex over its own lock-set
// bookkeeping, and the lock-set mutations themselves. package txn's
// *Transaction implements this, the same minimal-interface trick the
// teacher's bufferpool uses (WALFlushedLSNGetter) to avoid a lockmanager
// <-> txn import cycle.
type Txn interface {
	ID() uint64
	IsolationLevel() dbconfig.IsolationLevel
	GetState() TxnState
	SetState(TxnState)
	LockTxn()
	UnlockTxn()

	GrantTableLock(mode LockMode, oid TableID)
	RevokeTableLock(mode LockMode, oid TableID)
	GrantRowLock(mode LockMode, oid TableID, rid RID)
	RevokeRowLock(mode LockMode, oid TableID, rid RID)

	// HasTableLock reports whether any of modes is currently held on oid.
	HasTableLock(oid TableID, modes ...LockMode) bool
	// HasAnyRowLock reports whether any row lock at all is held on oid,
	// the precondition UnlockTable's TableUnlockedBeforeUnlockingRows check needs.
	HasAnyRowLock(oid TableID) bool
}
