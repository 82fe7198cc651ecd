// Package txn implements the transaction side of spec.md §4.5: per-txn 2PL
// state, table/row lock-set bookkeeping (the lockmanager.Txn interface),
// and rollback via a reverse-ordered write log.
//
// Grounded on the teacher's storage_engine/transaction_manager (Begin/
// Commit/Abort shape, atomic id counter, active-txn map, and the
// record-then-replay-on-rollback pattern of rollback_helpers.go), and on
// original_source/src/concurrency/transaction_manager.cpp's Abort (reverse
// walk of the write log, inverting each effect, then force-releasing
// every held lock).
package txn

import (
	"sync"

	"coredb/dbconfig"
	"coredb/lockmanager"
)

// WriteKind distinguishes an insert from a delete in a rollback record.
// Abort does not read it: it runs each record's undo callback, and the
// caller that logged the write supplies the inverse there (e.g. a
// mark-deleted for an insert, a clear-deleted for a delete).
type WriteKind int

const (
	WriteInsert WriteKind = iota
	WriteDelete
)

// writeRecord is one entry in a transaction's rollback log: either a
// table-heap write or an index write, both reduced to "how do I undo this".
// Kept as a single polymorphic log (rather than the spec's two separate
// table-write/index-write lists) so Abort's reverse walk is a single pass
// in true chronological order instead of two passes whose relative order
// would otherwise be unspecified.
type writeRecord interface {
	invert() error
}

// TableWriteRecord is an undo entry for a heap-file row write.
type TableWriteRecord struct {
	Table lockmanager.TableID
	RID   lockmanager.RID
	Kind  WriteKind
	undo  func() error
}

func (r *TableWriteRecord) invert() error { return r.undo() }

// IndexWriteRecord is an undo entry for a B+-tree index write.
type IndexWriteRecord struct {
	Index string
	Key   []byte
	Kind  WriteKind
	undo  func() error
}

func (r *IndexWriteRecord) invert() error { return r.undo() }

// Transaction is the lockmanager.Txn implementation: 2PL phase, isolation
// level, and the lock sets the lock manager mutates directly.
type Transaction struct {
	id        uint64
	isolation dbconfig.IsolationLevel

	mu    sync.Mutex // guards state, the two lock-set maps, and writeLog below
	state lockmanager.TxnState

	tableLocks map[lockmanager.TableID]lockmanager.LockMode
	rowLocks   map[lockmanager.TableID]map[lockmanager.RID]lockmanager.LockMode

	writeLog []writeRecord
}

func newTransaction(id uint64, isolation dbconfig.IsolationLevel) *Transaction {
	return &Transaction{
		id:         id,
		isolation:  isolation,
		state:      lockmanager.Growing,
		tableLocks: make(map[lockmanager.TableID]lockmanager.LockMode),
		rowLocks:   make(map[lockmanager.TableID]map[lockmanager.RID]lockmanager.LockMode),
	}
}

func (t *Transaction) ID() uint64                               { return t.id }
func (t *Transaction) IsolationLevel() dbconfig.IsolationLevel   { return t.isolation }
func (t *Transaction) LockTxn()                                 { t.mu.Lock() }
func (t *Transaction) UnlockTxn()                               { t.mu.Unlock() }

func (t *Transaction) GetState() lockmanager.TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s lockmanager.TxnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transaction) GrantTableLock(mode lockmanager.LockMode, oid lockmanager.TableID) {
	t.mu.Lock()
	t.tableLocks[oid] = mode
	t.mu.Unlock()
}

func (t *Transaction) RevokeTableLock(mode lockmanager.LockMode, oid lockmanager.TableID) {
	t.mu.Lock()
	if t.tableLocks[oid] == mode {
		delete(t.tableLocks, oid)
	}
	t.mu.Unlock()
}

func (t *Transaction) GrantRowLock(mode lockmanager.LockMode, oid lockmanager.TableID, rid lockmanager.RID) {
	t.mu.Lock()
	if t.rowLocks[oid] == nil {
		t.rowLocks[oid] = make(map[lockmanager.RID]lockmanager.LockMode)
	}
	t.rowLocks[oid][rid] = mode
	t.mu.Unlock()
}

func (t *Transaction) RevokeRowLock(mode lockmanager.LockMode, oid lockmanager.TableID, rid lockmanager.RID) {
	t.mu.Lock()
	if set := t.rowLocks[oid]; set != nil && set[rid] == mode {
		delete(set, rid)
	}
	t.mu.Unlock()
}

func (t *Transaction) HasTableLock(oid lockmanager.TableID, modes ...lockmanager.LockMode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	held, ok := t.tableLocks[oid]
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

func (t *Transaction) HasAnyRowLock(oid lockmanager.TableID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rowLocks[oid]) > 0
}

// AppendTableWriteRecord logs a heap-file write for rollback. undo is
// invoked, in reverse order relative to every other logged write, if the
// transaction aborts.
func (t *Transaction) AppendTableWriteRecord(table lockmanager.TableID, rid lockmanager.RID, kind WriteKind, undo func() error) {
	t.mu.Lock()
	t.writeLog = append(t.writeLog, &TableWriteRecord{Table: table, RID: rid, Kind: kind, undo: undo})
	t.mu.Unlock()
}

// AppendIndexWriteRecord logs an index write for rollback.
func (t *Transaction) AppendIndexWriteRecord(index string, key []byte, kind WriteKind, undo func() error) {
	t.mu.Lock()
	t.writeLog = append(t.writeLog, &IndexWriteRecord{Index: index, Key: key, Kind: kind, undo: undo})
	t.mu.Unlock()
}

// heldTables returns a snapshot of tables this transaction holds any table
// lock on, used by Abort/Commit to release everything.
func (t *Transaction) heldTables() []lockmanager.TableID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]lockmanager.TableID, 0, len(t.tableLocks))
	for oid := range t.tableLocks {
		out = append(out, oid)
	}
	return out
}

// heldRows returns a snapshot of (table, rid) pairs this transaction holds
// a row lock on.
func (t *Transaction) heldRows() []struct {
	Table lockmanager.TableID
	RID   lockmanager.RID
} {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []struct {
		Table lockmanager.TableID
		RID   lockmanager.RID
	}
	for oid, set := range t.rowLocks {
		for rid := range set {
			out = append(out, struct {
				Table lockmanager.TableID
				RID   lockmanager.RID
			}{oid, rid})
		}
	}
	return out
}
