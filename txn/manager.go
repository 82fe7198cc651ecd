package txn

import (
	"sync"
	"sync/atomic"

	"coredb/dbconfig"
	"coredb/dblog"
	"coredb/lockmanager"
)

// Manager issues transaction ids, tracks active transactions, and wires
// Commit/Abort to the lock manager — the counterpart to the teacher's
// TxnManager, generalized from its commit/abort-only bookkeeping to also
// drive lock release and rollback.
type Manager struct {
	log    dblog.Logger
	locks  *lockmanager.Manager
	nextID uint64

	mu     sync.RWMutex
	active map[uint64]*Transaction
}

func NewManager(locks *lockmanager.Manager) *Manager {
	return &Manager{
		log:    dblog.Default(),
		locks:  locks,
		active: make(map[uint64]*Transaction),
	}
}

func (m *Manager) SetLogger(l dblog.Logger) { m.log = l }

// Begin allocates a new transaction id and registers it as active, growing.
func (m *Manager) Begin(isolation dbconfig.IsolationLevel) *Transaction {
	id := atomic.AddUint64(&m.nextID, 1)
	t := newTransaction(id, isolation)

	m.mu.Lock()
	m.active[id] = t
	m.mu.Unlock()

	m.log.WithFields(dblog.Fields{"txn_id": id, "isolation": isolation.String()}).Debugf("txn begin")
	return t
}

// Get returns the active transaction for id, or nil.
func (m *Manager) Get(id uint64) *Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[id]
}

// Commit releases every lock t holds and marks it committed (spec.md §4.5
// "Commit: release all locks; state = committed").
func (m *Manager) Commit(t *Transaction) error {
	for _, pair := range t.heldRows() {
		if err := m.locks.UnlockRow(t, pair.Table, pair.RID, true); err != nil {
			return err
		}
	}
	for _, oid := range t.heldTables() {
		if err := m.locks.UnlockTable(t, oid, true); err != nil {
			return err
		}
	}
	t.SetState(lockmanager.Committed)

	m.mu.Lock()
	delete(m.active, t.id)
	m.mu.Unlock()

	m.log.WithFields(dblog.Fields{"txn_id": t.id}).Debugf("txn commit")
	return nil
}

// Abort walks t's write log in reverse, inverting each effect, then
// force-releases every held lock and marks t aborted (spec.md §4.5
// "Abort").
func (m *Manager) Abort(t *Transaction) error {
	t.mu.Lock()
	log := t.writeLog
	t.writeLog = nil
	t.mu.Unlock()

	var firstErr error
	for i := len(log) - 1; i >= 0; i-- {
		if err := log[i].invert(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, pair := range t.heldRows() {
		if err := m.locks.UnlockRow(t, pair.Table, pair.RID, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, oid := range t.heldTables() {
		if err := m.locks.UnlockTable(t, oid, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.SetState(lockmanager.Aborted)

	m.mu.Lock()
	delete(m.active, t.id)
	m.mu.Unlock()

	m.log.WithFields(dblog.Fields{"txn_id": t.id}).Warnf("txn abort")
	return firstErr
}
