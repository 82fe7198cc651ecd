package lockmanager

import (
	"sync"

	"coredb/dbconfig"
	"coredb/dberrors"
	"coredb/dblog"
)

type rowKey struct {
	table TableID
	rid   RID
}

// Manager is the lock manager: a global mutex over the table-lock map, a
// global mutex over the row-lock map, and — inside each queue — its own
// mutex/condvar (spec.md §4.5 "Concurrency primitives").
type Manager struct {
	log dblog.Logger

	tableMu  sync.Mutex
	tableMap map[TableID]*LockRequestQueue

	rowMu  sync.Mutex
	rowMap map[rowKey]*LockRequestQueue

	detector *detector
}

func New(cfg dbconfig.Config) *Manager {
	m := &Manager{
		log:      dblog.Default(),
		tableMap: make(map[TableID]*LockRequestQueue),
		rowMap:   make(map[rowKey]*LockRequestQueue),
	}
	m.detector = newDetector(m, cfg.DeadlockDetectionInterval)
	return m
}

func (m *Manager) SetLogger(l dblog.Logger) { m.log = l }

// StartDeadlockDetection launches the background cycle-detection loop;
// callers defer StopDeadlockDetection.
func (m *Manager) StartDeadlockDetection() { m.detector.start() }
func (m *Manager) StopDeadlockDetection()  { m.detector.stop() }

func (m *Manager) tableQueue(oid TableID) *LockRequestQueue {
	m.tableMu.Lock()
	q, ok := m.tableMap[oid]
	if !ok {
		q = newLockRequestQueue()
		m.tableMap[oid] = q
	}
	m.tableMu.Unlock()
	return q
}

func (m *Manager) rowQueue(oid TableID, rid RID) *LockRequestQueue {
	key := rowKey{oid, rid}
	m.rowMu.Lock()
	q, ok := m.rowMap[key]
	if !ok {
		q = newLockRequestQueue()
		m.rowMap[key] = q
	}
	m.rowMu.Unlock()
	return q
}

// checkIsolation enforces spec.md §4.5's per-isolation-level rules on the
// requested mode, aborting txn (via dberrors.AbortError) on a violation.
func checkIsolation(txn Txn, mode LockMode) error {
	state := txn.GetState()
	switch txn.IsolationLevel() {
	case dbconfig.ReadUncommitted:
		if mode == Shared || mode == IntentionShared || mode == SharedIntentionExclusive {
			txn.SetState(Aborted)
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonLockSharedOnReadUncommitted)
		}
		if state == Shrinking && (mode == Exclusive || mode == IntentionExclusive) {
			txn.SetState(Aborted)
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonLockOnShrinking)
		}
	case dbconfig.ReadCommitted:
		if state == Shrinking && mode != Shared && mode != IntentionShared {
			txn.SetState(Aborted)
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonLockOnShrinking)
		}
	case dbconfig.RepeatableRead:
		if state == Shrinking {
			txn.SetState(Aborted)
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonLockOnShrinking)
		}
	}
	return nil
}

// LockTable acquires mode on oid for txn, blocking until granted or until
// txn is aborted (by the deadlock detector or a concurrent caller).
// Grounded on original_source's LockManager::LockTable.
func (m *Manager) LockTable(txn Txn, mode LockMode, oid TableID) error {
	if err := checkIsolation(txn, mode); err != nil {
		return err
	}

	q := m.tableQueue(oid)
	q.mu.Lock()

	for _, lr := range q.requests {
		if lr.txnID != txn.ID() {
			continue
		}
		if lr.mode == mode {
			q.mu.Unlock()
			return nil // repeat request, already held
		}
		if q.upgrading != 0 {
			q.mu.Unlock()
			txn.SetState(Aborted)
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonUpgradeConflict)
		}
		if !CanUpgrade(lr.mode, mode) {
			q.mu.Unlock()
			txn.SetState(Aborted)
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonIncompatibleUpgrade)
		}
		q.upgrading = txn.ID()
		q.remove(lr)
		txn.RevokeTableLock(lr.mode, oid)
		break
	}

	req := &LockRequest{txn: txn, txnID: txn.ID(), mode: mode}
	q.requests = append(q.requests, req)
	q.grantReady()

	for !req.granted {
		q.cond.Wait()
		if txn.GetState() == Aborted {
			if q.upgrading == txn.ID() {
				q.upgrading = 0
			}
			q.remove(req)
			q.cond.Broadcast()
			q.mu.Unlock()
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonDeadlock)
		}
	}
	q.mu.Unlock()

	txn.GrantTableLock(mode, oid)
	return nil
}

// UnlockTable releases txn's lock on oid. Unless force is set, fails with
// TableUnlockedBeforeUnlockingRows if any row lock on that table survives.
// force also skips the growing->shrinking transition (used by Abort rollback).
func (m *Manager) UnlockTable(txn Txn, oid TableID, force bool) error {
	if txn.HasAnyRowLock(oid) {
		if !force {
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonTableUnlockedBeforeUnlockingRows)
		}
	}

	q := m.tableQueue(oid)
	q.mu.Lock()
	var found *LockRequest
	for _, lr := range q.requests {
		if lr.txnID == txn.ID() && lr.granted {
			found = lr
			break
		}
	}
	if found == nil {
		q.mu.Unlock()
		return dberrors.NewAbortError(txn.ID(), dberrors.ReasonUnlockButNoLockHeld)
	}
	q.remove(found)
	q.grantReady()
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.RevokeTableLock(found.mode, oid)
	if !force {
		maybeShrink(txn, found.mode)
	}
	return nil
}

// maybeShrink transitions growing->shrinking when releasedMode triggers a
// shrink under txn's isolation level (spec.md §4.5 "Unlock").
func maybeShrink(txn Txn, releasedMode LockMode) {
	if txn.GetState() != Growing {
		return
	}
	triggers := false
	switch txn.IsolationLevel() {
	case dbconfig.RepeatableRead:
		triggers = releasedMode == Shared || releasedMode == Exclusive
	case dbconfig.ReadCommitted, dbconfig.ReadUncommitted:
		triggers = releasedMode == Exclusive
	}
	if triggers {
		txn.SetState(Shrinking)
	}
}

// LockRow acquires mode on (oid, rid) for txn. Intention modes are
// forbidden on rows; an X row lock requires holding X/IX/SIX on the table,
// an S row lock requires any table lock (spec.md §4.5 "Row-lock preconditions").
func (m *Manager) LockRow(txn Txn, mode LockMode, oid TableID, rid RID) error {
	if mode == IntentionShared || mode == IntentionExclusive || mode == SharedIntentionExclusive {
		txn.SetState(Aborted)
		return dberrors.NewAbortError(txn.ID(), dberrors.ReasonIntentionLockOnRow)
	}
	if err := checkIsolation(txn, mode); err != nil {
		return err
	}
	if mode == Exclusive && !txn.HasTableLock(oid, Exclusive, IntentionExclusive, SharedIntentionExclusive) {
		txn.SetState(Aborted)
		return dberrors.NewAbortError(txn.ID(), dberrors.ReasonTableLockNotPresent)
	}
	if mode == Shared && !txn.HasTableLock(oid, IntentionShared, IntentionExclusive, Shared, SharedIntentionExclusive, Exclusive) {
		txn.SetState(Aborted)
		return dberrors.NewAbortError(txn.ID(), dberrors.ReasonTableLockNotPresent)
	}

	q := m.rowQueue(oid, rid)
	q.mu.Lock()

	for _, lr := range q.requests {
		if lr.txnID != txn.ID() {
			continue
		}
		if lr.mode == mode {
			q.mu.Unlock()
			return nil
		}
		if q.upgrading != 0 {
			q.mu.Unlock()
			txn.SetState(Aborted)
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonUpgradeConflict)
		}
		if !CanUpgrade(lr.mode, mode) {
			q.mu.Unlock()
			txn.SetState(Aborted)
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonIncompatibleUpgrade)
		}
		q.upgrading = txn.ID()
		q.remove(lr)
		txn.RevokeRowLock(lr.mode, oid, rid)
		break
	}

	req := &LockRequest{txn: txn, txnID: txn.ID(), mode: mode}
	q.requests = append(q.requests, req)
	q.grantReady()

	for !req.granted {
		q.cond.Wait()
		if txn.GetState() == Aborted {
			if q.upgrading == txn.ID() {
				q.upgrading = 0
			}
			q.remove(req)
			q.cond.Broadcast()
			q.mu.Unlock()
			return dberrors.NewAbortError(txn.ID(), dberrors.ReasonDeadlock)
		}
	}
	q.mu.Unlock()

	txn.GrantRowLock(mode, oid, rid)
	return nil
}

// UnlockRow releases txn's lock on (oid, rid). force skips the
// growing->shrinking transition, used during abort rollback.
func (m *Manager) UnlockRow(txn Txn, oid TableID, rid RID, force bool) error {
	q := m.rowQueue(oid, rid)
	q.mu.Lock()
	var found *LockRequest
	for _, lr := range q.requests {
		if lr.txnID == txn.ID() && lr.granted {
			found = lr
			break
		}
	}
	if found == nil {
		q.mu.Unlock()
		return dberrors.NewAbortError(txn.ID(), dberrors.ReasonUnlockButNoLockHeld)
	}
	q.remove(found)
	q.grantReady()
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.RevokeRowLock(found.mode, oid, rid)
	if !force {
		maybeShrink(txn, found.mode)
	}
	return nil
}
