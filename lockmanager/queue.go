package lockmanager

import "sync"

// LockRequest is one entry in a resource's grant queue.
type LockRequest struct {
	txn     Txn
	txnID   uint64
	mode    LockMode
	granted bool
}

// LockRequestQueue is the per-resource (table or row) wait/grant queue:
// one mutex plus condition variable, spec.md §4.5 "Concurrency primitives".
type LockRequestQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*LockRequest
	upgrading uint64 // 0 means no pending upgrade; txn ids are >= 1
}

func newLockRequestQueue() *LockRequestQueue {
	q := &LockRequestQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// canGrant reports whether req may be granted now. It must be compatible
// with every already-granted request. While an upgrade is pending, only the
// upgrading transaction's request qualifies; otherwise req qualifies unless
// a waiting request ahead of it in FIFO order is incompatible with it.
// Mirrors original_source's LockManager::CanGrantLock.
func (q *LockRequestQueue) canGrant(req *LockRequest) bool {
	for _, lr := range q.requests {
		if lr.granted && !Compatible(lr.mode, req.mode) {
			return false
		}
	}

	if q.upgrading != 0 {
		return q.upgrading == req.txnID
	}

	for _, lr := range q.requests {
		if lr.txnID == req.txnID {
			return true
		}
		if !lr.granted && !Compatible(req.mode, lr.mode) {
			return false
		}
	}
	return true
}

// grantReady first grants a pending upgrade if canGrant allows it (the
// upgrade request sits at the tail, so it is looked up by txn id), then
// grants every waiting request at the front of the queue that canGrant now
// allows, in FIFO order, stopping at the first it can't grant. Called
// after any enqueue, grant, or release so newly-eligible waiters proceed
// without every waiter re-scanning the whole queue itself.
func (q *LockRequestQueue) grantReady() {
	if q.upgrading != 0 {
		for _, lr := range q.requests {
			if lr.granted || lr.txnID != q.upgrading {
				continue
			}
			if !q.canGrant(lr) {
				return
			}
			lr.granted = true
			q.upgrading = 0
			break
		}
	}
	for _, lr := range q.requests {
		if lr.granted {
			continue
		}
		if !q.canGrant(lr) {
			return
		}
		lr.granted = true
		if q.upgrading == lr.txnID {
			q.upgrading = 0
		}
	}
}

func (q *LockRequestQueue) remove(req *LockRequest) {
	for i, lr := range q.requests {
		if lr == req {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}
