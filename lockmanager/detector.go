package lockmanager

import (
	"sort"
	"sync"
	"time"
)

// detector runs the background wait-for-graph cycle scan of spec.md §4.5
// "Deadlock detection". original_source's RunCycleDetection/AddEdge/
// RemoveEdge/HasCycle are all stubs (empty bodies, "return false"); this is
// a full implementation built to the spec's description instead.
type detector struct {
	m        *Manager
	interval time.Duration

	mu    sync.Mutex
	stopC chan struct{}
	done  chan struct{}
}

func newDetector(m *Manager, interval time.Duration) *detector {
	return &detector{m: m, interval: interval}
}

func (d *detector) start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopC != nil {
		return // already running
	}
	d.stopC = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stopC, d.done)
}

func (d *detector) stop() {
	d.mu.Lock()
	stopC, done := d.stopC, d.done
	d.stopC, d.done = nil, nil
	d.mu.Unlock()
	if stopC == nil {
		return
	}
	close(stopC)
	<-done
}

func (d *detector) run(stopC, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopC:
			return
		case <-ticker.C:
			d.scanOnce()
		}
	}
}

// scanOnce builds a wait-for graph mapping each waiting txn id to the ids
// of the granted holders of requests it's blocked behind, per queue.
func (d *detector) scanOnce() {
	graph := make(map[uint64]map[uint64]bool)
	requestsByTxn := make(map[uint64]*LockRequest)
	var queues []*LockRequestQueue

	d.m.tableMu.Lock()
	for _, q := range d.m.tableMap {
		queues = append(queues, q)
	}
	d.m.tableMu.Unlock()

	d.m.rowMu.Lock()
	for _, q := range d.m.rowMap {
		queues = append(queues, q)
	}
	d.m.rowMu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		var holders, waiters []*LockRequest
		for _, lr := range q.requests {
			if lr.granted {
				holders = append(holders, lr)
			} else {
				waiters = append(waiters, lr)
			}
		}
		for _, w := range waiters {
			requestsByTxn[w.txnID] = w
			if graph[w.txnID] == nil {
				graph[w.txnID] = make(map[uint64]bool)
			}
			for _, h := range holders {
				if h.txnID != w.txnID {
					graph[w.txnID][h.txnID] = true
				}
			}
		}
		q.mu.Unlock()
	}

	for {
		victim, found := findCycleVictim(graph)
		if !found {
			return
		}
		req := requestsByTxn[victim]
		if req != nil {
			req.txn.SetState(Aborted)
		}
		delete(graph, victim)
		for _, edges := range graph {
			delete(edges, victim)
		}
		d.wakeAllQueues()
	}
}

// findCycleVictim runs DFS from every source node (sorted ascending by id,
// spec.md's stated scan order) and, on the first cycle found, returns the
// youngest (highest) transaction id participating in it.
func findCycleVictim(graph map[uint64]map[uint64]bool) (uint64, bool) {
	sources := make([]uint64, 0, len(graph))
	for id := range graph {
		sources = append(sources, id)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	visited := make(map[uint64]bool)
	for _, src := range sources {
		if visited[src] {
			continue
		}
		if cycle, ok := dfsCycle(graph, src, nil, make(map[uint64]bool)); ok {
			return youngestIn(cycle), true
		}
		visited[src] = true
	}
	return 0, false
}

func dfsCycle(graph map[uint64]map[uint64]bool, node uint64, path []uint64, onPath map[uint64]bool) ([]uint64, bool) {
	path = append(path, node)
	onPath[node] = true

	neighbors := make([]uint64, 0, len(graph[node]))
	for n := range graph[node] {
		neighbors = append(neighbors, n)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })

	for _, n := range neighbors {
		if onPath[n] {
			for i, p := range path {
				if p == n {
					return path[i:], true
				}
			}
		}
		if cycle, ok := dfsCycle(graph, n, path, onPath); ok {
			return cycle, true
		}
	}
	onPath[node] = false
	return nil, false
}

func youngestIn(cycle []uint64) uint64 {
	youngest := cycle[0]
	for _, id := range cycle {
		if id > youngest {
			youngest = id
		}
	}
	return youngest
}

func (d *detector) wakeAllQueues() {
	d.m.tableMu.Lock()
	tables := make([]*LockRequestQueue, 0, len(d.m.tableMap))
	for _, q := range d.m.tableMap {
		tables = append(tables, q)
	}
	d.m.tableMu.Unlock()
	for _, q := range tables {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}

	d.m.rowMu.Lock()
	rows := make([]*LockRequestQueue, 0, len(d.m.rowMap))
	for _, q := range d.m.rowMap {
		rows = append(rows, q)
	}
	d.m.rowMu.Unlock()
	for _, q := range rows {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}
