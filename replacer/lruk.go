// Package replacer implements the LRU-K frame replacement policy
// (spec.md §4.1): frames seen fewer than K times are always preferred for
// eviction over frames seen K or more times, among which the oldest
// K-th-most-recent access goes first.
//
// Grounded on Adarsh-Kmt-DragonDB's LRUReplacer (container/list +
// map[FrameID]*list.Element under one mutex) for the Go idiom, generalized
// from plain LRU to two-list LRU-K per
// original_source/src/buffer/lru_k_replacer.cpp, which this package's
// history-list/cache-list split and promote-on-K-th-access rule follow
// directly.
package replacer

import (
	"sync"

	"github.com/pkg/errors"
)

// FrameID indexes a buffer pool frame.
type FrameID int

type node struct {
	frameID FrameID
	// history holds the last K access timestamps in ascending order; once
	// len(history) == K, history[0] is the K-th-most-recent access.
	history   []int64
	evictable bool
}

// LRUK is the replacer. One internal mutex guards every operation; all of
// them are short (spec.md §4.1 "all operations are blocking but short").
type LRUK struct {
	mu sync.Mutex

	k           int
	currentTime int64

	nodes map[FrameID]*node

	// historyOrder[0] is the most recently inserted frame; the last
	// element is the oldest and the first FIFO eviction candidate.
	historyOrder []FrameID
	// cacheOrder[0] holds the newest K-th-access timestamp; the last
	// element holds the oldest and is the first eviction candidate.
	cacheOrder []FrameID

	evictableInHistory int
	evictableInCache   int
}

// New creates a replacer tracking up to numFrames frames with K-th-access
// promotion threshold k.
func New(numFrames, k int) *LRUK {
	return &LRUK{k: k, nodes: make(map[FrameID]*node, numFrames)}
}

// RecordAccess bumps frameID's access count, inserting it into the
// history list on first sight, promoting it to the cache list on its
// K-th access, and re-sorting it within the cache list on every access
// thereafter.
func (r *LRUK) RecordAccess(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.currentTime++
	n, ok := r.nodes[frameID]
	if !ok {
		n = &node{frameID: frameID, history: []int64{r.currentTime}}
		r.nodes[frameID] = n
		r.historyOrder = append([]FrameID{frameID}, r.historyOrder...)
		if r.k == 1 {
			r.historyOrder = r.historyOrder[1:]
			r.insertIntoCache(n)
		}
		return
	}

	wasBelowK := len(n.history) < r.k
	n.history = append(n.history, r.currentTime)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}

	switch {
	case len(n.history) < r.k:
		// Still below K: stays in the history list, FIFO order
		// unaffected by repeated sub-threshold access.
	case wasBelowK:
		// Reaches exactly K on this access: promote history -> cache.
		r.removeFromHistory(frameID)
		if n.evictable {
			r.evictableInHistory--
			r.evictableInCache++
		}
		r.insertIntoCache(n)
	default:
		// Already a cache-list member: K-th-most-recent timestamp
		// changed, re-sort to the new position.
		r.removeFromCache(frameID)
		r.insertIntoCache(n)
	}
}

// SetEvictable flips whether frameID may be chosen by Evict. Idempotent.
func (r *LRUK) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frameID]
	if !ok || n.evictable == evictable {
		return
	}
	n.evictable = evictable
	delta := 1
	if !evictable {
		delta = -1
	}
	if len(n.history) < r.k {
		r.evictableInHistory += delta
	} else {
		r.evictableInCache += delta
	}
}

// Evict returns the tail-most evictable entry of the history list, or
// failing that, of the cache list. It reports false if no evictable frame
// exists.
func (r *LRUK) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.evictableInHistory > 0 {
		for i := len(r.historyOrder) - 1; i >= 0; i-- {
			fid := r.historyOrder[i]
			if r.nodes[fid].evictable {
				r.historyOrder = append(r.historyOrder[:i], r.historyOrder[i+1:]...)
				delete(r.nodes, fid)
				r.evictableInHistory--
				return fid, true
			}
		}
	}
	if r.evictableInCache > 0 {
		for i := len(r.cacheOrder) - 1; i >= 0; i-- {
			fid := r.cacheOrder[i]
			if r.nodes[fid].evictable {
				r.cacheOrder = append(r.cacheOrder[:i], r.cacheOrder[i+1:]...)
				delete(r.nodes, fid)
				r.evictableInCache--
				return fid, true
			}
		}
	}
	return 0, false
}

// Remove forcibly drops frameID's bookkeeping. It is an error to remove a
// non-evictable frame; removing an untracked frame is a no-op.
func (r *LRUK) Remove(frameID FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frameID]
	if !ok {
		return nil
	}
	if !n.evictable {
		return errors.Errorf("replacer: frame %d is non-evictable", frameID)
	}
	if len(n.history) < r.k {
		r.removeFromHistory(frameID)
		r.evictableInHistory--
	} else {
		r.removeFromCache(frameID)
		r.evictableInCache--
	}
	delete(r.nodes, frameID)
	return nil
}

// Size is the total number of currently evictable frames.
func (r *LRUK) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictableInHistory + r.evictableInCache
}

func (r *LRUK) removeFromHistory(frameID FrameID) {
	for i, fid := range r.historyOrder {
		if fid == frameID {
			r.historyOrder = append(r.historyOrder[:i], r.historyOrder[i+1:]...)
			return
		}
	}
}

func (r *LRUK) removeFromCache(frameID FrameID) {
	for i, fid := range r.cacheOrder {
		if fid == frameID {
			r.cacheOrder = append(r.cacheOrder[:i], r.cacheOrder[i+1:]...)
			return
		}
	}
}

// insertIntoCache places n in cacheOrder sorted by K-th-most-recent
// timestamp descending (newest first); ties keep existing entries ahead
// of the newly (re)inserted one, i.e. break by insertion order.
func (r *LRUK) insertIntoCache(n *node) {
	kth := n.history[0]
	pos := len(r.cacheOrder)
	for i, fid := range r.cacheOrder {
		if r.nodes[fid].history[0] < kth {
			pos = i
			break
		}
	}
	r.cacheOrder = append(r.cacheOrder, 0)
	copy(r.cacheOrder[pos+1:], r.cacheOrder[pos:])
	r.cacheOrder[pos] = n.frameID
}
