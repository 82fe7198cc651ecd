// Package page defines the fixed-size in-memory page frame shared by the
// buffer pool, the B+-tree, and page guards. A Page is owned by the buffer
// pool manager for as long as it is resident in a frame (spec.md §3).
package page

import "sync"

// ID is a stable, monotonically allocated page identifier. InvalidID marks
// "no page" (an empty tree's header record, a leaf's terminal next link).
type ID int64

const InvalidID ID = -1

// DefaultSize is the on-disk/in-memory page size used when no explicit
// size is configured.
const DefaultSize = 4096

// Page is a frame's payload plus the metadata spec.md §3 lists: a stable
// id, a pin count, a dirty flag, and a per-page latch.
//
// Two distinct synchronization primitives live here on purpose:
//   - latch: the content latch page guards acquire/release for
//     latch-crabbing (spec.md §4.3); held across potentially long B+-tree
//     structural work.
//   - metaMu: guards PinCount/Dirty bookkeeping, touched only briefly, by
//     the buffer pool manager and by page guards.
// Conflating them would make a writer's latch hold block pin bookkeeping
// for unrelated readers of the same frame's metadata.
type Page struct {
	ID       ID
	Data     []byte
	PinCount int32
	Dirty    bool

	metaMu sync.Mutex
	latch  sync.RWMutex
}

// New allocates a zeroed page of the given size for id.
func New(id ID, size int) *Page {
	return &Page{ID: id, Data: make([]byte, size)}
}

// Reset zeroes the payload, sets the id, and clears the dirty bit; pin count is left
// to the caller (the buffer pool manager owns that invariant).
func (p *Page) Reset(id ID) {
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.ID = id
	p.Dirty = false
}

// Pin/Unpin/IsDirty/SetDirty take metaMu rather than relying on the buffer
// pool manager's mutex: page guards mark pages dirty and read the dirty bit
// outside that mutex, and so does FlushPage.
func (p *Page) Pin() {
	p.metaMu.Lock()
	p.PinCount++
	p.metaMu.Unlock()
}

// Unpin decrements the pin count and reports whether it reached zero.
func (p *Page) Unpin(dirtyHint bool) (reachedZero bool, ok bool) {
	p.metaMu.Lock()
	defer p.metaMu.Unlock()
	if p.PinCount == 0 {
		return false, false
	}
	p.PinCount--
	if dirtyHint {
		p.Dirty = true // OR-accumulated: once dirty, always dirty until flushed.
	}
	return p.PinCount == 0, true
}

func (p *Page) IsDirty() bool {
	p.metaMu.Lock()
	defer p.metaMu.Unlock()
	return p.Dirty
}

func (p *Page) SetDirty(v bool) {
	p.metaMu.Lock()
	p.Dirty = v
	p.metaMu.Unlock()
}

func (p *Page) PinCountValue() int32 {
	p.metaMu.Lock()
	defer p.metaMu.Unlock()
	return p.PinCount
}

// RLock/RUnlock/Lock/Unlock expose the content latch to page guards.
func (p *Page) RLock()   { p.latch.RLock() }
func (p *Page) RUnlock() { p.latch.RUnlock() }
func (p *Page) Lock()    { p.latch.Lock() }
func (p *Page) Unlock()  { p.latch.Unlock() }
