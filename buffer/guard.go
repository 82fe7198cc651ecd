package buffer

import (
	"coredb/dberrors"
	"coredb/page"

	"github.com/pkg/errors"
)

// noCopy trips `go vet -copylocks` if a guard holding one is copied by
// value instead of passed by pointer, which is how spec.md's "aliasing a
// guard must be rejected" requirement is enforced at compile/vet time
// rather than at runtime.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// BasicGuard is the RAII-style access token of spec.md §4.3: it pins a
// page on construction and must be released exactly once via Drop. Unlike
// ReadGuard/WriteGuard it holds no content latch, so callers take on the
// concurrency discipline themselves.
//
// Grounded on original_source/src/storage/page/page_guard.cpp's
// BasicPageGuard; Go has no destructors, so callers are expected to
// `defer g.Drop()` immediately after a successful Fetch/New, the same
// idiom the teacher uses for *os.File and the bufferpool's pinned frames.
type BasicGuard struct {
	_ noCopy

	bpm     *Manager
	pg      *page.Page
	dropped bool
}

// PageID reports the guarded page's id, or page.InvalidID once dropped.
func (g *BasicGuard) PageID() page.ID {
	if g.pg == nil {
		return page.InvalidID
	}
	return g.pg.ID
}

// Data exposes the page's raw bytes. Safe only while the caller has
// arranged its own exclusion (BasicGuard carries no latch); most callers
// want ReadGuard/WriteGuard instead.
func (g *BasicGuard) Data() []byte {
	if g.pg == nil {
		return nil
	}
	return g.pg.Data
}

// SetDirty marks the guarded page dirty; it is OR-accumulated at Drop
// time, matching page.Page.Unpin's semantics.
func (g *BasicGuard) SetDirty(v bool) {
	if g.pg != nil && v {
		g.pg.SetDirty(true)
	}
}

// Drop unpins the page and invalidates the guard. Calling Drop twice, or
// using the guard after a Drop, is a no-op/zero value respectively rather
// than a panic, so a deferred Drop following an early explicit Drop stays
// safe.
func (g *BasicGuard) Drop() error {
	if g.dropped || g.pg == nil {
		return nil
	}
	g.dropped = true
	id := g.pg.ID
	dirty := g.pg.IsDirty()
	err := g.bpm.UnpinPage(id, dirty)
	g.pg = nil
	if err != nil && !errors.Is(err, dberrors.ErrPageNotResident) {
		return errors.Wrapf(err, "buffer: drop guard for page_id=%d", int64(id))
	}
	return nil
}

// ReadGuard wraps BasicGuard with the page's content latch held for
// reading (spec.md §4.3 latch-crabbing). Drop releases the latch before
// unpinning: a reader must stop observing the page's bytes before the
// buffer pool is free to recycle the frame under it.
type ReadGuard struct {
	basic   BasicGuard
	dropped bool
}

func (g *ReadGuard) PageID() page.ID { return g.basic.PageID() }

// As returns the page's bytes for read-only inspection.
func (g *ReadGuard) As() []byte { return g.basic.Data() }

func (g *ReadGuard) Drop() error {
	if g.dropped {
		return nil
	}
	g.dropped = true
	pg := g.basic.pg
	if pg != nil {
		pg.RUnlock()
	}
	return g.basic.Drop()
}

// WriteGuard wraps BasicGuard with the page's content latch held for
// writing. Drop releases the latch before unpinning, same order as
// ReadGuard. The page is marked dirty only when AsMut is called; As gives
// read-only access without dirtying it.
type WriteGuard struct {
	basic   BasicGuard
	dropped bool
}

func (g *WriteGuard) PageID() page.ID { return g.basic.PageID() }

// AsMut returns the page's bytes for mutation and marks the page dirty.
func (g *WriteGuard) AsMut() []byte {
	g.basic.SetDirty(true)
	return g.basic.Data()
}

// As returns the page's bytes without marking it dirty, for a write-latch
// holder that ends up only reading (e.g. a B+-tree descent that takes the
// write latch defensively but finds no split needed).
func (g *WriteGuard) As() []byte { return g.basic.Data() }

func (g *WriteGuard) Drop() error {
	if g.dropped {
		return nil
	}
	g.dropped = true
	pg := g.basic.pg
	if pg != nil {
		pg.Unlock()
	}
	return g.basic.Drop()
}
