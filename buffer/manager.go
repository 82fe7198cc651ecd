// Package buffer is the buffer pool manager of spec.md §4.2: it memoizes
// fixed-size pages, enforces at most one resident copy per page id,
// allocates new pages on demand, and writes dirty pages back through the
// disk manager. Page guards (guard.go) are its RAII-style access tokens.
//
// Grounded on the teacher's storage_engine/bufferpool/bufferpool.go for
// the mutex-guarded map + free/evict flow and the WALFlushedLSNGetter
// minimal-interface trick (reused here as dblog.Logger), and on
// original_source/src/buffer/buffer_pool_manager.cpp for the exact
// NewPage/FetchPage/UnpinPage/FlushPage/DeletePage contract.
package buffer

import (
	"sync"

	"github.com/pkg/errors"

	"coredb/dblog"
	"coredb/dberrors"
	"coredb/diskmanager"
	"coredb/page"
	"coredb/replacer"
)

// Mode selects which guard flavor FetchPage returns.
type Mode int

const (
	Basic Mode = iota
	ReadMode
	WriteMode
)

// Manager is the buffer pool: a fixed array of frames, a page_id->frame_id
// table, a free list, and an LRU-K replacer, all behind one mutex. Per-page
// content latches live inside each page.Page and are acquired by guards
// outside this mutex (spec.md §4.2).
type Manager struct {
	mu sync.Mutex

	disk     *diskmanager.Manager
	replacer *replacer.LRUK
	log      dblog.Logger

	pageSize int
	frames   []*page.Page
	pageTbl  map[page.ID]replacer.FrameID
	freeList []replacer.FrameID
}

// NewManager builds a pool of poolSize frames backed by disk, replaced by
// LRU-K with the given K.
func NewManager(poolSize, replacerK int, disk *diskmanager.Manager, pageSize int) *Manager {
	frames := make([]*page.Page, poolSize)
	free := make([]replacer.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = page.New(page.InvalidID, pageSize)
		free[i] = replacer.FrameID(i)
	}
	return &Manager{
		disk:     disk,
		replacer: replacer.New(poolSize, replacerK),
		log:      dblog.Default(),
		pageSize: pageSize,
		frames:   frames,
		pageTbl:  make(map[page.ID]replacer.FrameID, poolSize),
		freeList: free,
	}
}

func (m *Manager) SetLogger(l dblog.Logger) { m.log = l }

// victim picks a frame for a new resident page: a free frame if one
// exists, else an evicted one. If the evicted frame held a dirty page,
// that page's id/bytes are returned so the caller can write them back
// without holding m.mu (spec.md §4.2/§5: never block on disk under the
// pool mutex).
func (m *Manager) victim() (fid replacer.FrameID, evictedID page.ID, evictedDirty []byte, ok bool) {
	if n := len(m.freeList); n > 0 {
		fid = m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return fid, page.InvalidID, nil, true
	}
	rfid, found := m.replacer.Evict()
	if !found {
		return 0, page.InvalidID, nil, false
	}
	fid = rfid
	fr := m.frames[fid]
	if fr.ID != page.InvalidID {
		delete(m.pageTbl, fr.ID)
		if fr.IsDirty() {
			evictedID = fr.ID
			evictedDirty = append([]byte(nil), fr.Data...)
		} else {
			evictedID = page.InvalidID
		}
	}
	return fid, evictedID, evictedDirty, true
}

// NewPage allocates a fresh page, pins it, and returns a basic guard over
// a zeroed frame.
func (m *Manager) NewPage() (*BasicGuard, error) {
	m.mu.Lock()
	fid, evictedID, evictedDirty, ok := m.victim()
	if !ok {
		m.mu.Unlock()
		return nil, errors.WithStack(dberrors.ErrPoolFull)
	}
	id := m.disk.AllocatePage()
	m.pageTbl[id] = fid
	fr := m.frames[fid]
	m.mu.Unlock()

	if evictedID != page.InvalidID {
		if err := m.disk.WritePage(evictedID, evictedDirty); err != nil {
			return nil, errors.Wrap(err, "buffer: writeback on evict")
		}
	}

	m.mu.Lock()
	fr.Reset(id)
	fr.PinCount = 1
	m.replacer.RecordAccess(fid)
	m.replacer.SetEvictable(fid, false)
	m.mu.Unlock()

	m.log.WithFields(fieldsFor("new_page", id, fid)).Debugf("buffer: new page")
	return &BasicGuard{bpm: m, pg: fr}, nil
}

// fetch is the shared body of FetchPageBasic/Read/Write.
func (m *Manager) fetch(id page.ID) (*page.Page, error) {
	m.mu.Lock()
	if fid, resident := m.pageTbl[id]; resident {
		fr := m.frames[fid]
		fr.Pin()
		m.replacer.RecordAccess(fid)
		m.replacer.SetEvictable(fid, false)
		m.mu.Unlock()
		return fr, nil
	}

	fid, evictedID, evictedDirty, ok := m.victim()
	if !ok {
		m.mu.Unlock()
		return nil, errors.WithStack(dberrors.ErrPoolFull)
	}
	m.pageTbl[id] = fid
	fr := m.frames[fid]
	fr.Lock() // block any concurrent access to fr.Data until it holds page id's content
	m.mu.Unlock()

	if evictedID != page.InvalidID {
		if err := m.disk.WritePage(evictedID, evictedDirty); err != nil {
			fr.Unlock()
			return nil, errors.Wrap(err, "buffer: writeback on evict")
		}
	}
	buf := make([]byte, m.pageSize)
	if err := m.disk.ReadPage(id, buf); err != nil {
		fr.Unlock()
		return nil, errors.Wrapf(err, "buffer: read page_id=%d", int64(id))
	}

	m.mu.Lock()
	fr.Reset(id)
	copy(fr.Data, buf)
	fr.PinCount = 1
	m.replacer.RecordAccess(fid)
	m.replacer.SetEvictable(fid, false)
	m.mu.Unlock()
	fr.Unlock()

	return fr, nil
}

func (m *Manager) FetchPageBasic(id page.ID) (*BasicGuard, error) {
	fr, err := m.fetch(id)
	if err != nil {
		return nil, err
	}
	return &BasicGuard{bpm: m, pg: fr}, nil
}

func (m *Manager) FetchPageRead(id page.ID) (*ReadGuard, error) {
	fr, err := m.fetch(id)
	if err != nil {
		return nil, err
	}
	fr.RLock()
	return &ReadGuard{basic: BasicGuard{bpm: m, pg: fr}}, nil
}

func (m *Manager) FetchPageWrite(id page.ID) (*WriteGuard, error) {
	fr, err := m.fetch(id)
	if err != nil {
		return nil, err
	}
	fr.Lock()
	return &WriteGuard{basic: BasicGuard{bpm: m, pg: fr}}, nil
}

// UnpinPage decrements id's pin count, OR-accumulating the dirty hint, and
// marks the frame evictable once the count reaches zero.
func (m *Manager) UnpinPage(id page.ID, dirty bool) error {
	m.mu.Lock()
	fid, resident := m.pageTbl[id]
	if !resident {
		m.mu.Unlock()
		return errors.WithStack(dberrors.ErrPageNotResident)
	}
	fr := m.frames[fid]
	reachedZero, ok := fr.Unpin(dirty)
	if !ok {
		m.mu.Unlock()
		return errors.WithStack(dberrors.ErrPagePinned)
	}
	if reachedZero {
		m.replacer.SetEvictable(fid, true)
	}
	m.mu.Unlock()
	return nil
}

// FlushPage writes id to disk unconditionally and clears its dirty bit.
func (m *Manager) FlushPage(id page.ID) error {
	m.mu.Lock()
	fid, resident := m.pageTbl[id]
	if !resident {
		m.mu.Unlock()
		return errors.WithStack(dberrors.ErrPageNotResident)
	}
	fr := m.frames[fid]
	m.mu.Unlock()

	fr.Lock()
	defer fr.Unlock()
	if err := m.disk.WritePage(id, fr.Data); err != nil {
		return errors.Wrapf(err, "buffer: flush page_id=%d", int64(id))
	}
	fr.SetDirty(false)
	return nil
}

// FlushAll flushes every resident page.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	ids := make([]page.ID, 0, len(m.pageTbl))
	for id := range m.pageTbl {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.FlushPage(id); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage removes id from the pool: a no-op if not resident, an error
// if pinned, otherwise written back if dirty and returned to the free
// list.
func (m *Manager) DeletePage(id page.ID) error {
	m.mu.Lock()
	fid, resident := m.pageTbl[id]
	if !resident {
		m.mu.Unlock()
		return nil
	}
	fr := m.frames[fid]
	if fr.PinCountValue() > 0 {
		m.mu.Unlock()
		return errors.WithStack(dberrors.ErrPagePinned)
	}
	dirty := fr.IsDirty()
	data := append([]byte(nil), fr.Data...)
	delete(m.pageTbl, id)
	m.mu.Unlock()

	if dirty {
		if err := m.disk.WritePage(id, data); err != nil {
			return errors.Wrapf(err, "buffer: writeback on delete page_id=%d", int64(id))
		}
	}

	m.mu.Lock()
	if err := m.replacer.Remove(fid); err != nil {
		m.mu.Unlock()
		return errors.Wrap(err, "buffer: delete page")
	}
	fr.Reset(page.InvalidID)
	m.freeList = append(m.freeList, fid)
	m.mu.Unlock()

	m.disk.DeallocatePage(id)
	return nil
}

func fieldsFor(op string, id page.ID, fid replacer.FrameID) dblog.Fields {
	return dblog.Fields{"op": op, "page_id": int64(id), "frame_id": int(fid)}
}
