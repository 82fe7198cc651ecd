// Package diskmanager is the concrete disk collaborator spec.md §6
// describes as "consumed": fixed-size page read/write plus a
// monotonically increasing page-id allocator. Page 0 is reserved for the
// B+-tree header record (spec.md §3).
//
// Grounded on the teacher's storage_engine/disk_manager (os.File opened
// O_RDWR|O_CREATE, offset = page_id * PageSize, one mutex) simplified to a
// single file per spec.md §6 ("Page is the only on-disk unit... no
// embedded free-space map; the allocator is a monotonically increasing
// counter").
package diskmanager

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"coredb/dblog"
	"coredb/page"
)

// Manager owns one backing file and the page-id counter.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	nextID   int64 // next id to hand out from AllocatePage

	log dblog.Logger
}

// Open creates or opens path as the backing store. The header page (id 0)
// is reserved by the caller allocating it first, matching spec.md §6.
func Open(path string, pageSize int) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "diskmanager: open %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "diskmanager: stat %s", path)
	}
	return &Manager{
		file:     f,
		pageSize: pageSize,
		nextID:   stat.Size() / int64(pageSize),
		log:      dblog.Default(),
	}, nil
}

func (m *Manager) SetLogger(l dblog.Logger) { m.log = l }

// Close releases the backing file handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}

// AllocatePage hands out the next monotonically increasing page id. It
// does not touch the file; the id becomes durable once the caller writes
// to it.
func (m *Manager) AllocatePage() page.ID {
	return page.ID(atomic.AddInt64(&m.nextID, 1) - 1)
}

// DeallocatePage is informational only (spec.md §6): no free-space map, no
// id reuse.
func (m *Manager) DeallocatePage(id page.ID) {
	m.log.Debugf("diskmanager: deallocate page_id=%d (informational)", int64(id))
}

// ReadPage fills buf (len == pageSize) with the on-disk contents of id. A
// page never written yet reads back as zeros.
func (m *Manager) ReadPage(id page.ID, buf []byte) error {
	if len(buf) != m.pageSize {
		return errors.Errorf("diskmanager: buffer size %d != page size %d", len(buf), m.pageSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	offset := int64(id) * int64(m.pageSize)
	n, err := m.file.ReadAt(buf, offset)
	if err != nil && n < len(buf) {
		// A page at or beyond EOF that was allocated but never flushed
		// reads as zeros, not an error.
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
	return nil
}

// WritePage persists buf (len == pageSize) as the contents of id.
func (m *Manager) WritePage(id page.ID, buf []byte) error {
	if len(buf) != m.pageSize {
		return errors.Errorf("diskmanager: buffer size %d != page size %d", len(buf), m.pageSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	offset := int64(id) * int64(m.pageSize)
	if _, err := m.file.WriteAt(buf, offset); err != nil {
		return errors.Wrapf(err, "diskmanager: write page_id=%d", int64(id))
	}
	return nil
}
