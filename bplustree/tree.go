// Package bplustree implements the ordered key->value index of spec.md §4.4:
// a disk-backed B+-tree whose pages are reached exclusively through buffer
// pool guards, latched top-down (latch-crabbing) for both reads and
// structural modifications.
//
// Grounded on the teacher's storage_engine/access/indexfile_manager/bplustree
// for file decomposition and the node<->page-bytes codec shape
// (node_to_index_page.go's SerializeNode/DeserializeNode), and on
// original_source/src/storage/index/b_plus_tree.cpp for the latch-crabbing
// discipline itself: write latches acquired top-down, ancestors released the
// moment a "safe" page is reached, and a path stack of held guards standing
// in for the on-page parent pointers the source's (and the teacher's) nodes
// do carry — spec.md §9 asks that parent pointers be reconstructed from the
// traversal path instead.
package bplustree

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"coredb/buffer"
	"coredb/dblog"
	"coredb/page"
)

// Comparator orders keys; bytes.Compare if nil is passed to New/Open.
type Comparator func(a, b []byte) int

// BPlusTree is the index. headerPageID holds the persisted root pointer
// (spec.md §3 "Header page"); rootMu is the dedicated reader-writer lock
// spec.md §4.4/§9 asks for, separate from the header page's own content
// latch, so concurrent lookups never contend on disk I/O to learn the root.
type BPlusTree struct {
	bpm          *buffer.Manager
	headerPageID page.ID
	leafMax      int
	internalMax  int
	cmp          Comparator
	log          dblog.Logger

	rootMu sync.RWMutex
	root   page.ID
}

// New allocates a fresh header page and an empty tree.
func New(bpm *buffer.Manager, leafMax, internalMax int, cmp Comparator) (*BPlusTree, error) {
	if cmp == nil {
		cmp = bytes.Compare
	}
	hg, err := bpm.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "bplustree: allocate header page")
	}
	writeHeaderRoot(hg, page.InvalidID)
	headerID := hg.PageID()
	hg.Drop()

	return &BPlusTree{
		bpm:          bpm,
		headerPageID: headerID,
		leafMax:      leafMax,
		internalMax:  internalMax,
		cmp:          cmp,
		log:          dblog.Default(),
		root:         page.InvalidID,
	}, nil
}

// Open reattaches to a tree whose header page already exists, reading its
// persisted root pointer.
func Open(bpm *buffer.Manager, headerPageID page.ID, leafMax, internalMax int, cmp Comparator) (*BPlusTree, error) {
	if cmp == nil {
		cmp = bytes.Compare
	}
	hg, err := bpm.FetchPageRead(headerPageID)
	if err != nil {
		return nil, errors.Wrap(err, "bplustree: fetch header page")
	}
	root := readHeaderRoot(hg.As())
	hg.Drop()

	return &BPlusTree{
		bpm:          bpm,
		headerPageID: headerPageID,
		leafMax:      leafMax,
		internalMax:  internalMax,
		cmp:          cmp,
		log:          dblog.Default(),
		root:         root,
	}, nil
}

func (t *BPlusTree) SetLogger(l dblog.Logger) { t.log = l }

func (t *BPlusTree) HeaderPageID() page.ID { return t.headerPageID }

func (t *BPlusTree) maxSizeFor(n *node) int {
	if n.kind == leafNode {
		return t.leafMax
	}
	return t.internalMax
}

// minSizeFor is ceil(max/2), spec.md §4.4's minimum occupancy (root exempt).
func (t *BPlusTree) minSizeFor(n *node) int {
	return (t.maxSizeFor(n) + 1) / 2
}

func (t *BPlusTree) readRoot() page.ID {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.root
}

func (t *BPlusTree) setRoot(id page.ID) {
	t.rootMu.Lock()
	t.root = id
	t.rootMu.Unlock()
}

// updateRoot persists a new root page id through the header page's own
// write latch, then publishes it to rootMu for wait-free readers.
func (t *BPlusTree) updateRoot(id page.ID) error {
	hg, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return errors.Wrap(err, "bplustree: fetch header page")
	}
	return t.updateRootLocked(hg, id)
}

// updateRootLocked finishes a root change through a header write guard the
// caller already holds. Callers acquire hg before dropping the old root's
// own guard, so a concurrent reader never observes the header pointing at
// a root page whose content has already moved to a new sibling.
func (t *BPlusTree) updateRootLocked(hg *buffer.WriteGuard, id page.ID) error {
	writeHeaderRoot(hg, id)
	hg.Drop()
	t.setRoot(id)
	return nil
}

// pageGuard is either a write guard or the basic guard NewPage returns for
// a freshly allocated page that no other goroutine can reach yet.
type pageGuard interface {
	PageID() page.ID
	Drop() error
}

// mutableBytes returns g's page bytes for writing and marks the page dirty.
func mutableBytes(g pageGuard) []byte {
	switch g := g.(type) {
	case *buffer.WriteGuard:
		return g.AsMut()
	case *buffer.BasicGuard:
		g.SetDirty(true)
		return g.Data()
	}
	return nil
}

func writeHeaderRoot(g pageGuard, id page.ID) {
	binary.LittleEndian.PutUint64(mutableBytes(g), uint64(int64(id)))
}

func readHeaderRoot(data []byte) page.ID {
	return page.ID(int64(binary.LittleEndian.Uint64(data)))
}

func (t *BPlusTree) writeNode(g pageGuard, n *node) error {
	n.maxSize = t.maxSizeFor(n)
	if err := encodeNode(n, mutableBytes(g)); err != nil {
		return errors.Wrap(err, "bplustree: encode node")
	}
	return nil
}

// guardedNode is one still-held write latch in a crabbing descent, paired
// with the node it decodes to.
type guardedNode struct {
	id page.ID
	wg *buffer.WriteGuard
	n  *node
}

func releasePath(path []*guardedNode) {
	for _, g := range path {
		g.wg.Drop()
	}
}

// descendForWrite latches write-guards top-down from root to the leaf that
// should contain key, releasing every ancestor as soon as a "safe" page is
// reached (spec.md §4.4: a page safe for insert has size < max before the
// op, safe for delete has size > min). The returned path holds only the
// still-unsafe ancestors (leaf excluded, returned separately) — exactly the
// set that may need mutation if the leaf operation propagates upward.
func (t *BPlusTree) descendForWrite(root page.ID, key []byte, isSafe func(*node) bool) ([]*guardedNode, *guardedNode, error) {
	var path []*guardedNode
	curID := root
	for {
		wg, err := t.bpm.FetchPageWrite(curID)
		if err != nil {
			releasePath(path)
			return nil, nil, errors.Wrapf(err, "bplustree: fetch page_id=%d", int64(curID))
		}
		n := decodeNode(wg.As())
		gn := &guardedNode{id: curID, wg: wg, n: n}

		if isSafe(n) {
			releasePath(path)
			path = path[:0]
		}
		path = append(path, gn)

		if n.kind == leafNode {
			leaf := path[len(path)-1]
			path = path[:len(path)-1]
			return path, leaf, nil
		}
		curID = n.childFor(key, t.cmp)
	}
}

// GetValue performs a hand-over-hand read-latched descent (spec.md §4.4:
// "release the parent latch as soon as the child latch is held") and
// returns a copy of the value for key, if present.
func (t *BPlusTree) GetValue(key []byte) ([]byte, bool, error) {
	root := t.readRoot()
	if root == page.InvalidID {
		return nil, false, nil
	}

	curID := root
	var parent *buffer.ReadGuard
	for {
		g, err := t.bpm.FetchPageRead(curID)
		if err != nil {
			if parent != nil {
				parent.Drop()
			}
			return nil, false, errors.Wrapf(err, "bplustree: fetch page_id=%d", int64(curID))
		}
		if parent != nil {
			parent.Drop()
		}
		n := decodeNode(g.As())
		if n.kind == leafNode {
			idx := n.findKeyIndex(key, t.cmp)
			g.Drop()
			if idx < 0 {
				return nil, false, nil
			}
			return append([]byte(nil), n.values[idx]...), true, nil
		}
		curID = n.childFor(key, t.cmp)
		parent = g
	}
}
