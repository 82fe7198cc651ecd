package bplustree

import (
	"coredb/buffer"
	"coredb/page"
)

// Iterator is a forward-only range scan over leaves. It holds exactly one
// read guard at a time (spec.md §4.4): advancing past the last entry of a
// leaf releases that guard before fetching the next one, so a scan never
// holds two leaf latches at once.
type Iterator struct {
	tree  *BPlusTree
	guard *buffer.ReadGuard
	node  *node
	idx   int
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.guard != nil }

func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.node.keys[it.idx]
}

func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.node.values[it.idx]
}

// Next advances the iterator, returning false once exhausted.
func (it *Iterator) Next() bool {
	if !it.Valid() {
		return false
	}
	it.idx++
	if it.idx < len(it.node.keys) {
		return true
	}

	nextID := it.node.next
	it.guard.Drop()
	it.guard = nil
	it.node = nil
	if nextID == page.InvalidID {
		return false
	}

	g, err := it.tree.bpm.FetchPageRead(nextID)
	if err != nil {
		return false
	}
	n := decodeNode(g.As())
	if len(n.keys) == 0 {
		g.Drop()
		return false
	}
	it.guard = g
	it.node = n
	it.idx = 0
	return true
}

// Close releases any held guard. Safe to call on an already-exhausted or
// End iterator.
func (it *Iterator) Close() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
}

// End returns the sentinel iterator: !Valid(), no page held.
func (t *BPlusTree) End() *Iterator { return &Iterator{tree: t} }

// Begin positions at the leftmost entry of the tree (spec.md §4.4: descend
// leftmost children, return an iterator positioned at leaf-0, index-0).
func (t *BPlusTree) Begin() *Iterator {
	root := t.readRoot()
	if root == page.InvalidID {
		return t.End()
	}
	curID := root
	var parent *buffer.ReadGuard
	for {
		g, err := t.bpm.FetchPageRead(curID)
		if err != nil {
			if parent != nil {
				parent.Drop()
			}
			return t.End()
		}
		if parent != nil {
			parent.Drop()
		}
		n := decodeNode(g.As())
		if n.kind == leafNode {
			if len(n.keys) == 0 {
				g.Drop()
				return t.End()
			}
			return &Iterator{tree: t, guard: g, node: n, idx: 0}
		}
		curID = n.children[0]
		parent = g
	}
}

// Seek positions at key's entry, or at End() if key is absent — the
// resolved reading of spec.md §9's open question, kept consistent with
// GetValue: an absent key yields End rather than the next-greater entry.
func (t *BPlusTree) Seek(key []byte) *Iterator {
	root := t.readRoot()
	if root == page.InvalidID {
		return t.End()
	}
	curID := root
	var parent *buffer.ReadGuard
	for {
		g, err := t.bpm.FetchPageRead(curID)
		if err != nil {
			if parent != nil {
				parent.Drop()
			}
			return t.End()
		}
		if parent != nil {
			parent.Drop()
		}
		n := decodeNode(g.As())
		if n.kind == leafNode {
			idx := n.findKeyIndex(key, t.cmp)
			if idx < 0 {
				g.Drop()
				return t.End()
			}
			return &Iterator{tree: t, guard: g, node: n, idx: idx}
		}
		curID = n.childFor(key, t.cmp)
		parent = g
	}
}
