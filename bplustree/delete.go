package bplustree

import (
	"github.com/pkg/errors"

	"coredb/buffer"
	"coredb/page"
)

// Remove deletes key if present; absent keys are a silent no-op per
// spec.md §4.4 step 2 ("At the leaf: if key absent -> no-op").
func (t *BPlusTree) Remove(key []byte) error {
	root := t.readRoot()
	if root == page.InvalidID {
		return nil
	}

	path, leaf, err := t.descendForWrite(root, key, func(n *node) bool {
		return n.size() > t.minSizeFor(n)
	})
	if err != nil {
		return err
	}

	idx := leaf.n.findKeyIndex(key, t.cmp)
	if idx < 0 {
		leaf.wg.Drop()
		releasePath(path)
		return nil
	}
	leaf.n.keys = removeAt(leaf.n.keys, idx)
	leaf.n.values = removeAt(leaf.n.values, idx)

	if len(path) == 0 {
		return t.finishRootLeafDelete(leaf)
	}

	if leaf.n.size() >= t.minSizeFor(leaf.n) {
		err := t.writeNode(leaf.wg, leaf.n)
		leaf.wg.Drop()
		releasePath(path)
		return err
	}

	return t.rebalance(path, leaf)
}

// finishRootLeafDelete handles a leaf with no held ancestors: either the
// root leaf, or a leaf the descent found safe (it stays at or above the
// minimum after the delete). An empty result, which only the root leaf can
// reach, clears the root pointer entirely (spec.md §4.4 step 4); otherwise
// the leaf is simply rewritten.
//
// The header write guard is taken before the leaf's own guard is dropped
// and held through updateRootLocked, so a concurrent reader never observes
// the header still pointing at a leaf page that is about to be deleted.
func (t *BPlusTree) finishRootLeafDelete(leaf *guardedNode) error {
	if leaf.n.size() > 0 {
		err := t.writeNode(leaf.wg, leaf.n)
		leaf.wg.Drop()
		return err
	}
	hg, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		leaf.wg.Drop()
		return errors.Wrap(err, "bplustree: fetch header page")
	}
	id := leaf.id
	leaf.wg.Drop()
	if err := t.updateRootLocked(hg, page.InvalidID); err != nil {
		return err
	}
	return errors.Wrap(t.bpm.DeletePage(id), "bplustree: delete emptied root leaf")
}

// rebalance walks the held ancestor path fixing the underflow left by a
// delete, borrowing from a sibling when possible and merging otherwise,
// propagating the merge upward exactly as far as needed (spec.md §4.4
// steps 5-6), modeled as a while-loop over the path stack per spec.md §9.
func (t *BPlusTree) rebalance(path []*guardedNode, cur *guardedNode) error {
	for {
		if len(path) == 0 {
			return t.finishRootInternalDelete(cur)
		}

		parent := path[len(path)-1]
		path = path[:len(path)-1]

		merged, err := t.borrowOrMerge(parent, cur)
		if err != nil {
			releasePath(path)
			return err
		}
		if !merged {
			err := t.writeNode(parent.wg, parent.n)
			parent.wg.Drop()
			releasePath(path)
			return err
		}
		if parent.n.size() >= t.minSizeFor(parent.n) || len(path) == 0 {
			err := t.writeNode(parent.wg, parent.n)
			if err != nil {
				parent.wg.Drop()
				releasePath(path)
				return err
			}
			if len(path) == 0 {
				return t.finishRootInternalDelete(parent)
			}
			parent.wg.Drop()
			releasePath(path)
			return nil
		}
		cur = parent
	}
}

// finishRootInternalDelete collapses an internal root down to its sole
// remaining child once the root holds no more separator keys.
//
// As in finishRootLeafDelete, the header write guard is taken before the
// old root's own guard is dropped and held through updateRootLocked.
func (t *BPlusTree) finishRootInternalDelete(root *guardedNode) error {
	if root.n.kind == internalNode && len(root.n.children) == 1 {
		hg, err := t.bpm.FetchPageWrite(t.headerPageID)
		if err != nil {
			root.wg.Drop()
			return errors.Wrap(err, "bplustree: fetch header page")
		}
		newRoot := root.n.children[0]
		id := root.id
		root.wg.Drop()
		if err := t.updateRootLocked(hg, newRoot); err != nil {
			return err
		}
		return errors.Wrap(t.bpm.DeletePage(id), "bplustree: collapse root")
	}
	err := t.writeNode(root.wg, root.n)
	root.wg.Drop()
	return err
}

// borrowOrMerge merges cur and a sibling into one page, removing the
// vanished child's entry from parent, when their combined size fits in one
// node (at most max); otherwise it moves one entry from the sibling into
// cur and updates the separator in parent. Returns
// whether a merge happened (true) as opposed to a redistribution (false).
func (t *BPlusTree) borrowOrMerge(parent *guardedNode, cur *guardedNode) (bool, error) {
	idx := parent.n.childIndexOf(cur.id)
	var sibIdx int
	isRight := idx < len(parent.n.children)-1
	if isRight {
		sibIdx = idx + 1
	} else {
		sibIdx = idx - 1
	}
	sibID := parent.n.children[sibIdx]

	sibWG, err := t.bpm.FetchPageWrite(sibID)
	if err != nil {
		cur.wg.Drop()
		return false, errors.Wrap(err, "bplustree: fetch sibling")
	}
	sib := decodeNode(sibWG.As())

	if cur.n.size()+sib.size() <= t.maxSizeFor(cur.n) {
		return true, t.mergeSiblings(parent, idx, isRight, cur, sibWG, sib)
	}
	t.redistribute(parent.n, idx, isRight, cur.n, sib)
	err1 := t.writeNode(cur.wg, cur.n)
	err2 := t.writeNode(sibWG, sib)
	cur.wg.Drop()
	sibWG.Drop()
	if err1 != nil {
		return false, err1
	}
	return false, err2
}

// mergeSiblings folds cur and its sibling into a single surviving page and
// drops the parent's now-vanished child entry.
func (t *BPlusTree) mergeSiblings(parent *guardedNode, idx int, isRight bool, cur *guardedNode, sibWG *buffer.WriteGuard, sib *node) error {
	if isRight {
		// cur (left) absorbs sib (right); separator between them is keys[idx].
		mergeInto(cur.n, sib, parent.n.keys[idx])
		err := t.writeNode(cur.wg, cur.n)
		cur.wg.Drop()
		sibWG.Drop()
		if err != nil {
			return err
		}
		if err := t.bpm.DeletePage(parent.n.children[idx+1]); err != nil {
			return errors.Wrap(err, "bplustree: delete merged sibling")
		}
		parent.n.keys = removeAt(parent.n.keys, idx)
		parent.n.children = removeAt(parent.n.children, idx+1)
		return nil
	}

	// sib (left) absorbs cur (right); separator is keys[idx-1].
	mergeInto(sib, cur.n, parent.n.keys[idx-1])
	err := t.writeNode(sibWG, sib)
	curID := cur.id
	cur.wg.Drop()
	sibWG.Drop()
	if err != nil {
		return err
	}
	if err := t.bpm.DeletePage(curID); err != nil {
		return errors.Wrap(err, "bplustree: delete merged node")
	}
	parent.n.keys = removeAt(parent.n.keys, idx-1)
	parent.n.children = removeAt(parent.n.children, idx)
	return nil
}

// mergeInto appends right's entries onto left. sepKey is the parent
// separator between them, pulled down as left's new last key for internal
// merges (leaves have no separator to pull down; their keys are already
// contiguous).
func mergeInto(left, right *node, sepKey []byte) {
	if left.kind == leafNode {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.next = right.next
		return
	}
	left.keys = append(left.keys, sepKey)
	left.keys = append(left.keys, right.keys...)
	left.children = append(left.children, right.children...)
}

// redistribute moves one entry from sib to cur to relieve cur's underflow,
// updating the single separator key in parent that the move invalidates.
func (t *BPlusTree) redistribute(parent *node, idx int, isRight bool, cur, sib *node) {
	if cur.kind == leafNode {
		if isRight {
			cur.keys = append(cur.keys, sib.keys[0])
			cur.values = append(cur.values, sib.values[0])
			sib.keys = removeAt(sib.keys, 0)
			sib.values = removeAt(sib.values, 0)
			parent.keys[idx] = sib.keys[0]
		} else {
			last := len(sib.keys) - 1
			cur.keys = insertAt(cur.keys, 0, sib.keys[last])
			cur.values = insertAt(cur.values, 0, sib.values[last])
			sib.keys = sib.keys[:last]
			sib.values = sib.values[:last]
			parent.keys[idx-1] = cur.keys[0]
		}
		return
	}

	if isRight {
		cur.keys = append(cur.keys, parent.keys[idx])
		cur.children = append(cur.children, sib.children[0])
		parent.keys[idx] = sib.keys[0]
		sib.keys = removeAt(sib.keys, 0)
		sib.children = removeAt(sib.children, 0)
	} else {
		lastKey := len(sib.keys) - 1
		lastChild := len(sib.children) - 1
		cur.keys = insertAt(cur.keys, 0, parent.keys[idx-1])
		cur.children = insertAt(cur.children, 0, sib.children[lastChild])
		parent.keys[idx-1] = sib.keys[lastKey]
		sib.keys = sib.keys[:lastKey]
		sib.children = sib.children[:lastChild]
	}
}
