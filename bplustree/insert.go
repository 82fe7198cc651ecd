package bplustree

import (
	"github.com/pkg/errors"

	"coredb/buffer"
	"coredb/dberrors"
	"coredb/page"
)

// Insert adds key->value, reporting false with dberrors.ErrDuplicateKey if
// key is already present (spec.md §4.4 step 2: "If the key already exists
// -> fail with DuplicateKey").
func (t *BPlusTree) Insert(key, value []byte) (bool, error) {
	root := t.readRoot()
	if root == page.InvalidID {
		ok, err := t.insertIntoEmptyTree(key, value)
		if err != nil || ok {
			return ok, err
		}
		root = t.readRoot() // lost the race; another inserter created the root
	}

	path, leaf, err := t.descendForWrite(root, key, func(n *node) bool {
		return n.size() < t.maxSizeFor(n)
	})
	if err != nil {
		return false, err
	}

	if idx := leaf.n.findKeyIndex(key, t.cmp); idx >= 0 {
		leaf.wg.Drop()
		releasePath(path)
		return false, errors.WithStack(dberrors.ErrDuplicateKey)
	}

	pos := leaf.n.insertPosition(key, t.cmp)
	leaf.n.keys = insertAt(leaf.n.keys, pos, append([]byte(nil), key...))
	leaf.n.values = insertAt(leaf.n.values, pos, append([]byte(nil), value...))

	if leaf.n.size() <= t.leafMax {
		if err := t.writeNode(leaf.wg, leaf.n); err != nil {
			leaf.wg.Drop()
			releasePath(path)
			return false, err
		}
		leaf.wg.Drop()
		releasePath(path)
		return true, nil
	}

	return true, t.splitLeafUpward(path, leaf)
}

// insertIntoEmptyTree serializes concurrent first-inserts through the
// header page's own write latch (spec.md §4.4: "a single header-page write
// latch protects the root pointer during any operation that may change
// it"), so only one goroutine racing in with root == InvalidID actually
// allocates the root leaf.
func (t *BPlusTree) insertIntoEmptyTree(key, value []byte) (bool, error) {
	hg, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, errors.Wrap(err, "bplustree: fetch header page")
	}
	defer hg.Drop()

	if readHeaderRoot(hg.As()) != page.InvalidID {
		return false, nil // someone else built the root first
	}

	leafWG, err := t.bpm.NewPage()
	if err != nil {
		return false, errors.Wrap(err, "bplustree: allocate root leaf")
	}
	n := &node{
		kind:   leafNode,
		keys:   [][]byte{append([]byte(nil), key...)},
		values: [][]byte{append([]byte(nil), value...)},
		next:   page.InvalidID,
	}
	if err := t.writeNode(leafWG, n); err != nil {
		leafWG.Drop()
		return false, err
	}
	newRoot := leafWG.PageID()
	leafWG.Drop()

	writeHeaderRoot(hg, newRoot)
	t.setRoot(newRoot)
	return true, nil
}

// splitLeafUpward splits an overflowed leaf (spec.md §4.4 step 3-5: split,
// allocate a right sibling, move the upper half, fix the next_page_id
// chain, promote the right sibling's first key) and propagates the new
// separator up the held ancestor path.
//
// If the leaf being split is itself the root (path empty), the header
// write guard is acquired before the leaf's own guard is dropped and held
// through updateRootLocked, so a concurrent reader can never observe the
// header still pointing at the old root page after its content has
// already been split across two new pages.
func (t *BPlusTree) splitLeafUpward(path []*guardedNode, leaf *guardedNode) error {
	mid := leaf.n.size() / 2
	isRoot := len(path) == 0

	rightWG, err := t.bpm.NewPage()
	if err != nil {
		leaf.wg.Drop()
		releasePath(path)
		return errors.Wrap(err, "bplustree: allocate right sibling")
	}
	right := &node{
		kind:   leafNode,
		keys:   append([][]byte(nil), leaf.n.keys[mid:]...),
		values: append([][]byte(nil), leaf.n.values[mid:]...),
		next:   leaf.n.next,
	}
	leaf.n.keys = leaf.n.keys[:mid]
	leaf.n.values = leaf.n.values[:mid]
	leaf.n.next = rightWG.PageID()

	var hg *buffer.WriteGuard
	if isRoot {
		hg, err = t.bpm.FetchPageWrite(t.headerPageID)
		if err != nil {
			leaf.wg.Drop()
			rightWG.Drop()
			return errors.Wrap(err, "bplustree: fetch header page")
		}
	}

	if err := t.writeNode(leaf.wg, leaf.n); err != nil {
		if hg != nil {
			hg.Drop()
		}
		leaf.wg.Drop()
		rightWG.Drop()
		releasePath(path)
		return err
	}
	if err := t.writeNode(rightWG, right); err != nil {
		if hg != nil {
			hg.Drop()
		}
		leaf.wg.Drop()
		rightWG.Drop()
		releasePath(path)
		return err
	}

	leftID := leaf.id
	promoted := append([]byte(nil), right.keys[0]...)
	rightID := rightWG.PageID()
	leaf.wg.Drop()
	rightWG.Drop()

	if isRoot {
		return t.createNewRootLocked(hg, leftID, promoted, rightID)
	}
	return t.propagateSplit(path, leftID, promoted, rightID)
}

// propagateSplit inserts (sepKey, rightID) into the deepest still-held
// ancestor; if that overflows it splits again and keeps propagating, same
// shape as the teacher's insertIntoParent/splitInternal pair, rewritten as
// a while-loop over the path stack (spec.md §9: "model split and merge as
// while-loops driven by the path stack... not recursion on page pointers").
//
// When the ancestor being split is itself the root (path is empty after
// popping it), the header write guard is taken before that ancestor's own
// guard is dropped and held through createNewRootLocked/updateRootLocked,
// for the same reason splitLeafUpward does when the root is a leaf.
func (t *BPlusTree) propagateSplit(path []*guardedNode, leftID page.ID, sepKey []byte, rightID page.ID) error {
	for len(path) > 0 {
		parent := path[len(path)-1]
		path = path[:len(path)-1]
		isRoot := len(path) == 0

		idx := parent.n.childIndexOf(leftID)
		parent.n.keys = insertAt(parent.n.keys, idx, sepKey)
		parent.n.children = insertAt(parent.n.children, idx+1, rightID)

		if parent.n.size() <= t.internalMax {
			err := t.writeNode(parent.wg, parent.n)
			parent.wg.Drop()
			releasePath(path)
			return err
		}

		var hg *buffer.WriteGuard
		var err error
		if isRoot {
			hg, err = t.bpm.FetchPageWrite(t.headerPageID)
			if err != nil {
				parent.wg.Drop()
				releasePath(path)
				return errors.Wrap(err, "bplustree: fetch header page")
			}
		}

		mid := parent.n.size() / 2
		newWG, err := t.bpm.NewPage()
		if err != nil {
			if hg != nil {
				hg.Drop()
			}
			parent.wg.Drop()
			releasePath(path)
			return errors.Wrap(err, "bplustree: allocate internal sibling")
		}
		newRight := &node{
			kind:     internalNode,
			keys:     append([][]byte(nil), parent.n.keys[mid+1:]...),
			children: append([]page.ID(nil), parent.n.children[mid+1:]...),
		}
		promoted := append([]byte(nil), parent.n.keys[mid]...)
		parent.n.keys = parent.n.keys[:mid]
		parent.n.children = parent.n.children[:mid+1]

		if err := t.writeNode(parent.wg, parent.n); err != nil {
			if hg != nil {
				hg.Drop()
			}
			parent.wg.Drop()
			newWG.Drop()
			releasePath(path)
			return err
		}
		if err := t.writeNode(newWG, newRight); err != nil {
			if hg != nil {
				hg.Drop()
			}
			parent.wg.Drop()
			newWG.Drop()
			releasePath(path)
			return err
		}

		leftID = parent.id
		sepKey = promoted
		rightID = newWG.PageID()
		parent.wg.Drop()
		newWG.Drop()

		if isRoot {
			return t.createNewRootLocked(hg, leftID, sepKey, rightID)
		}
	}

	// Unreachable: propagateSplit's only caller (splitLeafUpward) passes a
	// non-empty path, and every iteration above returns before the loop
	// condition can fail naturally. Kept as a safe fallback rather than a
	// panic.
	return t.createNewRoot(leftID, sepKey, rightID)
}

// createNewRoot handles a root split: a fresh internal page with the two
// halves as children, installed via updateRoot under the header latch.
func (t *BPlusTree) createNewRoot(leftID page.ID, sepKey []byte, rightID page.ID) error {
	rg, err := t.bpm.NewPage()
	if err != nil {
		return errors.Wrap(err, "bplustree: allocate new root")
	}
	n := &node{
		kind:     internalNode,
		keys:     [][]byte{sepKey},
		children: []page.ID{leftID, rightID},
	}
	if err := t.writeNode(rg, n); err != nil {
		rg.Drop()
		return err
	}
	newRootID := rg.PageID()
	rg.Drop()
	return t.updateRoot(newRootID)
}

// createNewRootLocked is createNewRoot for a caller that already holds the
// header write guard (acquired before the old root's own guard was
// dropped), passing it through to updateRootLocked instead of re-fetching.
func (t *BPlusTree) createNewRootLocked(hg *buffer.WriteGuard, leftID page.ID, sepKey []byte, rightID page.ID) error {
	rg, err := t.bpm.NewPage()
	if err != nil {
		hg.Drop()
		return errors.Wrap(err, "bplustree: allocate new root")
	}
	n := &node{
		kind:     internalNode,
		keys:     [][]byte{sepKey},
		children: []page.ID{leftID, rightID},
	}
	if err := t.writeNode(rg, n); err != nil {
		rg.Drop()
		hg.Drop()
		return err
	}
	newRootID := rg.PageID()
	rg.Drop()
	return t.updateRootLocked(hg, newRootID)
}
