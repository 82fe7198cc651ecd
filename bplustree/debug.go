package bplustree

import (
	"fmt"
	"io"

	"coredb/page"
)

// Dump writes a human-readable tree walk to w: one line per node, indented
// by depth, showing page id, kind, key count, and (for leaves) the next
// pointer. Read-latches each page only for the duration of printing it and
// drops that latch before visiting the children, so unlike GetValue's
// crabbing descent the walk is not a consistent snapshot under concurrent
// writes.
//
// Grounded on the teacher's bplustree/inspect.go ("print a human-readable
// dump of a primary key index"), rewritten against coredb's own page/guard
// types instead of that package's in-memory node pointers.
func (t *BPlusTree) Dump(w io.Writer) error {
	root := t.readRoot()
	fmt.Fprintf(w, "header_page=%d root_page=%d leaf_max=%d internal_max=%d\n",
		int64(t.headerPageID), int64(root), t.leafMax, t.internalMax)
	if root == page.InvalidID {
		fmt.Fprintln(w, "(empty)")
		return nil
	}
	return t.dumpNode(w, root, 0)
}

func (t *BPlusTree) dumpNode(w io.Writer, id page.ID, depth int) error {
	g, err := t.bpm.FetchPageRead(id)
	if err != nil {
		return err
	}
	n := decodeNode(g.As())
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}

	if n.kind == leafNode {
		fmt.Fprintf(w, "%sleaf   page=%d size=%d keys=%v next=%d\n",
			indent, int64(id), n.size(), n.keys, int64(n.next))
		g.Drop()
		return nil
	}

	children := append([]page.ID(nil), n.children...)
	fmt.Fprintf(w, "%sinternal page=%d size=%d keys=%v\n", indent, int64(id), n.size(), n.keys)
	g.Drop()

	for _, c := range children {
		if err := t.dumpNode(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}
