package bplustree

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"coredb/page"
)

type nodeType uint8

const (
	internalNode nodeType = iota
	leafNode
)

// node is the in-memory decoding of one B+-tree page: the common
// {type, size, max_size} header of spec.md §3, plus internal's
// (key, child_page_id) arrays or leaf's (key, value) arrays and
// next_page_id link. Internal nodes carry one fewer key than children
// (no stored sentinel at index 0 — children[i] holds every key in
// [keys[i-1], keys[i])), the representation the teacher's bplustree
// package uses.
type node struct {
	kind     nodeType
	maxSize  int
	keys     [][]byte
	children []page.ID // internal only, len(children) == len(keys)+1
	values   [][]byte  // leaf only, len(values) == len(keys)
	next     page.ID   // leaf only
}

func (n *node) size() int { return len(n.keys) }

// childFor returns the child page id whose subtree may contain key.
// children[i] holds [keys[i-1], keys[i]), so an exact match on keys[i]
// routes to the right subtree of that separator, children[i+1].
func (n *node) childFor(key []byte, cmp Comparator) page.ID {
	i := lowerBound(n.keys, key, cmp)
	if i < len(n.keys) && cmp(n.keys[i], key) == 0 {
		i++
	}
	return n.children[i]
}

// childIndexOf finds id's position among this internal node's children.
func (n *node) childIndexOf(id page.ID) int {
	for i, c := range n.children {
		if c == id {
			return i
		}
	}
	return -1
}

// findKeyIndex returns key's position, or -1 if absent.
func (n *node) findKeyIndex(key []byte, cmp Comparator) int {
	return binarySearch(n.keys, key, cmp)
}

// insertPosition returns where key belongs in sorted order.
func (n *node) insertPosition(key []byte, cmp Comparator) int {
	return lowerBound(n.keys, key, cmp)
}

// --- page codec ---
//
// Header (13 bytes): kind(1) | size uint16(2) | maxSize uint16(2) | next int64(8).
// Leaf body:     size * [ keyLen uint16 | key ], then size * [ valLen uint16 | val ]
// Internal body: size * [ keyLen uint16 | key ], then (size+1) * [ childID int64 ]

const nodeHeaderSize = 13

func encodeNode(n *node, buf []byte) error {
	buf[0] = byte(n.kind)
	binary.LittleEndian.PutUint16(buf[1:], uint16(len(n.keys)))
	binary.LittleEndian.PutUint16(buf[3:], uint16(n.maxSize))
	next := int64(page.InvalidID)
	if n.kind == leafNode {
		next = int64(n.next)
	}
	binary.LittleEndian.PutUint64(buf[5:], uint64(next))

	off := nodeHeaderSize
	for _, k := range n.keys {
		if off+2+len(k) > len(buf) {
			return errors.Errorf("bplustree: node overflows page (key)")
		}
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(k)))
		off += 2
		off += copy(buf[off:], k)
	}
	if n.kind == leafNode {
		for _, v := range n.values {
			if off+2+len(v) > len(buf) {
				return errors.Errorf("bplustree: node overflows page (value)")
			}
			binary.LittleEndian.PutUint16(buf[off:], uint16(len(v)))
			off += 2
			off += copy(buf[off:], v)
		}
	} else {
		for _, c := range n.children {
			if off+8 > len(buf) {
				return errors.Errorf("bplustree: node overflows page (child)")
			}
			binary.LittleEndian.PutUint64(buf[off:], uint64(int64(c)))
			off += 8
		}
	}
	for i := off; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func decodeNode(buf []byte) *node {
	n := &node{kind: nodeType(buf[0])}
	size := int(binary.LittleEndian.Uint16(buf[1:]))
	n.maxSize = int(binary.LittleEndian.Uint16(buf[3:]))
	n.next = page.ID(int64(binary.LittleEndian.Uint64(buf[5:])))

	off := nodeHeaderSize
	n.keys = make([][]byte, size)
	for i := 0; i < size; i++ {
		kl := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		n.keys[i] = append([]byte(nil), buf[off:off+kl]...)
		off += kl
	}
	if n.kind == leafNode {
		n.values = make([][]byte, size)
		for i := 0; i < size; i++ {
			vl := int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
			n.values[i] = append([]byte(nil), buf[off:off+vl]...)
			off += vl
		}
	} else {
		n.children = make([]page.ID, size+1)
		for i := 0; i <= size; i++ {
			n.children[i] = page.ID(int64(binary.LittleEndian.Uint64(buf[off:])))
			off += 8
		}
	}
	return n
}

// --- generic slice helpers, same shape as the teacher's binary_search.go ---

// binarySearch returns the index of target in keys, or -1 if absent.
func binarySearch(keys [][]byte, target []byte, cmp Comparator) int {
	lo, hi := 0, len(keys)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		switch c := cmp(keys[mid], target); {
		case c == 0:
			return mid
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}

// lowerBound returns the first index i with keys[i] >= target (len(keys) if none).
func lowerBound(keys [][]byte, target []byte, cmp Comparator) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func insertAt[T any](slice []T, i int, elem T) []T {
	var zero T
	slice = append(slice, zero)
	copy(slice[i+1:], slice[i:])
	slice[i] = elem
	return slice
}

func removeAt[T any](slice []T, i int) []T {
	return append(slice[:i], slice[i+1:]...)
}
