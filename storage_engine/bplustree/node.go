package bplustree

import (
	"encoding/binary"

	"DaemonDB/common"
	"DaemonDB/dberrors"
	"DaemonDB/storage_engine/page"
)

type nodeKind uint8

const (
	internalKind nodeKind = 0
	leafKind     nodeKind = 1
)

// maxKeyLen bounds a single key's encoded length. With every key at
// maxKeyLen bytes, a page holds at most 15 keys plus their child pointers
// or values; encode reports a page overflow beyond that. Generous enough for typical index keys
// (integers, short strings) without making the header's numKeys field do
// any more bookkeeping than a uint16.
const maxKeyLen = 256

// headerSize is the fixed-width prefix common to every page this package
// writes: kind, key count, and (for leaves) the sibling links.
const headerSize = 1 + 2 + 8 + 8

const (
	offKind     = 0
	offNumKeys  = 1
	offPrevNext = 3 // prev at [3:11), next at [11:19)
)

// node is the in-memory, decoded form of one B+-tree page. It never carries
// a parent pointer — per the component design's resolved open question,
// ancestry during a structural operation is tracked on the call stack via
// a []pathEntry slice, not persisted on-page.
type node struct {
	pageID common.PageID
	kind   nodeKind

	keys     [][]byte
	children []common.PageID // internal only; len(children) == len(keys)+1
	values   []common.RID    // leaf only; len(values) == len(keys)

	prev, next common.PageID // leaf only
}

func newLeafNode(pageID common.PageID) *node {
	return &node{pageID: pageID, kind: leafKind, prev: common.InvalidPageID, next: common.InvalidPageID}
}

func newInternalNode(pageID common.PageID) *node {
	return &node{pageID: pageID, kind: internalKind}
}

func (n *node) isLeaf() bool { return n.kind == leafKind }

func (n *node) size() int {
	if n.isLeaf() {
		return len(n.keys)
	}
	return len(n.keys)
}

// encode serializes n into data, which must be exactly page.PageSize bytes.
func (n *node) encode(data []byte) error {
	if len(data) != page.PageSize {
		return dberrors.Newf(dberrors.IOFailure, "node encode: buffer must be %d bytes", page.PageSize)
	}
	for i := range data {
		data[i] = 0
	}

	data[offKind] = byte(n.kind)
	binary.LittleEndian.PutUint16(data[offNumKeys:], uint16(len(n.keys)))
	if n.isLeaf() {
		binary.LittleEndian.PutUint64(data[offPrevNext:], uint64(n.prev))
		binary.LittleEndian.PutUint64(data[offPrevNext+8:], uint64(n.next))
	}

	offset := headerSize
	for _, key := range n.keys {
		if len(key) > maxKeyLen {
			return dberrors.Newf(dberrors.IOFailure, "key too long: %d > %d", len(key), maxKeyLen)
		}
		if offset+2+len(key) > page.PageSize {
			return dberrors.New(dberrors.IOFailure, "node encode: page overflow writing keys")
		}
		binary.LittleEndian.PutUint16(data[offset:], uint16(len(key)))
		offset += 2
		copy(data[offset:], key)
		offset += len(key)
	}

	if n.isLeaf() {
		for _, rid := range n.values {
			if offset+8 > page.PageSize {
				return dberrors.New(dberrors.IOFailure, "node encode: page overflow writing values")
			}
			binary.LittleEndian.PutUint64(data[offset:], uint64(rid))
			offset += 8
		}
	} else {
		for _, child := range n.children {
			if offset+8 > page.PageSize {
				return dberrors.New(dberrors.IOFailure, "node encode: page overflow writing children")
			}
			binary.LittleEndian.PutUint64(data[offset:], uint64(child))
			offset += 8
		}
	}
	return nil
}

// decode reconstructs a node from a page's raw bytes. pageID is supplied by
// the caller (the page table already knows it); it is not re-derived from
// the bytes.
func decodeNode(pageID common.PageID, data []byte) (*node, error) {
	if len(data) != page.PageSize {
		return nil, dberrors.Newf(dberrors.IOFailure, "node decode: buffer must be %d bytes", page.PageSize)
	}
	n := &node{pageID: pageID}
	n.kind = nodeKind(data[offKind])
	numKeys := int(binary.LittleEndian.Uint16(data[offNumKeys:]))

	if n.isLeaf() {
		n.prev = common.PageID(binary.LittleEndian.Uint64(data[offPrevNext:]))
		n.next = common.PageID(binary.LittleEndian.Uint64(data[offPrevNext+8:]))
	}

	offset := headerSize
	n.keys = make([][]byte, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		if offset+2 > page.PageSize {
			return nil, dberrors.New(dberrors.IOFailure, "node decode: page overflow reading key length")
		}
		keyLen := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+keyLen > page.PageSize {
			return nil, dberrors.New(dberrors.IOFailure, "node decode: page overflow reading key")
		}
		key := make([]byte, keyLen)
		copy(key, data[offset:offset+keyLen])
		offset += keyLen
		n.keys = append(n.keys, key)
	}

	if n.isLeaf() {
		n.values = make([]common.RID, 0, numKeys)
		for i := 0; i < numKeys; i++ {
			if offset+8 > page.PageSize {
				return nil, dberrors.New(dberrors.IOFailure, "node decode: page overflow reading value")
			}
			n.values = append(n.values, common.RID(binary.LittleEndian.Uint64(data[offset:])))
			offset += 8
		}
	} else {
		n.children = make([]common.PageID, 0, numKeys+1)
		for i := 0; i <= numKeys; i++ {
			if offset+8 > page.PageSize {
				return nil, dberrors.New(dberrors.IOFailure, "node decode: page overflow reading child")
			}
			n.children = append(n.children, common.PageID(binary.LittleEndian.Uint64(data[offset:])))
			offset += 8
		}
	}
	return n, nil
}
