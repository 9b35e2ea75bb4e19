// Package bplustree implements a disk-resident, concurrent B+-tree index
// accessed exclusively through the buffer pool via scoped page guards, as
// the component design requires. Keys are ordered by an external
// comparator; leaf values are RIDs — opaque 64-bit tuple locators.
package bplustree

import (
	"encoding/binary"
	"sync"

	"DaemonDB/common"
	"DaemonDB/storage_engine/bufferpool"
)

// BPlusTree is a single named index. Its pages live in the same buffer
// pool (and therefore the same backing file) as every other page in the
// engine — per §6 there is one backing file, not one per index.
type BPlusTree struct {
	mu sync.RWMutex

	bp              *bufferpool.BufferPool
	cmp             common.Comparator
	headerPageID    common.PageID
	leafMaxSize     int
	internalMaxSize int
}

func minSize(maxSize int) int {
	return (maxSize + 1) / 2
}

// NewBPlusTree allocates a fresh tree header page (root = InvalidPageID)
// and returns a tree with no entries.
func NewBPlusTree(bp *bufferpool.BufferPool, cmp common.Comparator, leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	guard, err := bp.NewPageGuarded()
	if err != nil {
		return nil, err
	}
	writeHeaderRoot(guard.Page().Data, common.InvalidPageID)
	guard.MarkDirty()
	headerPageID := guard.PageID()
	guard.Drop()

	return &BPlusTree{
		bp:              bp,
		cmp:             cmp,
		headerPageID:    headerPageID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}, nil
}

// OpenBPlusTree reattaches to a tree whose header page id is already known
// (e.g. recovered from a catalog the engine's caller owns — catalog
// persistence itself is out of scope here).
func OpenBPlusTree(bp *bufferpool.BufferPool, cmp common.Comparator, headerPageID common.PageID, leafMaxSize, internalMaxSize int) *BPlusTree {
	return &BPlusTree{
		bp:              bp,
		cmp:             cmp,
		headerPageID:    headerPageID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}
}

// HeaderPageID exposes the tree header page's id so a catalog layer above
// this package can persist it.
func (t *BPlusTree) HeaderPageID() common.PageID { return t.headerPageID }

func writeHeaderRoot(data []byte, root common.PageID) {
	binary.LittleEndian.PutUint64(data[0:], uint64(root))
}

func readHeaderRoot(data []byte) common.PageID {
	return common.PageID(binary.LittleEndian.Uint64(data[0:]))
}

func (t *BPlusTree) getRoot() (common.PageID, error) {
	guard, err := t.bp.FetchPageRead(t.headerPageID)
	if err != nil {
		return common.InvalidPageID, err
	}
	defer guard.Drop()
	return readHeaderRoot(guard.Page().Data), nil
}

func (t *BPlusTree) setRoot(root common.PageID) error {
	guard, err := t.bp.FetchPageWrite(t.headerPageID)
	if err != nil {
		return err
	}
	defer guard.Drop()
	writeHeaderRoot(guard.Page().Data, root)
	guard.MarkDirty()
	return nil
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree) IsEmpty() (bool, error) {
	root, err := t.getRoot()
	if err != nil {
		return false, err
	}
	return root == common.InvalidPageID, nil
}

// fetchNodeRead pins+read-latches pageID and decodes it.
func (t *BPlusTree) fetchNodeRead(pageID common.PageID) (*node, *bufferpool.ReadPageGuard, error) {
	guard, err := t.bp.FetchPageRead(pageID)
	if err != nil {
		return nil, nil, err
	}
	n, err := decodeNode(pageID, guard.Page().Data)
	if err != nil {
		guard.Drop()
		return nil, nil, err
	}
	return n, guard, nil
}

// fetchNodeWrite pins+write-latches pageID and decodes it.
func (t *BPlusTree) fetchNodeWrite(pageID common.PageID) (*node, *bufferpool.WritePageGuard, error) {
	guard, err := t.bp.FetchPageWrite(pageID)
	if err != nil {
		return nil, nil, err
	}
	n, err := decodeNode(pageID, guard.Page().Data)
	if err != nil {
		guard.Drop()
		return nil, nil, err
	}
	return n, guard, nil
}

// putNode encodes n back into its guarded page and marks it dirty. The
// guard's own Drop (by the caller, typically via defer) releases the pin
// and latch.
func (t *BPlusTree) putNode(n *node, guard *bufferpool.WritePageGuard) error {
	if err := n.encode(guard.Page().Data); err != nil {
		return err
	}
	guard.MarkDirty()
	return nil
}

// allocLeaf (and allocInternal below) allocates a fresh page, writes the
// new node's initial (empty) state into
// it immediately so it is never garbage on eviction, and returns it
// write-guarded for the caller to populate further.
func (t *BPlusTree) allocLeaf() (*node, *bufferpool.WritePageGuard, error) {
	guard, err := t.bp.NewPageGuarded()
	if err != nil {
		return nil, nil, err
	}
	wg, err := guard.UpgradeWrite()
	if err != nil {
		return nil, nil, err
	}
	n := newLeafNode(wg.PageID())
	if err := t.putNode(n, wg); err != nil {
		wg.Drop()
		return nil, nil, err
	}
	return n, wg, nil
}

func (t *BPlusTree) allocInternal() (*node, *bufferpool.WritePageGuard, error) {
	guard, err := t.bp.NewPageGuarded()
	if err != nil {
		return nil, nil, err
	}
	wg, err := guard.UpgradeWrite()
	if err != nil {
		return nil, nil, err
	}
	n := newInternalNode(wg.PageID())
	if err := t.putNode(n, wg); err != nil {
		wg.Drop()
		return nil, nil, err
	}
	return n, wg, nil
}

// Close flushes every page this tree's buffer pool holds. Since the pool is
// shared with the rest of the engine this is a coarse convenience, useful
// for standalone tree tests.
func (t *BPlusTree) Close() error {
	return t.bp.FlushAllPages()
}
