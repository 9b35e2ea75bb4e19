package bplustree

import "DaemonDB/common"

// Iterator is a forward-only cursor over the leaf sibling chain. It does
// not hold a pin between calls — each dereference or advance read-latches
// the current leaf just long enough to read it, per the component design's
// "iterators read-latch the current leaf on dereference". End is
// represented by an invalid leaf id (page-id -1), matching §4.5.
type Iterator struct {
	tree  *BPlusTree
	leaf  common.PageID
	index int
}

// End returns an iterator already in the end position.
func (t *BPlusTree) End() *Iterator {
	return &Iterator{tree: t, leaf: common.InvalidPageID}
}

// Begin returns an iterator positioned at the first key in the tree.
func (t *BPlusTree) Begin() (*Iterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	root, err := t.getRoot()
	if err != nil {
		return nil, err
	}
	if root == common.InvalidPageID {
		return t.End(), nil
	}

	pageID := root
	for {
		n, guard, err := t.fetchNodeRead(pageID)
		if err != nil {
			return nil, err
		}
		if n.isLeaf() {
			guard.Drop()
			if len(n.keys) == 0 {
				return t.End(), nil
			}
			return &Iterator{tree: t, leaf: pageID, index: 0}, nil
		}
		next := n.children[0]
		guard.Drop()
		pageID = next
	}
}

// BeginAt returns an iterator positioned at the first key >= target.
func (t *BPlusTree) BeginAt(target []byte) (*Iterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	root, err := t.getRoot()
	if err != nil {
		return nil, err
	}
	if root == common.InvalidPageID {
		return t.End(), nil
	}

	pageID := root
	for {
		n, guard, err := t.fetchNodeRead(pageID)
		if err != nil {
			return nil, err
		}
		if n.isLeaf() {
			idx := lowerBound(n.keys, target, t.cmp)
			next := n.next
			guard.Drop()
			if idx < len(n.keys) {
				return &Iterator{tree: t, leaf: pageID, index: idx}, nil
			}
			if next == common.InvalidPageID {
				return t.End(), nil
			}
			return &Iterator{tree: t, leaf: next, index: 0}, nil
		}
		next := n.children[childIndex(n.keys, target, t.cmp)]
		guard.Drop()
		pageID = next
	}
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.leaf != common.InvalidPageID
}

// Key read-latches the current leaf and returns the key at the cursor.
func (it *Iterator) Key() ([]byte, error) {
	n, guard, err := it.tree.fetchNodeRead(it.leaf)
	if err != nil {
		return nil, err
	}
	defer guard.Drop()
	return n.keys[it.index], nil
}

// Value read-latches the current leaf and returns the RID at the cursor.
func (it *Iterator) Value() (common.RID, error) {
	n, guard, err := it.tree.fetchNodeRead(it.leaf)
	if err != nil {
		return 0, err
	}
	defer guard.Drop()
	return n.values[it.index], nil
}

// Next advances the cursor, crossing to the next leaf via next_page_id
// when the current leaf is exhausted. Returns false once it reaches End.
func (it *Iterator) Next() (bool, error) {
	if !it.Valid() {
		return false, nil
	}
	n, guard, err := it.tree.fetchNodeRead(it.leaf)
	if err != nil {
		return false, err
	}
	nextLeaf := n.next
	size := len(n.keys)
	guard.Drop()

	if it.index+1 < size {
		it.index++
		return true, nil
	}
	if nextLeaf == common.InvalidPageID {
		it.leaf = common.InvalidPageID
		return false, nil
	}
	it.leaf = nextLeaf
	it.index = 0
	return true, nil
}
