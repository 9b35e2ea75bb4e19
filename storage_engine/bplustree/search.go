package bplustree

import "DaemonDB/common"

// GetValue descends from the root, binary-searching each internal page for
// the child to follow and the leaf for an exact match. Returns ok=false on
// a miss — per §7 this is a plain negative result, never an error.
func (t *BPlusTree) GetValue(key []byte) (common.RID, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	root, err := t.getRoot()
	if err != nil {
		return 0, false, err
	}
	if root == common.InvalidPageID {
		return 0, false, nil
	}

	pageID := root
	for {
		n, guard, err := t.fetchNodeRead(pageID)
		if err != nil {
			return 0, false, err
		}
		if n.isLeaf() {
			idx := binarySearch(n.keys, key, t.cmp)
			guard.Drop()
			if idx == -1 {
				return 0, false, nil
			}
			return n.values[idx], true, nil
		}
		next := n.children[childIndex(n.keys, key, t.cmp)]
		guard.Drop()
		pageID = next
	}
}
