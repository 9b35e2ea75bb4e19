package bplustree

import (
	"DaemonDB/common"
	"DaemonDB/storage_engine/bufferpool"
)

// Remove deletes key if present. Absence is a plain no-op, not an error.
func (t *BPlusTree) Remove(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	root, err := t.getRoot()
	if err != nil {
		return err
	}
	if root == common.InvalidPageID {
		return nil
	}

	var path []pathEntry
	pageID := root
	for {
		n, guard, err := t.fetchNodeWrite(pageID)
		if err != nil {
			return err
		}
		if n.isLeaf() {
			return t.removeFromLeaf(n, guard, key, path)
		}
		idx := childIndex(n.keys, key, t.cmp)
		path = append(path, pathEntry{pageID: pageID, childIdx: idx})
		next := n.children[idx]
		guard.Drop()
		pageID = next
	}
}

func (t *BPlusTree) removeFromLeaf(leaf *node, guard *bufferpool.WritePageGuard, key []byte, path []pathEntry) error {
	idx := binarySearch(leaf.keys, key, t.cmp)
	if idx == -1 {
		guard.Drop()
		return nil
	}
	leaf.keys = removeAt(leaf.keys, idx)
	leaf.values = removeAt(leaf.values, idx)

	isRoot := len(path) == 0
	if isRoot {
		if err := t.putNode(leaf, guard); err != nil {
			guard.Drop()
			return err
		}
		guard.Drop()
		if len(leaf.keys) == 0 {
			return t.setRoot(common.InvalidPageID)
		}
		return nil
	}

	if len(leaf.keys) >= minSize(t.leafMaxSize) {
		if err := t.putNode(leaf, guard); err != nil {
			guard.Drop()
			return err
		}
		guard.Drop()
		return nil
	}

	return t.rebalanceLeaf(leaf, guard, path)
}

// rebalanceLeaf handles an underflowed, non-root leaf: borrow from a
// sibling that can spare an entry, else merge with one, then propagate the
// resulting parent change (a rewritten separator, or a removed separator
// and child) up the path.
func (t *BPlusTree) rebalanceLeaf(leaf *node, leafGuard *bufferpool.WritePageGuard, path []pathEntry) error {
	top := path[len(path)-1]
	parent, parentGuard, err := t.fetchNodeWrite(top.pageID)
	if err != nil {
		leafGuard.Drop()
		return err
	}
	idx := top.childIdx

	if idx > 0 {
		leftID := parent.children[idx-1]
		left, leftGuard, err := t.fetchNodeWrite(leftID)
		if err != nil {
			leafGuard.Drop()
			parentGuard.Drop()
			return err
		}
		if len(left.keys) > minSize(t.leafMaxSize) {
			n := len(left.keys)
			borrowKey := left.keys[n-1]
			borrowVal := left.values[n-1]
			left.keys = left.keys[:n-1]
			left.values = left.values[:n-1]
			leaf.keys = insertAt(leaf.keys, 0, borrowKey)
			leaf.values = insertAt(leaf.values, 0, borrowVal)
			parent.keys[idx-1] = append([]byte(nil), leaf.keys[0]...)

			if err := t.putNode(left, leftGuard); err != nil {
				leftGuard.Drop()
				leafGuard.Drop()
				parentGuard.Drop()
				return err
			}
			leftGuard.Drop()
			if err := t.putNode(leaf, leafGuard); err != nil {
				leafGuard.Drop()
				parentGuard.Drop()
				return err
			}
			leafGuard.Drop()
			return t.finishParentUpdate(parent, parentGuard, path[:len(path)-1])
		}
		leftGuard.Drop()
	}

	if idx < len(parent.children)-1 {
		rightID := parent.children[idx+1]
		right, rightGuard, err := t.fetchNodeWrite(rightID)
		if err != nil {
			leafGuard.Drop()
			parentGuard.Drop()
			return err
		}
		if len(right.keys) > minSize(t.leafMaxSize) {
			borrowKey := right.keys[0]
			borrowVal := right.values[0]
			right.keys = right.keys[1:]
			right.values = right.values[1:]
			leaf.keys = append(leaf.keys, borrowKey)
			leaf.values = append(leaf.values, borrowVal)
			parent.keys[idx] = append([]byte(nil), right.keys[0]...)

			if err := t.putNode(right, rightGuard); err != nil {
				rightGuard.Drop()
				leafGuard.Drop()
				parentGuard.Drop()
				return err
			}
			rightGuard.Drop()
			if err := t.putNode(leaf, leafGuard); err != nil {
				leafGuard.Drop()
				parentGuard.Drop()
				return err
			}
			leafGuard.Drop()
			return t.finishParentUpdate(parent, parentGuard, path[:len(path)-1])
		}
		rightGuard.Drop()
	}

	// No sibling can spare an entry — merge.
	if idx > 0 {
		leftID := parent.children[idx-1]
		left, leftGuard, err := t.fetchNodeWrite(leftID)
		if err != nil {
			leafGuard.Drop()
			parentGuard.Drop()
			return err
		}
		left.keys = append(left.keys, leaf.keys...)
		left.values = append(left.values, leaf.values...)
		left.next = leaf.next
		if leaf.next != common.InvalidPageID {
			if err := t.fixPrevLink(leaf.next, left.pageID); err != nil {
				leftGuard.Drop()
				leafGuard.Drop()
				parentGuard.Drop()
				return err
			}
		}
		if err := t.putNode(left, leftGuard); err != nil {
			leftGuard.Drop()
			leafGuard.Drop()
			parentGuard.Drop()
			return err
		}
		leftGuard.Drop()
		leafGuard.Drop()
		t.bp.DeletePage(leaf.pageID)

		parent.keys = removeAt(parent.keys, idx-1)
		parent.children = removeAt(parent.children, idx)
		return t.finishParentUpdate(parent, parentGuard, path[:len(path)-1])
	}

	// idx == 0: merge the right sibling into leaf.
	rightID := parent.children[idx+1]
	right, rightGuard, err := t.fetchNodeWrite(rightID)
	if err != nil {
		leafGuard.Drop()
		parentGuard.Drop()
		return err
	}
	leaf.keys = append(leaf.keys, right.keys...)
	leaf.values = append(leaf.values, right.values...)
	leaf.next = right.next
	if right.next != common.InvalidPageID {
		if err := t.fixPrevLink(right.next, leaf.pageID); err != nil {
			rightGuard.Drop()
			leafGuard.Drop()
			parentGuard.Drop()
			return err
		}
	}
	if err := t.putNode(leaf, leafGuard); err != nil {
		leafGuard.Drop()
		rightGuard.Drop()
		parentGuard.Drop()
		return err
	}
	leafGuard.Drop()
	rightGuard.Drop()
	t.bp.DeletePage(right.pageID)

	parent.keys = removeAt(parent.keys, idx)
	parent.children = removeAt(parent.children, idx+1)
	return t.finishParentUpdate(parent, parentGuard, path[:len(path)-1])
}

func (t *BPlusTree) fixPrevLink(ofNode common.PageID, newPrev common.PageID) error {
	nn, nng, err := t.fetchNodeWrite(ofNode)
	if err != nil {
		return err
	}
	nn.prev = newPrev
	if err := t.putNode(nn, nng); err != nil {
		nng.Drop()
		return err
	}
	nng.Drop()
	return nil
}

// finishParentUpdate persists parent after a borrow (no size change) or a
// merge (one fewer key/child). A root left with zero keys but one child
// collapses; a non-root underflow rebalances recursively; otherwise the
// parent is simply written back.
func (t *BPlusTree) finishParentUpdate(parent *node, guard *bufferpool.WritePageGuard, ancestorPath []pathEntry) error {
	isRoot := len(ancestorPath) == 0

	if isRoot {
		if len(parent.keys) == 0 && len(parent.children) == 1 {
			onlyChild := parent.children[0]
			guard.Drop()
			t.bp.DeletePage(parent.pageID)
			return t.setRoot(onlyChild)
		}
		if err := t.putNode(parent, guard); err != nil {
			guard.Drop()
			return err
		}
		guard.Drop()
		return nil
	}

	if len(parent.keys) >= minSize(t.internalMaxSize) {
		if err := t.putNode(parent, guard); err != nil {
			guard.Drop()
			return err
		}
		guard.Drop()
		return nil
	}

	return t.rebalanceInternal(parent, guard, ancestorPath)
}

// rebalanceInternal mirrors rebalanceLeaf for an underflowed internal node:
// borrow a (key, child) pair by rotating a separator through the
// grandparent, else merge with a sibling by pulling the grandparent's
// separator down.
func (t *BPlusTree) rebalanceInternal(node *node, nodeGuard *bufferpool.WritePageGuard, path []pathEntry) error {
	top := path[len(path)-1]
	parent, parentGuard, err := t.fetchNodeWrite(top.pageID)
	if err != nil {
		nodeGuard.Drop()
		return err
	}
	idx := top.childIdx

	if idx > 0 {
		leftID := parent.children[idx-1]
		left, leftGuard, err := t.fetchNodeWrite(leftID)
		if err != nil {
			nodeGuard.Drop()
			parentGuard.Drop()
			return err
		}
		if len(left.keys) > minSize(t.internalMaxSize) {
			sep := parent.keys[idx-1]
			movedChild := left.children[len(left.children)-1]
			node.keys = insertAt(node.keys, 0, sep)
			node.children = insertAt(node.children, 0, movedChild)

			n := len(left.keys)
			newSep := left.keys[n-1]
			left.keys = left.keys[:n-1]
			left.children = left.children[:len(left.children)-1]
			parent.keys[idx-1] = newSep

			if err := t.putNode(left, leftGuard); err != nil {
				leftGuard.Drop()
				nodeGuard.Drop()
				parentGuard.Drop()
				return err
			}
			leftGuard.Drop()
			if err := t.putNode(node, nodeGuard); err != nil {
				nodeGuard.Drop()
				parentGuard.Drop()
				return err
			}
			nodeGuard.Drop()
			return t.finishParentUpdate(parent, parentGuard, path[:len(path)-1])
		}
		leftGuard.Drop()
	}

	if idx < len(parent.children)-1 {
		rightID := parent.children[idx+1]
		right, rightGuard, err := t.fetchNodeWrite(rightID)
		if err != nil {
			nodeGuard.Drop()
			parentGuard.Drop()
			return err
		}
		if len(right.keys) > minSize(t.internalMaxSize) {
			sep := parent.keys[idx]
			movedChild := right.children[0]
			node.keys = append(node.keys, sep)
			node.children = append(node.children, movedChild)

			newSep := right.keys[0]
			right.keys = right.keys[1:]
			right.children = right.children[1:]
			parent.keys[idx] = newSep

			if err := t.putNode(right, rightGuard); err != nil {
				rightGuard.Drop()
				nodeGuard.Drop()
				parentGuard.Drop()
				return err
			}
			rightGuard.Drop()
			if err := t.putNode(node, nodeGuard); err != nil {
				nodeGuard.Drop()
				parentGuard.Drop()
				return err
			}
			nodeGuard.Drop()
			return t.finishParentUpdate(parent, parentGuard, path[:len(path)-1])
		}
		rightGuard.Drop()
	}

	// Merge. Prefer merging into the left sibling when one exists.
	if idx > 0 {
		leftID := parent.children[idx-1]
		left, leftGuard, err := t.fetchNodeWrite(leftID)
		if err != nil {
			nodeGuard.Drop()
			parentGuard.Drop()
			return err
		}
		sep := parent.keys[idx-1]
		left.keys = append(left.keys, sep)
		left.keys = append(left.keys, node.keys...)
		left.children = append(left.children, node.children...)

		if err := t.putNode(left, leftGuard); err != nil {
			leftGuard.Drop()
			nodeGuard.Drop()
			parentGuard.Drop()
			return err
		}
		leftGuard.Drop()
		nodeGuard.Drop()
		t.bp.DeletePage(node.pageID)

		parent.keys = removeAt(parent.keys, idx-1)
		parent.children = removeAt(parent.children, idx)
		return t.finishParentUpdate(parent, parentGuard, path[:len(path)-1])
	}

	rightID := parent.children[idx+1]
	right, rightGuard, err := t.fetchNodeWrite(rightID)
	if err != nil {
		nodeGuard.Drop()
		parentGuard.Drop()
		return err
	}
	sep := parent.keys[idx]
	node.keys = append(node.keys, sep)
	node.keys = append(node.keys, right.keys...)
	node.children = append(node.children, right.children...)

	if err := t.putNode(node, nodeGuard); err != nil {
		nodeGuard.Drop()
		rightGuard.Drop()
		parentGuard.Drop()
		return err
	}
	nodeGuard.Drop()
	rightGuard.Drop()
	t.bp.DeletePage(right.pageID)

	parent.keys = removeAt(parent.keys, idx)
	parent.children = removeAt(parent.children, idx+1)
	return t.finishParentUpdate(parent, parentGuard, path[:len(path)-1])
}
