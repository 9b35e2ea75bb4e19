package bplustree

import "DaemonDB/common"

// binarySearch returns the index of key in keys, or -1 if absent.
func binarySearch(keys [][]byte, key []byte, cmp common.Comparator) int {
	lo, hi := 0, len(keys)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		c := cmp(keys[mid], key)
		switch {
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

// lowerBound returns the first index i such that keys[i] >= key, or
// len(keys) if every key is smaller. Used both for sorted insertion points
// and, on internal pages, to pick which child to descend into.
func lowerBound(keys [][]byte, key []byte, cmp common.Comparator) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(keys[mid], key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// childIndex picks which child of an internal node to descend into for
// key: the child just right of the last separator that is <= key (that
// separator's index plus one), or 0 if key precedes every separator.
// Internal node keys[i] is the separator between children[i] and
// children[i+1].
func childIndex(keys [][]byte, key []byte, cmp common.Comparator) int {
	i := lowerBound(keys, key, cmp)
	if i < len(keys) && cmp(keys[i], key) == 0 {
		return i + 1
	}
	return i
}

func insertAt[T any](slice []T, i int, elem T) []T {
	slice = append(slice, elem)
	copy(slice[i+1:], slice[i:])
	slice[i] = elem
	return slice
}

func removeAt[T any](slice []T, i int) []T {
	return append(slice[:i], slice[i+1:]...)
}
