package bplustree

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"DaemonDB/common"
	diskmanager "DaemonDB/storage_engine/disk_manager"
	"DaemonDB/storage_engine/bufferpool"

	"github.com/stretchr/testify/require"
)

func intKey(n int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func newTestTree(t *testing.T, leafMax, internalMax int) *BPlusTree {
	t.Helper()
	dm, err := diskmanager.NewDiskManager(filepath.Join(t.TempDir(), "idx.db"))
	require.NoError(t, err)
	sched := diskmanager.NewDiskScheduler(dm, 16)
	t.Cleanup(sched.Shutdown)
	bp := bufferpool.NewBufferPool(64, 2, sched, diskmanager.NewLogManager())
	tree, err := NewBPlusTree(bp, common.ByteComparator, leafMax, internalMax)
	require.NoError(t, err)
	return tree
}

// Scenario 4: B+-tree split. leaf_max_size=4: insert 1,2,3,4 splits the
// leaf; inserting 5 goes to the right sibling; GetValue(3) still works;
// iteration yields 1..5 in order.
func TestBPlusTree_SplitOnOverflow(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	for i := 1; i <= 5; i++ {
		ok, err := tree.Insert(intKey(i), common.RID(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	v, found, err := tree.GetValue(intKey(3))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, common.RID(3), v)

	it, err := tree.Begin()
	require.NoError(t, err)
	var got []int
	for it.Valid() {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, int(binary.BigEndian.Uint64(k)))
		_, err = it.Next()
		require.NoError(t, err)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestBPlusTree_InsertDuplicateReturnsFalse(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	ok, err := tree.Insert(intKey(1), common.RID(1))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(intKey(1), common.RID(99))
	require.NoError(t, err)
	require.False(t, ok)

	v, found, err := tree.GetValue(intKey(1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, common.RID(1), v)
}

// Scenario 5: B+-tree delete & merge. max_size=4: after inserting 1..8,
// removing 1,2,3 coalesces leaves (the remaining five keys still need two
// leaves, so the root stays internal); iteration then yields 4..8.
func TestBPlusTree_DeleteCoalescesLeaves(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := 1; i <= 8; i++ {
		ok, err := tree.Insert(intKey(i), common.RID(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, k := range []int{1, 2, 3} {
		require.NoError(t, tree.Remove(intKey(k)))
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	var got []int
	for it.Valid() {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, int(binary.BigEndian.Uint64(k)))
		_, err = it.Next()
		require.NoError(t, err)
	}
	require.Equal(t, []int{4, 5, 6, 7, 8}, got)

	_, found, err := tree.GetValue(intKey(1))
	require.NoError(t, err)
	require.False(t, found)
}

func TestBPlusTree_RemoveAllEmptiesTree(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := 1; i <= 8; i++ {
		_, err := tree.Insert(intKey(i), common.RID(i))
		require.NoError(t, err)
	}
	for i := 1; i <= 8; i++ {
		require.NoError(t, tree.Remove(intKey(i)))
	}
	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestBPlusTree_RoundTripRandomOrderYieldsSortedIteration(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	order := []int{7, 3, 9, 1, 5, 2, 8, 4, 6}
	for _, k := range order {
		ok, err := tree.Insert(intKey(k), common.RID(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	var got []int
	for it.Valid() {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, int(binary.BigEndian.Uint64(k)))
		_, err = it.Next()
		require.NoError(t, err)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestBPlusTree_BeginAtSeeksToFirstKeyGreaterOrEqual(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for _, k := range []int{10, 20, 30, 40} {
		_, err := tree.Insert(intKey(k), common.RID(k))
		require.NoError(t, err)
	}
	it, err := tree.BeginAt(intKey(25))
	require.NoError(t, err)
	require.True(t, it.Valid())
	k, err := it.Key()
	require.NoError(t, err)
	require.Equal(t, int64(30), int64(binary.BigEndian.Uint64(k)))
}
