package heap

import (
	"path/filepath"
	"testing"

	"DaemonDB/common"
	diskmanager "DaemonDB/storage_engine/disk_manager"
	"DaemonDB/storage_engine/bufferpool"

	"github.com/stretchr/testify/require"
)

func newTestHeap(t *testing.T) *TableHeap {
	t.Helper()
	dm, err := diskmanager.NewDiskManager(filepath.Join(t.TempDir(), "heap.db"))
	require.NoError(t, err)
	sched := diskmanager.NewDiskScheduler(dm, 16)
	t.Cleanup(sched.Shutdown)
	bp := bufferpool.NewBufferPool(64, 2, sched, diskmanager.NewLogManager())
	heap, err := NewTableHeap(bp)
	require.NoError(t, err)
	return heap
}

func TestTableHeap_InsertAndGetRoundTrips(t *testing.T) {
	heap := newTestHeap(t)
	rid, err := heap.InsertTuple(common.TxnID(1), []byte("hello"))
	require.NoError(t, err)

	meta, payload, err := heap.GetTuple(rid)
	require.NoError(t, err)
	require.False(t, meta.IsDeleted)
	require.Equal(t, common.TxnID(1), meta.InsertTxnID)
	require.Equal(t, []byte("hello"), payload)
}

func TestTableHeap_InsertSpillsToNewPageWhenFull(t *testing.T) {
	heap := newTestHeap(t)
	big := make([]byte, 3000)
	first, err := heap.InsertTuple(common.TxnID(1), big)
	require.NoError(t, err)
	second, err := heap.InsertTuple(common.TxnID(1), big)
	require.NoError(t, err)

	require.NotEqual(t, first.PageID(), second.PageID())
	require.NotEqual(t, heap.firstPageID, second.PageID())
}

func TestTableHeap_UpdateTupleMetaMarksDeleted(t *testing.T) {
	heap := newTestHeap(t)
	rid, err := heap.InsertTuple(common.TxnID(1), []byte("row"))
	require.NoError(t, err)

	meta, err := heap.GetTupleMeta(rid)
	require.NoError(t, err)
	meta.IsDeleted = true
	meta.DeleteTxnID = common.TxnID(2)
	require.NoError(t, heap.UpdateTupleMeta(rid, meta))

	got, err := heap.GetTupleMeta(rid)
	require.NoError(t, err)
	require.True(t, got.IsDeleted)
	require.Equal(t, common.TxnID(2), got.DeleteTxnID)
}

func TestTableHeap_UpdateTupleInPlaceUnsafeRestoresPriorImage(t *testing.T) {
	heap := newTestHeap(t)
	rid, err := heap.InsertTuple(common.TxnID(1), []byte("original"))
	require.NoError(t, err)

	meta, err := heap.GetTupleMeta(rid)
	require.NoError(t, err)

	require.NoError(t, heap.UpdateTupleInPlaceUnsafe(rid, meta, []byte("original")))

	_, payload, err := heap.GetTuple(rid)
	require.NoError(t, err)
	require.Equal(t, []byte("original"), payload)
}

func TestTableHeap_UpdateTupleInPlaceUnsafeRejectsOversizedPayload(t *testing.T) {
	heap := newTestHeap(t)
	rid, err := heap.InsertTuple(common.TxnID(1), []byte("short"))
	require.NoError(t, err)

	meta, err := heap.GetTupleMeta(rid)
	require.NoError(t, err)
	err = heap.UpdateTupleInPlaceUnsafe(rid, meta, []byte("this payload is much too long to fit"))
	require.Error(t, err)
}

func TestTableHeap_ScanVisitsEveryLiveTupleAcrossPages(t *testing.T) {
	heap := newTestHeap(t)
	big := make([]byte, 3000)
	ridA, err := heap.InsertTuple(common.TxnID(1), big)
	require.NoError(t, err)
	ridB, err := heap.InsertTuple(common.TxnID(1), big)
	require.NoError(t, err)

	seen := map[common.RID]bool{}
	require.NoError(t, heap.Scan(func(rid common.RID, meta TupleMeta, payload []byte) bool {
		seen[rid] = true
		return true
	}))
	require.True(t, seen[ridA])
	require.True(t, seen[ridB])
}

func TestTableHeap_ScanSurfacesDeletedTuples(t *testing.T) {
	heap := newTestHeap(t)
	rid, err := heap.InsertTuple(common.TxnID(1), []byte("gone"))
	require.NoError(t, err)
	meta, err := heap.GetTupleMeta(rid)
	require.NoError(t, err)
	meta.IsDeleted = true
	require.NoError(t, heap.UpdateTupleMeta(rid, meta))

	var sawDeleted bool
	require.NoError(t, heap.Scan(func(r common.RID, m TupleMeta, payload []byte) bool {
		if r == rid && m.IsDeleted {
			sawDeleted = true
		}
		return true
	}))
	require.True(t, sawDeleted, "scan surfaces deleted tuples; callers decide visibility")
}
