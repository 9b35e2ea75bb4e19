package bufferpool

import (
	"path/filepath"
	"testing"

	"DaemonDB/common"
	"DaemonDB/dberrors"
	diskmanager "DaemonDB/storage_engine/disk_manager"

	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, poolSize int) (*BufferPool, *diskmanager.DiskScheduler) {
	t.Helper()
	dm, err := diskmanager.NewDiskManager(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	sched := diskmanager.NewDiskScheduler(dm, 16)
	t.Cleanup(sched.Shutdown)
	return NewBufferPool(poolSize, 2, sched, diskmanager.NewLogManager()), sched
}

// Scenario 1: pool eviction. pool_size=3: NewPage p0/p1/p2 fill every
// frame, unpinning p0 frees it for eviction, and a fourth NewPage succeeds
// by evicting p0, forcing a subsequent fetch of p0 to re-read from disk.
func TestBufferPool_EvictsUnpinnedFrame(t *testing.T) {
	bp, _ := newTestPool(t, 3)

	p0, err := bp.NewPage()
	require.NoError(t, err)
	p1, err := bp.NewPage()
	require.NoError(t, err)
	p2, err := bp.NewPage()
	require.NoError(t, err)
	_ = p1
	_ = p2

	require.True(t, bp.UnpinPage(common.PageID(p0.ID), false))

	p3, err := bp.NewPage()
	require.NoError(t, err)
	require.NotNil(t, p3)

	// p0's frame was reclaimed; fetching it again must be a cold fetch
	// (it succeeds, and is pinned fresh at count 1). Unpinning p3 first
	// leaves one evictable frame for that fetch to load p0 into.
	require.True(t, bp.UnpinPage(common.PageID(p3.ID), false))
	refetched, err := bp.FetchPage(common.PageID(p0.ID))
	require.NoError(t, err)
	require.Equal(t, int32(1), refetched.PinCount)
}

// Scenario 2: pinned exhaustion. Same setup without unpinning — the 4th
// NewPage must fail with Capacity.
func TestBufferPool_CapacityExhaustedWhenAllPinned(t *testing.T) {
	bp, _ := newTestPool(t, 3)

	_, err := bp.NewPage()
	require.NoError(t, err)
	_, err = bp.NewPage()
	require.NoError(t, err)
	_, err = bp.NewPage()
	require.NoError(t, err)

	_, err = bp.NewPage()
	require.Error(t, err)
	require.True(t, dberrors.Is(err, dberrors.Capacity))
}

func TestBufferPool_UnpinUnknownPageReturnsFalse(t *testing.T) {
	bp, _ := newTestPool(t, 3)
	require.False(t, bp.UnpinPage(common.PageID(42), false))
}

func TestBufferPool_DirtyFlagNeverClearedByUnpin(t *testing.T) {
	bp, _ := newTestPool(t, 3)
	pg, err := bp.NewPage()
	require.NoError(t, err)
	pg.Data[0] = 0xAB

	require.True(t, bp.UnpinPage(common.PageID(pg.ID), true))
	require.True(t, pg.IsDirty)

	// Pin again and unpin with isDirty=false — must stay dirty.
	_, err = bp.FetchPage(common.PageID(pg.ID))
	require.NoError(t, err)
	require.True(t, bp.UnpinPage(common.PageID(pg.ID), false))
	require.True(t, pg.IsDirty)
}

func TestBufferPool_FlushPageIsIdempotent(t *testing.T) {
	bp, _ := newTestPool(t, 3)
	pg, err := bp.NewPage()
	require.NoError(t, err)
	pg.Data[0] = 0x42
	require.True(t, bp.UnpinPage(common.PageID(pg.ID), true))

	require.True(t, bp.FlushPage(common.PageID(pg.ID)))
	require.True(t, bp.FlushPage(common.PageID(pg.ID)))
	require.False(t, pg.IsDirty)
}

func TestBufferPool_DeletePageFailsWhilePinned(t *testing.T) {
	bp, _ := newTestPool(t, 3)
	pg, err := bp.NewPage()
	require.NoError(t, err)

	require.False(t, bp.DeletePage(common.PageID(pg.ID)))
	require.True(t, bp.UnpinPage(common.PageID(pg.ID), false))
	require.True(t, bp.DeletePage(common.PageID(pg.ID)))
}

func TestBufferPool_GuardsReleaseOnDrop(t *testing.T) {
	bp, _ := newTestPool(t, 3)
	guard, err := bp.NewPageGuarded()
	require.NoError(t, err)
	pageID := guard.PageID()
	guard.Drop()
	guard.Drop() // idempotent

	// The frame should now be evictable / reusable: DeletePage succeeds.
	require.True(t, bp.DeletePage(pageID))
}

func TestBufferPool_WriteGuardMarkDirtyThenFlush(t *testing.T) {
	bp, _ := newTestPool(t, 3)
	g, err := bp.NewPageGuarded()
	require.NoError(t, err)
	wg, err := g.UpgradeWrite()
	require.NoError(t, err)
	wg.Page().Data[0] = 7
	wg.MarkDirty()
	pageID := wg.PageID()
	wg.Drop()

	require.True(t, bp.FlushPage(pageID))
}
