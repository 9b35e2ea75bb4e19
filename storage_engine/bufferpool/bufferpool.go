// Package bufferpool owns the fixed set of in-memory frames pages are
// cached in, orchestrates eviction through a pluggable Replacer, and issues
// page I/O through the disk scheduler. Every public operation here is
// serialized by one pool-wide mutex held across the entire call, including
// the blocking I/O a cache miss causes — the component design calls this
// "the simplest correct model" and mandates it.
package bufferpool

import (
	"sync"

	"DaemonDB/common"
	"DaemonDB/dberrors"
	diskmanager "DaemonDB/storage_engine/disk_manager"
	"DaemonDB/storage_engine/page"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// BufferPool is a fixed pool of frames backed by a single disk scheduler.
type BufferPool struct {
	mu sync.Mutex

	poolSize int
	frames   []*page.Page
	pageTbl  map[common.PageID]common.FrameID
	freeList []common.FrameID

	replacer Replacer
	disk     *diskmanager.DiskScheduler
	logMgr   *diskmanager.LogManager
}

// NewBufferPool constructs a pool of poolSize frames, using LRU-K with
// history depth replacerK as its replacement policy.
func NewBufferPool(poolSize int, replacerK int, disk *diskmanager.DiskScheduler, logMgr *diskmanager.LogManager) *BufferPool {
	frames := make([]*page.Page, poolSize)
	freeList := make([]common.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = page.NewEmpty()
		freeList[i] = common.FrameID(i)
	}
	return &BufferPool{
		poolSize: poolSize,
		frames:   frames,
		pageTbl:  make(map[common.PageID]common.FrameID),
		freeList: freeList,
		replacer: NewLRUKReplacer(replacerK),
		disk:     disk,
		logMgr:   logMgr,
	}
}

// grabFrame returns a frame ready to hold a new page: from the free list if
// one is available, else by evicting the replacer's chosen victim. Callers
// must hold bp.mu. Returns ok=false if every frame is pinned.
func (bp *BufferPool) grabFrame() (common.FrameID, bool) {
	if len(bp.freeList) > 0 {
		fid := bp.freeList[len(bp.freeList)-1]
		bp.freeList = bp.freeList[:len(bp.freeList)-1]
		return fid, true
	}

	fid, ok := bp.replacer.Evict()
	if !ok {
		return 0, false
	}
	victim := bp.frames[fid]
	if victim.IsDirty {
		if err := bp.disk.WritePage(common.PageID(victim.ID), victim.Data); err != nil {
			log.Error("buffer pool: flush-on-evict failed", zap.Int64("page_id", victim.ID), zap.Error(err))
		}
	}
	delete(bp.pageTbl, common.PageID(victim.ID))
	victim.Reset()
	return fid, true
}

// NewPage allocates a fresh page id and installs it at pin count 1 in a
// frame, zeroed and not dirty. Returns a Capacity error only if every frame
// is pinned.
func (bp *BufferPool) NewPage() (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.grabFrame()
	if !ok {
		return nil, dberrors.New(dberrors.Capacity, "buffer pool exhausted: no evictable frame")
	}

	pageID := bp.disk.AllocatePage()
	pg := bp.frames[fid]
	pg.ID = int64(pageID)
	pg.PinCount = 1
	pg.IsDirty = false
	bp.pageTbl[pageID] = fid

	bp.replacer.RecordAccess(fid)
	_ = bp.replacer.SetEvictable(fid, false)

	log.Debug("buffer pool: new page", zap.Int64("page_id", int64(pageID)), zap.Int32("frame_id", int32(fid)))
	return pg, nil
}

// FetchPage returns the page identified by pageID, reading it from disk on
// a cache miss. Returns a Capacity error only if every frame is pinned.
func (bp *BufferPool) FetchPage(pageID common.PageID) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if fid, resident := bp.pageTbl[pageID]; resident {
		pg := bp.frames[fid]
		if pg.PinCount == 0 {
			_ = bp.replacer.SetEvictable(fid, false)
		}
		pg.PinCount++
		bp.replacer.RecordAccess(fid)
		return pg, nil
	}

	fid, ok := bp.grabFrame()
	if !ok {
		return nil, dberrors.New(dberrors.Capacity, "buffer pool exhausted: no evictable frame")
	}

	pg := bp.frames[fid]
	if err := bp.disk.ReadPage(pageID, pg.Data); err != nil {
		bp.freeList = append(bp.freeList, fid)
		return nil, dberrors.Wrap(dberrors.IOFailure, err, "fetch page")
	}
	pg.ID = int64(pageID)
	pg.PinCount = 1
	pg.IsDirty = false
	bp.pageTbl[pageID] = fid

	bp.replacer.RecordAccess(fid)
	_ = bp.replacer.SetEvictable(fid, false)

	return pg, nil
}

// UnpinPage decrements pageID's pin count. A true isDirty is OR-ed into the
// frame's dirty flag — unpinning never clears it. Returns false if the page
// is not resident or its pin count was already 0.
func (bp *BufferPool) UnpinPage(pageID common.PageID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, resident := bp.pageTbl[pageID]
	if !resident {
		return false
	}
	pg := bp.frames[fid]
	if pg.PinCount <= 0 {
		return false
	}
	if isDirty {
		pg.IsDirty = true
	}
	pg.PinCount--
	if pg.PinCount == 0 {
		_ = bp.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes the frame's data to disk unconditionally and clears the
// dirty flag. Returns false if the page is not resident.
func (bp *BufferPool) FlushPage(pageID common.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushLocked(pageID)
}

func (bp *BufferPool) flushLocked(pageID common.PageID) bool {
	fid, resident := bp.pageTbl[pageID]
	if !resident {
		return false
	}
	pg := bp.frames[fid]
	if err := bp.disk.WritePage(pageID, pg.Data); err != nil {
		log.Error("buffer pool: flush failed", zap.Int64("page_id", int64(pageID)), zap.Error(err))
		return false
	}
	pg.IsDirty = false
	return true
}

// FlushAllPages flushes every resident page regardless of dirty state.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pageID := range bp.pageTbl {
		bp.flushLocked(pageID)
	}
	return nil
}

// DeletePage fails (returns false) if the page is pinned. Otherwise it
// removes the mapping, returns the frame to the free list, and reports
// true — including when the page was never resident.
func (bp *BufferPool) DeletePage(pageID common.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, resident := bp.pageTbl[pageID]
	if !resident {
		return true
	}
	pg := bp.frames[fid]
	if pg.PinCount > 0 {
		return false
	}
	_ = bp.replacer.Remove(fid)
	delete(bp.pageTbl, pageID)
	pg.Reset()
	bp.freeList = append(bp.freeList, fid)
	return true
}

// Stats is a point-in-time snapshot, useful for tests and diagnostics.
type Stats struct {
	PoolSize     int
	FreeFrames   int
	PinnedFrames int
	DirtyFrames  int
}

// Stats returns a snapshot of pool occupancy.
func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	s := Stats{PoolSize: bp.poolSize, FreeFrames: len(bp.freeList)}
	for _, fid := range bp.pageTbl {
		pg := bp.frames[fid]
		if pg.PinCount > 0 {
			s.PinnedFrames++
		}
		if pg.IsDirty {
			s.DirtyFrames++
		}
	}
	return s
}
