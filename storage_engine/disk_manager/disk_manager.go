// Package diskmanager owns the single backing file pages are persisted
// against, and the disk scheduler that serializes I/O against it.
//
// The teacher package's disk manager multiplexed many logical files behind
// one global page-id space (fileID<<32 | localPageNum). This engine keeps a
// single backing file per §6 ("a single backing file of fixed-size pages
// indexed by page_id starting at 0"), so that bookkeeping collapses to one
// monotonic counter and one *os.File.
package diskmanager

import (
	"io"
	"os"
	"sync"

	"DaemonDB/common"
	"DaemonDB/dberrors"
	"DaemonDB/storage_engine/page"
)

// DiskManager reads and writes fixed-size pages against one backing file.
type DiskManager struct {
	file       *os.File
	nextPageID int64
	mu         sync.Mutex
}

// NewDiskManager opens (creating if absent) the backing file at path and
// recovers nextPageID from its current size.
func NewDiskManager(path string) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.IOFailure, err, "open backing file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberrors.Wrap(dberrors.IOFailure, err, "stat backing file")
	}
	return &DiskManager{
		file:       f,
		nextPageID: info.Size() / page.PageSize,
	}, nil
}

// AllocatePage returns the next page id. Ids are monotonically increasing
// and never reused within a run, per §6.
func (dm *DiskManager) AllocatePage() common.PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	id := dm.nextPageID
	dm.nextPageID++
	return common.PageID(id)
}

// NumPages reports how many page-id slots have ever been allocated.
func (dm *DiskManager) NumPages() int64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.nextPageID
}

// ReadPage fills buf (which must be page.PageSize bytes) with the on-disk
// contents of pageID. Reading a page beyond the current file extent (e.g.
// one allocated but never written) yields a zeroed buffer.
func (dm *DiskManager) ReadPage(pageID common.PageID, buf []byte) error {
	if len(buf) != page.PageSize {
		return dberrors.Newf(dberrors.IOFailure, "read buffer must be %d bytes, got %d", page.PageSize, len(buf))
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	off := int64(pageID) * page.PageSize
	n, err := dm.file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return dberrors.Wrap(dberrors.IOFailure, err, "read page")
	}
	// A page that was allocated but never flushed has no bytes on disk
	// yet — ReadAt reports io.EOF, and the missing tail is treated as a
	// legitimately all-zero page rather than an I/O failure, the way a
	// sparse file would read back.
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage persists buf (page.PageSize bytes) at pageID's offset.
func (dm *DiskManager) WritePage(pageID common.PageID, buf []byte) error {
	if len(buf) != page.PageSize {
		return dberrors.Newf(dberrors.IOFailure, "write buffer must be %d bytes, got %d", page.PageSize, len(buf))
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	off := int64(pageID) * page.PageSize
	if _, err := dm.file.WriteAt(buf, off); err != nil {
		return dberrors.Wrap(dberrors.IOFailure, err, "write page")
	}
	return nil
}

// Sync flushes the backing file to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Sync()
}

// Close releases the backing file handle.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Close()
}
