// Package page defines the Frame: the buffer pool's in-memory slot for one
// on-disk page. A BusTub-style engine keeps "frame" and "page" as distinct
// small objects (the frame_id is just the slot's index in a backing array);
// this codebase instead folds both into one struct, the way the teacher
// package already did, and lets the buffer pool's page table map a page id
// directly onto the struct that holds its bytes. The reader-writer lock is
// the per-page latch the component design requires guards to acquire.
package page

import "sync"

const PageSize = 4096

// Page is both the on-disk page layout (raw Data bytes, cast by upper
// layers into typed views) and the buffer pool's bookkeeping for the frame
// currently holding it.
type Page struct {
	ID       int64 // page_id; common.InvalidPageID (-1) for an empty frame
	Data     []byte
	IsDirty  bool
	PinCount int32

	mu sync.RWMutex
}

// NewEmpty returns a zeroed page with no identity, ready to be installed
// into a frame by the buffer pool.
func NewEmpty() *Page {
	return &Page{ID: -1, Data: make([]byte, PageSize)}
}

// Reset clears a page's identity and contents so the frame can be reused
// for a different page id without retaining stale bytes.
func (p *Page) Reset() {
	p.ID = -1
	p.IsDirty = false
	p.PinCount = 0
	for i := range p.Data {
		p.Data[i] = 0
	}
}

func (p *Page) Lock()    { p.mu.Lock() }
func (p *Page) Unlock()  { p.mu.Unlock() }
func (p *Page) RLock()   { p.mu.RLock() }
func (p *Page) RUnlock() { p.mu.RUnlock() }
