package bufferpool

import (
	"DaemonDB/common"
	"DaemonDB/storage_engine/page"
)

// BasicPageGuard owns a pin on a page with no latch held. Dropping it
// unpins, marking the page dirty only if the caller called MarkDirty first.
// Guards are move-only: Go has no move constructor, so the discipline is
// enforced by convention — keep exactly one guard value alive for a given
// pin and call Drop on every control-flow exit (typically via defer).
// Move-assignment's "drop the old guard first" rule is expressed as the
// explicit Drop-then-reassign pattern below, used wherever a guard
// variable is replaced before going out of scope.
type BasicPageGuard struct {
	bp    *BufferPool
	pg    *page.Page
	dirty bool
}

// NewPageGuarded allocates a new page and returns a basic (unlatched) guard
// over it.
func (bp *BufferPool) NewPageGuarded() (*BasicPageGuard, error) {
	pg, err := bp.NewPage()
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{bp: bp, pg: pg}, nil
}

// FetchPageBasic fetches pageID and returns a basic (unlatched) guard.
func (bp *BufferPool) FetchPageBasic(pageID common.PageID) (*BasicPageGuard, error) {
	pg, err := bp.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{bp: bp, pg: pg}, nil
}

// Page exposes the underlying page for read or write access while the
// guard is held.
func (g *BasicPageGuard) Page() *page.Page { return g.pg }

// PageID reports the guarded page's id.
func (g *BasicPageGuard) PageID() common.PageID { return common.PageID(g.pg.ID) }

// MarkDirty flags the page dirty; takes effect when the guard drops.
func (g *BasicPageGuard) MarkDirty() { g.dirty = true }

// Drop unpins the page, propagating the dirty flag. Idempotent: a second
// Drop call is a no-op, matching the C++ guard's "check page_ == nullptr
// first" destructor discipline so deferred and explicit drops never
// double-unpin.
func (g *BasicPageGuard) Drop() {
	if g.pg == nil {
		return
	}
	g.bp.UnpinPage(common.PageID(g.pg.ID), g.dirty)
	g.pg = nil
}

// UpgradeRead drops the basic guard and re-fetches with a shared latch.
func (g *BasicPageGuard) UpgradeRead() (*ReadPageGuard, error) {
	pageID := common.PageID(g.pg.ID)
	g.Drop()
	return g.bp.FetchPageRead(pageID)
}

// UpgradeWrite drops the basic guard and re-fetches with an exclusive latch.
func (g *BasicPageGuard) UpgradeWrite() (*WritePageGuard, error) {
	pageID := common.PageID(g.pg.ID)
	g.Drop()
	return g.bp.FetchPageWrite(pageID)
}

// ReadPageGuard owns a pin plus the page's shared latch.
type ReadPageGuard struct {
	bp *BufferPool
	pg *page.Page
}

// FetchPageRead fetches pageID, pins it, and acquires its read latch.
func (bp *BufferPool) FetchPageRead(pageID common.PageID) (*ReadPageGuard, error) {
	pg, err := bp.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	pg.RLock()
	return &ReadPageGuard{bp: bp, pg: pg}, nil
}

// Page exposes the guarded page for reading.
func (g *ReadPageGuard) Page() *page.Page { return g.pg }

// PageID reports the guarded page's id.
func (g *ReadPageGuard) PageID() common.PageID { return common.PageID(g.pg.ID) }

// Drop releases the read latch and unpins. Idempotent.
func (g *ReadPageGuard) Drop() {
	if g.pg == nil {
		return
	}
	g.pg.RUnlock()
	g.bp.UnpinPage(common.PageID(g.pg.ID), false)
	g.pg = nil
}

// WritePageGuard owns a pin plus the page's exclusive latch.
type WritePageGuard struct {
	bp    *BufferPool
	pg    *page.Page
	dirty bool
}

// FetchPageWrite fetches pageID, pins it, and acquires its write latch.
func (bp *BufferPool) FetchPageWrite(pageID common.PageID) (*WritePageGuard, error) {
	pg, err := bp.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	pg.Lock()
	return &WritePageGuard{bp: bp, pg: pg}, nil
}

// Page exposes the guarded page for mutation.
func (g *WritePageGuard) Page() *page.Page { return g.pg }

// PageID reports the guarded page's id.
func (g *WritePageGuard) PageID() common.PageID { return common.PageID(g.pg.ID) }

// MarkDirty flags the page dirty; takes effect when the guard drops.
func (g *WritePageGuard) MarkDirty() { g.dirty = true }

// Drop releases the write latch and unpins, propagating the dirty flag.
// Idempotent.
func (g *WritePageGuard) Drop() {
	if g.pg == nil {
		return
	}
	dirty := g.dirty
	pg := g.pg
	g.pg = nil
	pg.Unlock()
	g.bp.UnpinPage(common.PageID(pg.ID), dirty)
}
