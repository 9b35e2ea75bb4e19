package heap

import (
	"sync"

	"DaemonDB/common"
	"DaemonDB/dberrors"
	"DaemonDB/storage_engine/bufferpool"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// TableHeap is a chain of slotted pages holding one logical table's
// tuples. Like the B+-tree, it addresses pages through the shared buffer
// pool via guards — it never touches the disk scheduler directly.
type TableHeap struct {
	mu sync.Mutex

	bp          *bufferpool.BufferPool
	firstPageID common.PageID
	lastPageID  common.PageID
}

// NewTableHeap allocates the heap's first page.
func NewTableHeap(bp *bufferpool.BufferPool) (*TableHeap, error) {
	guard, err := bp.NewPageGuarded()
	if err != nil {
		return nil, err
	}
	InitHeapPage(guard.Page())
	guard.MarkDirty()
	pageID := guard.PageID()
	guard.Drop()

	return &TableHeap{bp: bp, firstPageID: pageID, lastPageID: pageID}, nil
}

// FirstPageID exposes the heap's first page, for callers that persist it
// outside this package (catalog metadata persistence is out of scope here).
func (h *TableHeap) FirstPageID() common.PageID { return h.firstPageID }

// InsertTuple appends payload under insertTxnID's ownership, allocating a
// new chained page if the current last page has no room.
func (h *TableHeap) InsertTuple(insertTxnID common.TxnID, payload []byte) (common.RID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	meta := TupleMeta{InsertTxnID: insertTxnID, DeleteTxnID: common.InvalidTxnID}

	guard, err := h.bp.FetchPageWrite(h.lastPageID)
	if err != nil {
		return 0, err
	}
	if slot, ok := InsertTuple(guard.Page(), meta, payload); ok {
		guard.MarkDirty()
		pageID := guard.PageID()
		guard.Drop()
		return common.NewRID(pageID, slot), nil
	}
	guard.Drop()

	newGuard, err := h.bp.NewPageGuarded()
	if err != nil {
		return 0, err
	}
	InitHeapPage(newGuard.Page())
	slot, ok := InsertTuple(newGuard.Page(), meta, payload)
	if !ok {
		newGuard.Drop()
		return 0, dberrors.Newf(dberrors.Precondition, "tuple of %d bytes does not fit on an empty page", len(payload))
	}
	newGuard.MarkDirty()
	newPageID := newGuard.PageID()
	newGuard.Drop()

	oldLastGuard, err := h.bp.FetchPageWrite(h.lastPageID)
	if err != nil {
		return 0, err
	}
	SetNextPageID(oldLastGuard.Page(), newPageID)
	oldLastGuard.MarkDirty()
	oldLastGuard.Drop()

	h.lastPageID = newPageID
	log.Debug("table heap: allocated page", zap.Int64("page_id", int64(newPageID)))
	return common.NewRID(newPageID, slot), nil
}

// GetTupleMeta returns rid's visibility bookkeeping.
func (h *TableHeap) GetTupleMeta(rid common.RID) (TupleMeta, error) {
	guard, err := h.bp.FetchPageRead(rid.PageID())
	if err != nil {
		return TupleMeta{}, err
	}
	defer guard.Drop()
	return GetTupleMeta(guard.Page(), rid.Slot())
}

// GetTuple returns rid's meta and a copy of its payload.
func (h *TableHeap) GetTuple(rid common.RID) (TupleMeta, []byte, error) {
	guard, err := h.bp.FetchPageRead(rid.PageID())
	if err != nil {
		return TupleMeta{}, nil, err
	}
	defer guard.Drop()
	return GetTuple(guard.Page(), rid.Slot())
}

// UpdateTupleMeta rewrites rid's meta prefix — this is how Insert undo
// (mark deleted) and Delete undo (clear deleted) are implemented.
func (h *TableHeap) UpdateTupleMeta(rid common.RID, meta TupleMeta) error {
	guard, err := h.bp.FetchPageWrite(rid.PageID())
	if err != nil {
		return err
	}
	defer guard.Drop()
	if err := UpdateTupleMeta(guard.Page(), rid.Slot(), meta); err != nil {
		return err
	}
	guard.MarkDirty()
	return nil
}

// UpdateTupleInPlaceUnsafe restores rid's exact prior image — this is how
// Update undo is implemented; see UpdateTupleInPlaceUnsafe's page-level
// documentation for why it is safe specifically in that role.
func (h *TableHeap) UpdateTupleInPlaceUnsafe(rid common.RID, meta TupleMeta, payload []byte) error {
	guard, err := h.bp.FetchPageWrite(rid.PageID())
	if err != nil {
		return err
	}
	defer guard.Drop()
	if err := UpdateTupleInPlaceUnsafe(guard.Page(), rid.Slot(), meta, payload); err != nil {
		return err
	}
	guard.MarkDirty()
	return nil
}

// Scan calls fn for every live slot across the heap's page chain, in page
// order, stopping early if fn returns false.
func (h *TableHeap) Scan(fn func(rid common.RID, meta TupleMeta, payload []byte) bool) error {
	pageID := h.firstPageID
	for pageID != common.InvalidPageID {
		guard, err := h.bp.FetchPageRead(pageID)
		if err != nil {
			return err
		}
		n := NumSlots(guard.Page())
		next := NextPageID(guard.Page())
		for slot := uint16(0); slot < n; slot++ {
			if !IsSlotLive(guard.Page(), slot) {
				continue
			}
			meta, payload, err := GetTuple(guard.Page(), slot)
			if err != nil {
				continue
			}
			if !fn(common.NewRID(pageID, slot), meta, payload) {
				guard.Drop()
				return nil
			}
		}
		guard.Drop()
		pageID = next
	}
	return nil
}
