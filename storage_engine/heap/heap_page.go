// Package heap is the minimal table heap write-set entries point at: a
// slotted-page tuple store with BusTub-style TupleMeta visibility
// bookkeeping. It carries no schema and no catalog — it exists purely as
// the callee the transaction manager's abort path drives undo through
// (§2, §4.7), grounded on the teacher package's heapfile_manager slotted
// page layout, generalized with a TupleMeta prefix per record.
package heap

import (
	"encoding/binary"

	"DaemonDB/common"
	"DaemonDB/dberrors"
	"DaemonDB/storage_engine/page"
)

// Header layout (fixed, 19 bytes):
//
//	[0:2]   numSlots   uint16
//	[2:4]   freeEndPtr uint16 — first free byte after the last record
//	[4:6]   slotStart  uint16 — first byte of the slot directory (shrinks
//	                            toward freeEndPtr as slots are appended)
//	[6:14]  nextPageID int64  — sibling page in this heap's page chain
//	[14:19] reserved
const (
	hdrNumSlots   = 0
	hdrFreeEndPtr = 2
	hdrSlotStart  = 4
	hdrNextPage   = 6
	headerSize    = 19
	slotSize      = 4 // offset uint16 + length uint16

	// Per-record prefix: IsDeleted(1) + InsertTxnID(8) + DeleteTxnID(8) +
	// payload length(2), followed by the payload itself.
	metaSize = 1 + 8 + 8 + 2
)

// TupleMeta is the visibility bookkeeping that travels with every record:
// which transaction created it, which (if any) deleted it, and whether
// that deletion is currently in effect.
type TupleMeta struct {
	InsertTxnID common.TxnID
	DeleteTxnID common.TxnID
	IsDeleted   bool
}

// InitHeapPage zeroes a freshly allocated page and writes an empty header.
func InitHeapPage(pg *page.Page) {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	binary.LittleEndian.PutUint16(pg.Data[hdrFreeEndPtr:], headerSize)
	binary.LittleEndian.PutUint16(pg.Data[hdrSlotStart:], page.PageSize)
	invalidPageID := common.InvalidPageID
	binary.LittleEndian.PutUint64(pg.Data[hdrNextPage:], uint64(invalidPageID))
	pg.IsDirty = true
}

func numSlots(pg *page.Page) uint16   { return binary.LittleEndian.Uint16(pg.Data[hdrNumSlots:]) }
func freeEndPtr(pg *page.Page) uint16 { return binary.LittleEndian.Uint16(pg.Data[hdrFreeEndPtr:]) }
func slotStart(pg *page.Page) uint16  { return binary.LittleEndian.Uint16(pg.Data[hdrSlotStart:]) }

func setNumSlots(pg *page.Page, n uint16)   { binary.LittleEndian.PutUint16(pg.Data[hdrNumSlots:], n) }
func setFreeEndPtr(pg *page.Page, v uint16) { binary.LittleEndian.PutUint16(pg.Data[hdrFreeEndPtr:], v) }
func setSlotStart(pg *page.Page, v uint16)  { binary.LittleEndian.PutUint16(pg.Data[hdrSlotStart:], v) }

// NextPageID reports this page's successor in the heap's page chain.
func NextPageID(pg *page.Page) common.PageID {
	return common.PageID(binary.LittleEndian.Uint64(pg.Data[hdrNextPage:]))
}

// SetNextPageID links this page to its successor.
func SetNextPageID(pg *page.Page, id common.PageID) {
	binary.LittleEndian.PutUint64(pg.Data[hdrNextPage:], uint64(id))
	pg.IsDirty = true
}

func slotOffset(i uint16) int { return page.PageSize - (int(i)+1)*slotSize }

func readSlot(pg *page.Page, i uint16) (offset, length uint16) {
	base := slotOffset(i)
	return binary.LittleEndian.Uint16(pg.Data[base:]), binary.LittleEndian.Uint16(pg.Data[base+2:])
}

func writeSlot(pg *page.Page, i uint16, offset, length uint16) {
	base := slotOffset(i)
	binary.LittleEndian.PutUint16(pg.Data[base:], offset)
	binary.LittleEndian.PutUint16(pg.Data[base+2:], length)
}

// FreeSpace reports the bytes available for a new record, including the
// slot entry it would consume.
func FreeSpace(pg *page.Page) int {
	avail := int(slotStart(pg)) - int(freeEndPtr(pg)) - slotSize
	if avail < 0 {
		return 0
	}
	return avail
}

// InsertTuple appends payload (with meta) to pg and returns its slot index,
// or ok=false if the page has no room.
func InsertTuple(pg *page.Page, meta TupleMeta, payload []byte) (slot uint16, ok bool) {
	need := metaSize + len(payload)
	if FreeSpace(pg) < need {
		return 0, false
	}

	off := freeEndPtr(pg)
	writeRecord(pg, off, meta, payload)

	slot = numSlots(pg)
	writeSlot(pg, slot, off, uint16(need))

	setNumSlots(pg, slot+1)
	setFreeEndPtr(pg, off+uint16(need))
	setSlotStart(pg, slotStart(pg)-slotSize)
	pg.IsDirty = true
	return slot, true
}

func writeRecord(pg *page.Page, off uint16, meta TupleMeta, payload []byte) {
	p := pg.Data[off:]
	if meta.IsDeleted {
		p[0] = 1
	} else {
		p[0] = 0
	}
	binary.LittleEndian.PutUint64(p[1:], uint64(meta.InsertTxnID))
	binary.LittleEndian.PutUint64(p[9:], uint64(meta.DeleteTxnID))
	binary.LittleEndian.PutUint16(p[17:], uint16(len(payload)))
	copy(p[metaSize:], payload)
}

// GetTupleMeta reads slot's visibility bookkeeping without copying its
// payload.
func GetTupleMeta(pg *page.Page, slot uint16) (TupleMeta, error) {
	if slot >= numSlots(pg) {
		return TupleMeta{}, dberrors.Newf(dberrors.Precondition, "slot %d out of range", slot)
	}
	off, length := readSlot(pg, slot)
	if length == 0 {
		return TupleMeta{}, dberrors.Newf(dberrors.Precondition, "slot %d is empty", slot)
	}
	return decodeMeta(pg.Data[off:]), nil
}

func decodeMeta(p []byte) TupleMeta {
	return TupleMeta{
		IsDeleted:   p[0] == 1,
		InsertTxnID: common.TxnID(binary.LittleEndian.Uint64(p[1:])),
		DeleteTxnID: common.TxnID(binary.LittleEndian.Uint64(p[9:])),
	}
}

// UpdateTupleMeta rewrites slot's meta prefix in place; the payload is
// untouched.
func UpdateTupleMeta(pg *page.Page, slot uint16, meta TupleMeta) error {
	if slot >= numSlots(pg) {
		return dberrors.Newf(dberrors.Precondition, "slot %d out of range", slot)
	}
	off, length := readSlot(pg, slot)
	if length == 0 {
		return dberrors.Newf(dberrors.Precondition, "slot %d is empty", slot)
	}
	p := pg.Data[off:]
	if meta.IsDeleted {
		p[0] = 1
	} else {
		p[0] = 0
	}
	binary.LittleEndian.PutUint64(p[1:], uint64(meta.InsertTxnID))
	binary.LittleEndian.PutUint64(p[9:], uint64(meta.DeleteTxnID))
	pg.IsDirty = true
	return nil
}

// GetTuple returns slot's meta and a copy of its payload bytes.
func GetTuple(pg *page.Page, slot uint16) (TupleMeta, []byte, error) {
	if slot >= numSlots(pg) {
		return TupleMeta{}, nil, dberrors.Newf(dberrors.Precondition, "slot %d out of range", slot)
	}
	off, length := readSlot(pg, slot)
	if length == 0 {
		return TupleMeta{}, nil, dberrors.Newf(dberrors.Precondition, "slot %d is empty", slot)
	}
	p := pg.Data[off:]
	meta := decodeMeta(p)
	payloadLen := binary.LittleEndian.Uint16(p[17:])
	payload := make([]byte, payloadLen)
	copy(payload, p[metaSize:metaSize+int(payloadLen)])
	return meta, payload, nil
}

// UpdateTupleInPlaceUnsafe overwrites slot's meta and payload without
// moving or resizing the record. It is "unsafe" in BusTub's sense: the
// caller must guarantee newPayload fits the slot's originally allocated
// length — this is used by transaction-manager undo to restore an updated
// tuple's exact prior image, which by construction always fits since it
// once lived there.
func UpdateTupleInPlaceUnsafe(pg *page.Page, slot uint16, meta TupleMeta, newPayload []byte) error {
	if slot >= numSlots(pg) {
		return dberrors.Newf(dberrors.Precondition, "slot %d out of range", slot)
	}
	off, length := readSlot(pg, slot)
	if length == 0 {
		return dberrors.Newf(dberrors.Precondition, "slot %d is empty", slot)
	}
	if metaSize+len(newPayload) > int(length) {
		return dberrors.Newf(dberrors.Precondition, "slot %d too small for in-place update", slot)
	}
	writeRecord(pg, off, meta, newPayload)
	pg.IsDirty = true
	return nil
}

// IsSlotLive reports whether slot holds a (possibly deleted) record at all
// — false only for slots never allocated on this page.
func IsSlotLive(pg *page.Page, slot uint16) bool {
	if slot >= numSlots(pg) {
		return false
	}
	_, length := readSlot(pg, slot)
	return length != 0
}

// NumSlots exposes the slot count for full-page scans.
func NumSlots(pg *page.Page) uint16 { return numSlots(pg) }
