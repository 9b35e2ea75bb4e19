// Package txn is the transaction lifecycle manager: Begin/Commit/Abort,
// a per-transaction write-set and index-write-set, and abort-time undo
// replay. Grounded on the teacher's transaction_manager package (Transaction
// struct, InsertedRow/UpdatedRow bookkeeping, mutex-protected active-txn
// map) generalized to the write-set/index-write-set shape and the exact
// undo order from _examples/original_source/src/concurrency/transaction_manager.cpp.
package txn

import (
	"sync"

	"DaemonDB/common"
	"DaemonDB/storage_engine/bplustree"
	"DaemonDB/storage_engine/heap"
)

// State is the lifecycle state of a transaction.
type State int

const (
	Running State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// WriteType distinguishes the three kinds of table-heap mutation a
// transaction may undo.
type WriteType int

const (
	Insert WriteType = iota
	Delete
	Update
)

// WriteRecord is one entry in a transaction's write-set: a mutation against
// a table heap, with enough information to reverse it. OldMeta/OldPayload
// hold the tuple's prior image for UPDATE undo; unused for INSERT/DELETE.
type WriteRecord struct {
	Heap       *heap.TableHeap
	Type       WriteType
	RID        common.RID
	OldMeta    heap.TupleMeta
	OldPayload []byte
}

// IndexWriteRecord is one entry in a transaction's index-write-set: a
// mutation against an index, with the old/new key needed to reverse an
// UPDATE.
type IndexWriteRecord struct {
	Index  *bplustree.BPlusTree
	Type   WriteType
	RID    common.RID
	OldKey []byte
	NewKey []byte
}

// Transaction is one unit of work: an id, an isolation level, a lifecycle
// state, and the write-sets undo replays on abort.
type Transaction struct {
	mu sync.Mutex

	id        common.TxnID
	isolation common.IsolationLevel
	state     State

	writeSet      []WriteRecord
	indexWriteSet []IndexWriteRecord
}

// ID returns the transaction's id.
func (t *Transaction) ID() common.TxnID { return t.id }

// IsolationLevel returns the transaction's isolation level.
func (t *Transaction) IsolationLevel() common.IsolationLevel { return t.isolation }

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// RecordWrite appends a write-set entry — called by the table-heap-facing
// side of the storage engine immediately after a heap mutation.
func (t *Transaction) RecordWrite(rec WriteRecord) {
	t.mu.Lock()
	t.writeSet = append(t.writeSet, rec)
	t.mu.Unlock()
}

// RecordIndexWrite appends an index-write-set entry.
func (t *Transaction) RecordIndexWrite(rec IndexWriteRecord) {
	t.mu.Lock()
	t.indexWriteSet = append(t.indexWriteSet, rec)
	t.mu.Unlock()
}
