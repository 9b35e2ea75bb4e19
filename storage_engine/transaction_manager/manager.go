package txn

import (
	"sync"

	"DaemonDB/common"
	"DaemonDB/dberrors"
	lockmgr "DaemonDB/lock_manager"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Manager owns the active-transaction table and drives commit/abort.
// Grounded on the teacher's TxnManager (nextID counter, mutex-protected
// activeTxns map, idempotent Commit/Abort) generalized to real undo replay
// and lock release through a lockmgr.Manager.
type Manager struct {
	mu     sync.Mutex
	nextID common.TxnID
	active map[common.TxnID]*Transaction

	locks *lockmgr.Manager
}

// NewManager constructs a Manager backed by the given lock manager. The
// lock manager's own lifecycle (including its deadlock-detection goroutine)
// is owned by the caller.
func NewManager(locks *lockmgr.Manager) *Manager {
	return &Manager{active: make(map[common.TxnID]*Transaction), locks: locks}
}

// Begin starts a new transaction under the given isolation level and
// registers it both here and with the lock manager.
func (m *Manager) Begin(isolation common.IsolationLevel) *Transaction {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	t := &Transaction{id: id, isolation: isolation, state: Running}
	m.active[id] = t
	m.mu.Unlock()

	m.locks.Begin(id, isolation)
	log.Debug("txn: began", zap.Int64("txn", int64(id)), zap.Stringer("isolation", isolation))
	return t
}

// GetTransaction returns the transaction with the given id, or nil.
func (m *Manager) GetTransaction(id common.TxnID) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

// Commit releases every lock the transaction holds and moves it to
// COMMITTED.
func (m *Manager) Commit(t *Transaction) error {
	if t.State() == Aborted {
		return dberrors.Newf(dberrors.Precondition, "txn %d was already aborted", t.id)
	}
	m.locks.ReleaseAll(t.id)
	t.setState(Committed)
	m.forget(t.id)
	log.Debug("txn: committed", zap.Int64("txn", int64(t.id)))
	return nil
}

// Abort replays the transaction's write-set and index-write-set in reverse
// to undo its effects, then releases every lock and moves it to ABORTED.
// Per the error-handling design, Abort itself is infallible — undo replay
// cannot fail for a well-formed write-set, since every record it reverses
// was itself produced by a successful prior operation in this same
// transaction.
func (m *Manager) Abort(t *Transaction) {
	if t.State() == Committed {
		// Already committed; nothing to undo. Mirrors the teacher's
		// idempotent-Abort handling of a transaction no longer active.
		return
	}

	t.mu.Lock()
	writeSet := t.writeSet
	t.writeSet = nil
	indexWriteSet := t.indexWriteSet
	t.indexWriteSet = nil
	t.mu.Unlock()

	for i := len(writeSet) - 1; i >= 0; i-- {
		undoWrite(writeSet[i])
	}
	for i := len(indexWriteSet) - 1; i >= 0; i-- {
		undoIndexWrite(indexWriteSet[i])
	}

	m.locks.ReleaseAll(t.id)
	t.setState(Aborted)
	m.forget(t.id)
	log.Debug("txn: aborted", zap.Int64("txn", int64(t.id)))
}

func (m *Manager) forget(id common.TxnID) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// undoWrite reverses one table-heap mutation: INSERT is undone by marking
// the tuple deleted, DELETE by clearing the deleted flag, UPDATE by
// restoring the tuple's prior image in place.
func undoWrite(rec WriteRecord) {
	switch rec.Type {
	case Insert:
		meta, err := rec.Heap.GetTupleMeta(rec.RID)
		if err != nil {
			log.Error("txn: undo insert failed to read meta", zap.Error(err))
			return
		}
		meta.IsDeleted = true
		if err := rec.Heap.UpdateTupleMeta(rec.RID, meta); err != nil {
			log.Error("txn: undo insert failed", zap.Error(err))
		}
	case Delete:
		meta, err := rec.Heap.GetTupleMeta(rec.RID)
		if err != nil {
			log.Error("txn: undo delete failed to read meta", zap.Error(err))
			return
		}
		meta.IsDeleted = false
		if err := rec.Heap.UpdateTupleMeta(rec.RID, meta); err != nil {
			log.Error("txn: undo delete failed", zap.Error(err))
		}
	case Update:
		if err := rec.Heap.UpdateTupleInPlaceUnsafe(rec.RID, rec.OldMeta, rec.OldPayload); err != nil {
			log.Error("txn: undo update failed", zap.Error(err))
		}
	}
}

// undoIndexWrite reverses one index mutation: INSERT is undone by deleting
// the entry, DELETE by re-inserting it, UPDATE by deleting the new key and
// inserting the old one.
func undoIndexWrite(rec IndexWriteRecord) {
	switch rec.Type {
	case Insert:
		if err := rec.Index.Remove(rec.NewKey); err != nil {
			log.Error("txn: undo index insert failed", zap.Error(err))
		}
	case Delete:
		if _, err := rec.Index.Insert(rec.OldKey, rec.RID); err != nil {
			log.Error("txn: undo index delete failed", zap.Error(err))
		}
	case Update:
		if err := rec.Index.Remove(rec.NewKey); err != nil {
			log.Error("txn: undo index update (remove new key) failed", zap.Error(err))
		}
		if _, err := rec.Index.Insert(rec.OldKey, rec.RID); err != nil {
			log.Error("txn: undo index update (insert old key) failed", zap.Error(err))
		}
	}
}
