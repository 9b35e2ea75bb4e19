package lockmgr

import "DaemonDB/common"

// Phase is the two-phase-locking phase a transaction is in.
type Phase int

const (
	Growing Phase = iota
	Shrinking
)

// txnState is the lock manager's own bookkeeping for one transaction: its
// phase, isolation level, abort flag, and every lock it currently holds.
// The transaction manager owns commit/abort lifecycle; this is purely what
// the granting and phase-gating rules need to consult.
type txnState struct {
	isolation common.IsolationLevel
	phase     Phase
	aborted   bool

	tableLocks map[common.TableID]Mode
	rowLocks   map[common.TableID]map[common.RID]Mode
}

func newTxnState(isolation common.IsolationLevel) *txnState {
	return &txnState{
		isolation:  isolation,
		phase:      Growing,
		tableLocks: make(map[common.TableID]Mode),
		rowLocks:   make(map[common.TableID]map[common.RID]Mode),
	}
}

func (s *txnState) rowLockCount(oid common.TableID) int {
	return len(s.rowLocks[oid])
}
