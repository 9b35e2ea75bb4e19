package lockmgr

import (
	"sync"

	"DaemonDB/common"
)

// request is one entry in a resource's FIFO queue — a table lock request or
// a row lock request, distinguished by the caller, never by this struct.
type request struct {
	txnID   common.TxnID
	mode    Mode
	granted bool
}

// queue holds every request (granted or waiting) against one resource —
// one table oid, or one row rid. Mirrors LockRequestQueue: a list plus a
// condition variable plus an upgrading marker, all behind one latch.
type queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*request
	upgrading common.TxnID // InvalidTxnID if no upgrade is in flight
}

func newQueue() *queue {
	q := &queue{upgrading: common.InvalidTxnID}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// heldMode reports the mode txnID currently holds on this queue, if any.
func (q *queue) heldMode(txnID common.TxnID) (Mode, bool) {
	for _, r := range q.requests {
		if r.txnID == txnID && r.granted {
			return r.mode, true
		}
	}
	return 0, false
}

// tryGrant walks the queue in order, granting every waiting request that is
// compatible with every request already granted on the queue. An in-flight
// upgrade always arbitrates first. Returns true if anything changed.
func (q *queue) tryGrant() bool {
	changed := false
	for _, r := range q.requests {
		if r.granted {
			continue
		}
		if q.upgrading != common.InvalidTxnID && q.upgrading != r.txnID {
			continue // someone else's upgrade has priority on this queue
		}
		ok := true
		for _, other := range q.requests {
			if other == r || !other.granted {
				continue
			}
			if !compatible(r.mode, other.mode) {
				ok = false
				break
			}
		}
		if ok {
			r.granted = true
			if q.upgrading == r.txnID {
				q.upgrading = common.InvalidTxnID
			}
			changed = true
		}
	}
	return changed
}

// removeTxn drops every request belonging to txnID from the queue.
func (q *queue) removeTxn(txnID common.TxnID) {
	kept := q.requests[:0]
	for _, r := range q.requests {
		if r.txnID != txnID {
			kept = append(kept, r)
		}
	}
	q.requests = kept
	if q.upgrading == txnID {
		q.upgrading = common.InvalidTxnID
	}
}
