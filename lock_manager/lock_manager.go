package lockmgr

import (
	"sync"
	"time"

	"DaemonDB/common"
	"DaemonDB/dberrors"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Config mirrors the teacher's LockConfig: the knobs a caller may tune at
// construction, per the external-interfaces contract's recognized
// constructor configuration.
type Config struct {
	CycleDetectionInterval time.Duration
}

func defaultConfig() Config {
	return Config{CycleDetectionInterval: 50 * time.Millisecond}
}

// Manager grants and releases table and row locks, gates acquisitions by
// isolation level and 2PL phase, and runs background deadlock detection
// over a waits-for graph. Grounded on util6-JadeDB's LockManager (per-
// resource entry + latch, waiters woken on release, a periodic goroutine
// walking a wait-for graph) generalized to BusTub's exact multi-granularity
// mode set and phase rules.
type Manager struct {
	cfg Config

	tableMu sync.Mutex
	tables  map[common.TableID]*queue

	rowMu sync.Mutex
	rows  map[common.RID]*queue

	txnMu sync.Mutex
	txns  map[common.TxnID]*txnState

	graph *waitForGraph

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Manager and starts its deadlock-detection goroutine.
func New(cfg Config) *Manager {
	if cfg.CycleDetectionInterval <= 0 {
		cfg.CycleDetectionInterval = defaultConfig().CycleDetectionInterval
	}
	m := &Manager{
		cfg:    cfg,
		tables: make(map[common.TableID]*queue),
		rows:   make(map[common.RID]*queue),
		txns:   make(map[common.TxnID]*txnState),
		graph:  newWaitForGraph(),
		stopCh: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.runCycleDetection()
	return m
}

// Close stops the background detector.
func (m *Manager) Close() {
	close(m.stopCh)
	m.wg.Wait()
}

// Begin registers txnID as a new transaction under the given isolation
// level. The transaction manager calls this from its own Begin.
func (m *Manager) Begin(txnID common.TxnID, isolation common.IsolationLevel) {
	m.txnMu.Lock()
	defer m.txnMu.Unlock()
	m.txns[txnID] = newTxnState(isolation)
}

func (m *Manager) state(txnID common.TxnID) *txnState {
	m.txnMu.Lock()
	defer m.txnMu.Unlock()
	return m.txns[txnID]
}

// IsAborted reports whether the deadlock detector (or a phase violation)
// has already moved txnID to ABORTED.
func (m *Manager) IsAborted(txnID common.TxnID) bool {
	s := m.state(txnID)
	return s != nil && s.aborted
}

func (m *Manager) abort(txnID common.TxnID) {
	m.txnMu.Lock()
	if s, ok := m.txns[txnID]; ok {
		s.aborted = true
	}
	m.txnMu.Unlock()
}

func (m *Manager) tableQueue(oid common.TableID) *queue {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()
	q, ok := m.tables[oid]
	if !ok {
		q = newQueue()
		m.tables[oid] = q
	}
	return q
}

func (m *Manager) rowQueue(rid common.RID) *queue {
	m.rowMu.Lock()
	defer m.rowMu.Unlock()
	q, ok := m.rows[rid]
	if !ok {
		q = newQueue()
		m.rows[rid] = q
	}
	return q
}

// checkAcquireAllowed enforces the isolation/phase gating rules from the
// component design. Returns an *dberrors.Error tagged IllegalLock on
// violation, after moving the transaction to ABORTED.
func (m *Manager) checkAcquireAllowed(txnID common.TxnID, s *txnState, mode Mode) error {
	if s.phase == Shrinking {
		allowed := false
		switch s.isolation {
		case common.ReadCommitted:
			allowed = mode == IntentionShared || mode == Shared
		}
		if !allowed {
			m.abort(txnID)
			return dberrors.Newf(dberrors.IllegalLock,
				"txn %d cannot acquire %s while SHRINKING under %s", txnID, mode, s.isolation)
		}
	}
	if s.isolation == common.ReadUncommitted {
		if mode == Shared || mode == IntentionShared || mode == SharedIntentionExclusive {
			m.abort(txnID)
			return dberrors.Newf(dberrors.IllegalLock,
				"txn %d: mode %s is illegal under READ_UNCOMMITTED", txnID, mode)
		}
	}
	return nil
}

// acquire runs the lock-acquisition protocol common to table and row locks:
// phase/isolation gating, upgrade-or-fresh-request bookkeeping, and waiting
// on the queue's condition variable until granted or aborted.
func (m *Manager) acquire(txnID common.TxnID, q *queue, mode Mode) error {
	s := m.state(txnID)
	if s == nil {
		return dberrors.Newf(dberrors.Precondition, "txn %d is not registered", txnID)
	}
	if m.IsAborted(txnID) {
		return dberrors.New(dberrors.DeadlockVictim, "transaction already aborted")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if held, ok := q.heldMode(txnID); ok {
		if held == mode {
			return nil
		}
		if !canUpgrade(held, mode) {
			m.abort(txnID)
			return dberrors.Newf(dberrors.IllegalLock, "txn %d: cannot upgrade %s to %s", txnID, held, mode)
		}
		if q.upgrading != common.InvalidTxnID && q.upgrading != txnID {
			m.abort(txnID)
			return dberrors.Newf(dberrors.IllegalLock, "txn %d: upgrade conflict, another upgrade is in flight", txnID)
		}
		if err := m.checkAcquireAllowed(txnID, s, mode); err != nil {
			return err
		}
		q.removeTxn(txnID)
		q.upgrading = txnID
		q.requests = append(q.requests, &request{txnID: txnID, mode: mode})
	} else {
		if err := m.checkAcquireAllowed(txnID, s, mode); err != nil {
			return err
		}
		q.requests = append(q.requests, &request{txnID: txnID, mode: mode})
	}

	q.tryGrant()
	var mine *request
	for {
		for _, r := range q.requests {
			if r.txnID == txnID {
				mine = r
				break
			}
		}
		if mine != nil && mine.granted {
			break
		}
		if m.IsAborted(txnID) {
			q.removeTxn(txnID)
			q.cond.Broadcast()
			return dberrors.New(dberrors.DeadlockVictim, "aborted while waiting for lock")
		}
		m.graph.setWaiting(txnID, m.holdersOf(q))
		q.cond.Wait()
		mine = nil
	}
	m.graph.clearWaiting(txnID)
	return nil
}

func (m *Manager) holdersOf(q *queue) []common.TxnID {
	var ids []common.TxnID
	for _, r := range q.requests {
		if r.granted {
			ids = append(ids, r.txnID)
		}
	}
	return ids
}

// release re-runs the granting pass on q after the caller has removed a
// request from it, and wakes every waiter to re-evaluate. Callers hold q.mu.
func (m *Manager) release(q *queue) {
	q.tryGrant()
	q.cond.Broadcast()
}

// LockTable acquires mode on table oid for txnID, blocking until granted,
// aborted by the deadlock detector, or rejected by the gating rules.
func (m *Manager) LockTable(txnID common.TxnID, mode Mode, oid common.TableID) error {
	q := m.tableQueue(oid)
	if err := m.acquire(txnID, q, mode); err != nil {
		return err
	}
	s := m.state(txnID)
	m.txnMu.Lock()
	s.tableLocks[oid] = mode
	m.txnMu.Unlock()
	log.Debug("lock_manager: table lock granted", zap.Int64("txn", int64(txnID)), zap.Stringer("mode", mode), zap.Int64("table", int64(oid)))
	return nil
}

// UnlockTable releases txnID's lock on table oid.
func (m *Manager) UnlockTable(txnID common.TxnID, oid common.TableID) error {
	s := m.state(txnID)
	if s == nil {
		return dberrors.Newf(dberrors.Precondition, "txn %d is not registered", txnID)
	}

	q := m.tableQueue(oid)
	q.mu.Lock()
	mode, held := q.heldMode(txnID)
	if !held {
		q.mu.Unlock()
		m.abort(txnID)
		return dberrors.Newf(dberrors.Precondition, "txn %d: ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD on table %d", txnID, oid)
	}

	m.txnMu.Lock()
	rowsHeld := s.rowLockCount(oid)
	m.txnMu.Unlock()
	if rowsHeld != 0 {
		q.mu.Unlock()
		m.abort(txnID)
		return dberrors.Newf(dberrors.Precondition, "txn %d: TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS on table %d", txnID, oid)
	}

	q.removeTxn(txnID)
	m.release(q)
	q.mu.Unlock()

	m.txnMu.Lock()
	delete(s.tableLocks, oid)
	m.maybeTransitionToShrinking(s, mode)
	m.txnMu.Unlock()

	m.graph.removeNode(txnID)
	return nil
}

// LockRow acquires mode (S or X) on rid, owned by table oid, for txnID. The
// caller must already hold a compatible table-level lock.
func (m *Manager) LockRow(txnID common.TxnID, mode Mode, oid common.TableID, rid common.RID) error {
	if mode != Shared && mode != Exclusive {
		return dberrors.Newf(dberrors.IllegalLock, "row locks must be S or X, got %s", mode)
	}
	s := m.state(txnID)
	if s == nil {
		return dberrors.Newf(dberrors.Precondition, "txn %d is not registered", txnID)
	}
	m.txnMu.Lock()
	tableMode, tableHeld := s.tableLocks[oid]
	m.txnMu.Unlock()
	if !rowLockRequiresTableMode(mode, tableMode, tableHeld) {
		m.abort(txnID)
		return dberrors.Newf(dberrors.IllegalLock, "txn %d: TABLE_LOCK_NOT_PRESENT for row lock %s on table %d", txnID, mode, oid)
	}

	q := m.rowQueue(rid)
	if err := m.acquire(txnID, q, mode); err != nil {
		return err
	}

	m.txnMu.Lock()
	if s.rowLocks[oid] == nil {
		s.rowLocks[oid] = make(map[common.RID]Mode)
	}
	s.rowLocks[oid][rid] = mode
	m.txnMu.Unlock()
	return nil
}

// UnlockRow releases txnID's lock on rid. force=true skips the
// phase-transition bookkeeping — used when the transaction manager is
// tearing down all of a committing/aborting transaction's locks at once.
func (m *Manager) UnlockRow(txnID common.TxnID, oid common.TableID, rid common.RID, force bool) error {
	s := m.state(txnID)
	if s == nil {
		return dberrors.Newf(dberrors.Precondition, "txn %d is not registered", txnID)
	}

	q := m.rowQueue(rid)
	q.mu.Lock()
	mode, held := q.heldMode(txnID)
	if !held {
		q.mu.Unlock()
		if !force {
			m.abort(txnID)
		}
		return dberrors.Newf(dberrors.Precondition, "txn %d: ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD on row %s", txnID, rid)
	}
	q.removeTxn(txnID)
	m.release(q)
	q.mu.Unlock()

	m.txnMu.Lock()
	if s.rowLocks[oid] != nil {
		delete(s.rowLocks[oid], rid)
		if len(s.rowLocks[oid]) == 0 {
			delete(s.rowLocks, oid)
		}
	}
	if !force {
		m.maybeTransitionToShrinking(s, mode)
	}
	m.txnMu.Unlock()

	m.graph.removeNode(txnID)
	return nil
}

// maybeTransitionToShrinking applies the GROWING -> SHRINKING rule: under
// RR releasing S or X, under RC releasing X, or under RU releasing X moves
// the transaction into SHRINKING. Callers hold txnMu.
func (m *Manager) maybeTransitionToShrinking(s *txnState, released Mode) {
	if s.phase == Shrinking {
		return
	}
	trigger := false
	switch s.isolation {
	case common.RepeatableRead:
		trigger = released == Shared || released == Exclusive
	case common.ReadCommitted:
		trigger = released == Exclusive
	case common.ReadUncommitted:
		trigger = released == Exclusive
	}
	if trigger {
		s.phase = Shrinking
	}
}

// ReleaseAll drops every lock txnID holds, table and row, forcibly — this
// is what Commit and Abort call to tear a transaction down.
func (m *Manager) ReleaseAll(txnID common.TxnID) {
	s := m.state(txnID)
	if s == nil {
		return
	}

	m.txnMu.Lock()
	rowsByTable := make(map[common.TableID][]common.RID)
	for oid, rids := range s.rowLocks {
		for rid := range rids {
			rowsByTable[oid] = append(rowsByTable[oid], rid)
		}
	}
	tables := make([]common.TableID, 0, len(s.tableLocks))
	for oid := range s.tableLocks {
		tables = append(tables, oid)
	}
	m.txnMu.Unlock()

	for oid, rids := range rowsByTable {
		for _, rid := range rids {
			_ = m.UnlockRow(txnID, oid, rid, true)
		}
	}
	for _, oid := range tables {
		q := m.tableQueue(oid)
		q.mu.Lock()
		q.removeTxn(txnID)
		m.release(q)
		q.mu.Unlock()
	}

	m.txnMu.Lock()
	s.tableLocks = make(map[common.TableID]Mode)
	s.rowLocks = make(map[common.TableID]map[common.RID]Mode)
	m.txnMu.Unlock()

	m.graph.removeNode(txnID)
}

func (m *Manager) runCycleDetection() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CycleDetectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.detectAndResolve()
		}
	}
}

func (m *Manager) detectAndResolve() {
	for {
		victim, ok := m.graph.hasCycle()
		if !ok {
			return
		}
		log.Warn("lock_manager: deadlock detected, aborting victim", zap.Int64("victim", int64(victim)))
		m.abort(victim)
		// Drop every lock the victim already holds so the transactions it
		// was blocking can actually make progress, not just the victim
		// itself — matching resolveDeadlock's ReleaseAllLocks call.
		m.ReleaseAll(victim)
		// Wake every queue so the victim's own goroutine observes aborted=true.
		m.broadcastAll()
	}
}

func (m *Manager) broadcastAll() {
	m.tableMu.Lock()
	tables := make([]*queue, 0, len(m.tables))
	for _, q := range m.tables {
		tables = append(tables, q)
	}
	m.tableMu.Unlock()
	for _, q := range tables {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}

	m.rowMu.Lock()
	rows := make([]*queue, 0, len(m.rows))
	for _, q := range m.rows {
		rows = append(rows, q)
	}
	m.rowMu.Unlock()
	for _, q := range rows {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}
