package lockmgr

import (
	"testing"
	"time"

	"DaemonDB/common"
	"DaemonDB/dberrors"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(Config{CycleDetectionInterval: 10 * time.Millisecond})
	t.Cleanup(m.Close)
	return m
}

func TestLockManager_CompatibleTableLocksBothGrant(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	m.Begin(2, common.RepeatableRead)

	require.NoError(t, m.LockTable(1, IntentionShared, 100))
	require.NoError(t, m.LockTable(2, IntentionShared, 100))
}

func TestLockManager_IncompatibleLockBlocksUntilRelease(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	m.Begin(2, common.RepeatableRead)

	require.NoError(t, m.LockTable(1, Exclusive, 100))

	done := make(chan error, 1)
	go func() { done <- m.LockTable(2, Exclusive, 100) }()

	select {
	case <-done:
		t.Fatal("T2 should still be blocked on T1's X lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.UnlockTable(1, 100))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("T2 never unblocked after T1 released")
	}
}

// Scenario 6: lock upgrade. T1 holds S, requests X — blocks on T2's S;
// releasing T2's S unblocks T1's upgrade.
func TestLockManager_UpgradeBlocksThenGrantsOnRelease(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	m.Begin(2, common.RepeatableRead)

	require.NoError(t, m.LockTable(1, Shared, 100))
	require.NoError(t, m.LockTable(2, Shared, 100))

	done := make(chan error, 1)
	go func() { done <- m.LockTable(1, Exclusive, 100) }()

	select {
	case <-done:
		t.Fatal("T1's upgrade should block on T2's S")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.UnlockTable(2, 100))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("T1's upgrade never unblocked after T2 released")
	}
}

func TestLockManager_IncompatibleUpgradeIsIllegal(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	require.NoError(t, m.LockTable(1, Exclusive, 100))

	err := m.LockTable(1, Shared, 100)
	require.Error(t, err)
	require.True(t, dberrors.Is(err, dberrors.IllegalLock))
}

func TestLockManager_RowLockRequiresTableLock(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)

	rid := common.NewRID(common.PageID(1), 0)
	err := m.LockRow(1, Shared, 100, rid)
	require.Error(t, err)
	require.True(t, dberrors.Is(err, dberrors.IllegalLock))

	// The rejected request aborted txn 1, so a fresh transaction shows that
	// the row lock is granted once the table lock is held.
	m.Begin(2, common.RepeatableRead)
	require.NoError(t, m.LockTable(2, IntentionShared, 100))
	require.NoError(t, m.LockRow(2, Shared, 100, rid))
}

func TestLockManager_UnlockTableBeforeRowsIsIllegal(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	require.NoError(t, m.LockTable(1, IntentionExclusive, 100))
	rid := common.NewRID(common.PageID(1), 0)
	require.NoError(t, m.LockRow(1, Exclusive, 100, rid))

	err := m.UnlockTable(1, 100)
	require.Error(t, err)
	require.True(t, dberrors.Is(err, dberrors.Precondition))
}

func TestLockManager_UnlockUnheldLockIsIllegal(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	err := m.UnlockTable(1, 100)
	require.Error(t, err)
	require.True(t, dberrors.Is(err, dberrors.Precondition))
}

func TestLockManager_ReadUncommittedRejectsSharedModes(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.ReadUncommitted)
	err := m.LockTable(1, Shared, 100)
	require.Error(t, err)
	require.True(t, dberrors.Is(err, dberrors.IllegalLock))
	require.True(t, m.IsAborted(1))
}

func TestLockManager_ShrinkingForbidsNewAcquisitionUnderRepeatableRead(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	require.NoError(t, m.LockTable(1, Shared, 100))
	require.NoError(t, m.UnlockTable(1, 100))

	err := m.LockTable(1, Shared, 200)
	require.Error(t, err)
	require.True(t, dberrors.Is(err, dberrors.IllegalLock))
}

// Scenario 7: deadlock. T1 holds X on r1, wants X on r2; T2 holds X on r2,
// wants X on r1. Within one detector interval the higher id is aborted.
func TestLockManager_DeadlockAbortsYoungerTransaction(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	m.Begin(2, common.RepeatableRead)
	require.NoError(t, m.LockTable(1, IntentionExclusive, 100))
	require.NoError(t, m.LockTable(2, IntentionExclusive, 100))

	r1 := common.NewRID(common.PageID(1), 0)
	r2 := common.NewRID(common.PageID(2), 0)

	require.NoError(t, m.LockRow(1, Exclusive, 100, r1))
	require.NoError(t, m.LockRow(2, Exclusive, 100, r2))

	t1Done := make(chan error, 1)
	t2Done := make(chan error, 1)
	go func() { t1Done <- m.LockRow(1, Exclusive, 100, r2) }()
	go func() { t2Done <- m.LockRow(2, Exclusive, 100, r1) }()

	var t1Err, t2Err error
	var t1Got, t2Got bool
	timeout := time.After(2 * time.Second)
	for !t1Got || !t2Got {
		select {
		case t1Err = <-t1Done:
			t1Got = true
		case t2Err = <-t2Done:
			t2Got = true
		case <-timeout:
			t.Fatal("deadlock was never resolved")
		}
	}

	// Exactly one of the two should have failed as the deadlock victim —
	// the higher-id transaction (2), the other proceeds.
	require.Error(t, t2Err)
	require.True(t, dberrors.Is(t2Err, dberrors.DeadlockVictim))
	require.NoError(t, t1Err)
}

func TestLockManager_ReleaseAllDropsEveryLock(t *testing.T) {
	m := newTestManager(t)
	m.Begin(1, common.RepeatableRead)
	require.NoError(t, m.LockTable(1, IntentionExclusive, 100))
	rid := common.NewRID(common.PageID(1), 0)
	require.NoError(t, m.LockRow(1, Exclusive, 100, rid))

	m.ReleaseAll(1)

	m.Begin(2, common.RepeatableRead)
	require.NoError(t, m.LockTable(2, Exclusive, 100))
}
