package bufferpool

import (
	"testing"

	"DaemonDB/common"

	"github.com/stretchr/testify/require"
)

func TestLRUKReplacer_TieBreakOnInfiniteDistance(t *testing.T) {
	r := NewLRUKReplacer(2)

	// Access A, Access B, Access C, Access A, Access B.
	const a, b, c = common.FrameID(0), common.FrameID(1), common.FrameID(2)
	r.RecordAccess(a)
	r.RecordAccess(b)
	r.RecordAccess(c)
	r.RecordAccess(a)
	r.RecordAccess(b)

	require.NoError(t, r.SetEvictable(a, true))
	require.NoError(t, r.SetEvictable(b, true))
	require.NoError(t, r.SetEvictable(c, true))

	// With k=2, C has only one recorded access (infinite backward
	// distance) while A and B have two. Evict must return C.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, c, victim)
}

func TestLRUKReplacer_SetEvictableOnUnknownFrameIsIllegal(t *testing.T) {
	r := NewLRUKReplacer(2)
	err := r.SetEvictable(common.FrameID(9), true)
	require.Error(t, err)
}

func TestLRUKReplacer_RemoveNonEvictableIsIllegal(t *testing.T) {
	r := NewLRUKReplacer(2)
	r.RecordAccess(common.FrameID(0))
	require.NoError(t, r.SetEvictable(common.FrameID(0), false))
	require.Error(t, r.Remove(common.FrameID(0)))
}

func TestLRUKReplacer_SizeTracksEvictableCount(t *testing.T) {
	r := NewLRUKReplacer(2)
	r.RecordAccess(common.FrameID(0))
	r.RecordAccess(common.FrameID(1))
	require.Equal(t, 0, r.Size())

	require.NoError(t, r.SetEvictable(common.FrameID(0), true))
	require.Equal(t, 1, r.Size())

	require.NoError(t, r.SetEvictable(common.FrameID(1), true))
	require.Equal(t, 2, r.Size())
}

func TestLRUKReplacer_EvictNoneWhenNothingEvictable(t *testing.T) {
	r := NewLRUKReplacer(2)
	r.RecordAccess(common.FrameID(0))
	_, ok := r.Evict()
	require.False(t, ok)
}
