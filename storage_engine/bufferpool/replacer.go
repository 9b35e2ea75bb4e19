package bufferpool

import (
	"sync"

	"DaemonDB/common"
	"DaemonDB/dberrors"
)

// Replacer chooses which resident, evictable frame to reclaim next. The
// buffer pool is the only caller; it is deliberately kept as a narrow
// interface so a different eviction policy could be swapped in without
// touching the pool itself — the pool's contract (§4.3) only ever asks for
// "some evictable frame", never a specific algorithm.
type Replacer interface {
	RecordAccess(frameID common.FrameID)
	SetEvictable(frameID common.FrameID, evictable bool) error
	Remove(frameID common.FrameID) error
	Evict() (common.FrameID, bool)
	Size() int
}

// LRUKReplacer implements the abstract LRU-K semantics of §4.2 directly:
// for each tracked frame it keeps the k most recent access timestamps
// (a logical clock, not wall time, so behavior is deterministic under
// test) and evicts the evictable frame with the largest backward
// k-distance, breaking ties among infinite-distance frames by classic LRU.
//
// The original replacer this is modeled on drove eviction off two separate
// lists and a decrementing current_timestamp_ counter whose intent even the
// component design calls "unclear" — that control flow is not reproduced
// here; this is the clean semantics the design mandates instead.
type LRUKReplacer struct {
	mu sync.Mutex

	k     int
	clock int64

	history   map[common.FrameID][]int64 // bounded to the most recent k entries
	evictable map[common.FrameID]bool
}

// NewLRUKReplacer constructs a replacer with history depth k. It tracks any
// frame id passed to RecordAccess; the frame count is not bounded here.
func NewLRUKReplacer(k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:         k,
		history:   make(map[common.FrameID][]int64),
		evictable: make(map[common.FrameID]bool),
	}
}

// RecordAccess appends the current logical timestamp to frameID's history,
// starting to track frameID if this is its first access.
func (r *LRUKReplacer) RecordAccess(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock++
	h := r.history[frameID]
	h = append(h, r.clock)
	if len(h) > r.k {
		h = h[len(h)-r.k:]
	}
	r.history[frameID] = h
}

// SetEvictable flips the evictable flag for a tracked frame. It is illegal
// to call this on a frame with no recorded history.
func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, tracked := r.history[frameID]; !tracked {
		return dberrors.Newf(dberrors.Precondition, "SetEvictable on untracked frame %d", frameID)
	}
	r.evictable[frameID] = evictable
	return nil
}

// Remove drops a frame's history entirely. Illegal on a non-evictable
// frame (it may still be pinned and in active use).
func (r *LRUKReplacer) Remove(frameID common.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, tracked := r.history[frameID]; !tracked {
		return nil
	}
	if !r.evictable[frameID] {
		return dberrors.Newf(dberrors.Precondition, "Remove on non-evictable frame %d", frameID)
	}
	delete(r.history, frameID)
	delete(r.evictable, frameID)
	return nil
}

// Evict returns the evictable frame with the largest backward k-distance,
// ties broken by earliest recorded access (the frame touched least
// recently wins), or ok=false if no frame is evictable.
func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		victim    common.FrameID
		found     bool
		bestDist  int64 = -1
		bestEarly int64
		bestInf   bool
	)

	for frameID, ok := range r.evictable {
		if !ok {
			continue
		}
		h := r.history[frameID]
		infinite := len(h) < r.k
		var dist int64
		if infinite {
			dist = 0
		} else {
			dist = r.clock - h[0] // h[0] is the k-th most recent access
		}
		earliest := h[0]

		switch {
		case !found:
			victim, found, bestDist, bestInf, bestEarly = frameID, true, dist, infinite, earliest
		case infinite && !bestInf:
			victim, bestDist, bestInf, bestEarly = frameID, dist, true, earliest
		case infinite == bestInf && infinite:
			if earliest < bestEarly {
				victim, bestEarly = frameID, earliest
			}
		case infinite == bestInf && !infinite:
			if dist > bestDist {
				victim, bestDist = frameID, dist
			}
		}
	}

	if !found {
		return 0, false
	}
	delete(r.history, victim)
	delete(r.evictable, victim)
	return victim, true
}

// Size reports the number of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ok := range r.evictable {
		if ok {
			n++
		}
	}
	return n
}
