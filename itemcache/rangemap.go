package itemcache

import (
	"github.com/google/btree"

	"github.com/driftfs/itemcache/key"
)

const rangeBTreeDegree = 32

// rangeMap is the ordered, non-overlapping, non-adjacent set of negative
// cache coverage ranges (§4.4), backed by google/btree ordered on range
// start. Ranges need no per-node augmentation (unlike the item map), so a
// plain ordered btree is the right fit, with no hand-rolled balancing.
type rangeMap struct {
	t *btree.BTreeG[*cell]
}

func lessRange(a, b *cell) bool { return key.Less(a.rangeStart, b.rangeStart) }

func newRangeMap() *rangeMap {
	return &rangeMap{t: btree.NewG(rangeBTreeDegree, lessRange)}
}

// coverage returns the range containing k, or nil.
func (rm *rangeMap) coverage(k key.Key) *cell {
	var found *cell
	probe := &cell{rangeStart: k}
	rm.t.DescendLessOrEqual(probe, func(r *cell) bool {
		if key.Compare(k, r.rangeEnd) <= 0 {
			found = r
		}
		return false
	})
	return found
}

// overlapping returns a range cell whose [start,end] intersects or
// touches-and-merges with [start,end] (adjacency counts as overlap here
// because the cover must stay non-adjacent, per §4.4), or nil.
func (rm *rangeMap) overlapping(start, end key.Key) *cell {
	var found *cell
	// A range starting at or before inc(end) might still reach back to
	// overlap/touch [start,end]; scan candidates at or below inc(end)
	// starting from the closest one, then confirm true overlap.
	probeEnd := key.Inc(end)
	rm.t.DescendLessOrEqual(&cell{rangeStart: probeEnd}, func(r *cell) bool {
		// r.rangeStart <= inc(end). Touching/overlapping iff r.rangeEnd
		// is at or after dec(start) (adjacency merges too).
		if key.Compare(start, key.Zero) == 0 || key.Compare(r.rangeEnd, key.Dec(start)) >= 0 {
			found = r
			return false
		}
		return false
	})
	return found
}

// insertRange merges r (expressed as bare start/end, not yet a cell) into
// the map, expanding across overlapping or adjacent siblings until none
// remain, per §4.4's insert(range r).
func (rm *rangeMap) insertRange(start, end key.Key) {
	for {
		sib := rm.overlapping(start, end)
		if sib == nil {
			break
		}
		if key.Compare(sib.rangeStart, start) < 0 {
			start = sib.rangeStart
		}
		if key.Compare(sib.rangeEnd, end) > 0 {
			end = sib.rangeEnd
		}
		rm.t.Delete(sib)
	}
	rm.t.ReplaceOrInsert(&cell{isRange: true, rangeStart: start, rangeEnd: end})
}

// removeRange removes [start,end] from coverage, shrinking or splitting
// whichever range(s) overlap it, per §4.4's remove(range r). evictedItem,
// if non-nil, is an already-unlinked item cell whose memory is reused for
// the new right-half range created by a split instead of allocating one;
// Invalidate passes nil. The shrinker does not call removeRange: shrinkOne
// performs its own split with the same cell reuse.
func (rm *rangeMap) removeRange(start, end key.Key, evictedItem *cell) {
	for {
		r := rm.overlapAny(start, end)
		if r == nil {
			return
		}
		rm.t.Delete(r)
		leftEnd := key.Dec(start)
		rightStart := key.Inc(end)
		hasLeft := key.Compare(r.rangeStart, start) < 0
		hasRight := key.Compare(r.rangeEnd, end) > 0
		switch {
		case hasLeft && hasRight:
			rm.t.ReplaceOrInsert(&cell{isRange: true, rangeStart: r.rangeStart, rangeEnd: leftEnd})
			var right *cell
			if evictedItem != nil {
				right = reuseAsRange(evictedItem, rightStart, r.rangeEnd)
				evictedItem = nil
			} else {
				right = &cell{isRange: true, rangeStart: rightStart, rangeEnd: r.rangeEnd}
			}
			rm.t.ReplaceOrInsert(right)
		case hasLeft:
			rm.t.ReplaceOrInsert(&cell{isRange: true, rangeStart: r.rangeStart, rangeEnd: leftEnd})
		case hasRight:
			rm.t.ReplaceOrInsert(&cell{isRange: true, rangeStart: rightStart, rangeEnd: r.rangeEnd})
		default:
			// r falls entirely within [start,end]; drop it.
		}
	}
}

// overlapAny returns any range cell whose [start,end] has a nonempty
// intersection with [start,end] (not merging adjacency, unlike
// insertRange's overlapping: removal must not touch merely-adjacent
// ranges).
func (rm *rangeMap) overlapAny(start, end key.Key) *cell {
	var found *cell
	rm.t.DescendLessOrEqual(&cell{rangeStart: end}, func(r *cell) bool {
		if key.Compare(r.rangeEnd, start) >= 0 {
			found = r
		}
		return false
	})
	return found
}

// keysSince fills out with the [start,end] endpoints of ranges from the
// first range intersecting or following k onward, up to len(out), per
// §4.4's keys_since. Returns the number of keys written (always even).
func (rm *rangeMap) keysSince(k key.Key, out []key.Key) int {
	n := 0
	// Start from the range containing k (if any), else the first range
	// with start > k.
	start := rm.coverage(k)
	emit := func(r *cell) bool {
		if n+2 > len(out) {
			return false
		}
		out[n] = r.rangeStart
		out[n+1] = r.rangeEnd
		n += 2
		return true
	}
	if start != nil {
		if !emit(start) {
			return n
		}
	}
	from := key.Inc(k)
	if start != nil {
		from = key.Inc(start.rangeEnd)
	}
	rm.t.AscendGreaterOrEqual(&cell{rangeStart: from}, func(r *cell) bool {
		return emit(r)
	})
	return n
}

func (rm *rangeMap) len() int { return rm.t.Len() }

// ascend calls fn for every range cell in ascending start order.
func (rm *rangeMap) ascend(fn func(r *cell) bool) {
	rm.t.Ascend(fn)
}
