package itemcache

import "github.com/driftfs/itemcache/key"

// BoundaryMin and BoundaryMax bound the shrinker's outward walk from a
// candidate eviction item while it looks for a numerically sound split
// point (§4.7 step 2).
const (
	BoundaryMin = 32
	BoundaryMax = 300
)

// Shrink reclaims up to nr clean items from the LRU, oldest first,
// preserving the invariant that no key outside an explicit item can be
// mistaken for known-absent once its covering range is adjusted (§4.7).
// It returns the number of items actually evicted. Unlike the source's
// memory-pressure callback, this is invoked explicitly by a caller-driven
// loop (§5) — there is no Go analog to a kernel shrinker context.
func (c *Cache) Shrink(nr int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	// Bounding the scan by the LRU's size at entry, rather than chasing a
	// saved list.Element across calls that may unlink it, is what gives
	// the progress guarantee: a shrinkOne that makes no progress rotates
	// its item to the tail (shrinking neither nr nor the LRU), and every
	// such rotation consumes one unit of this budget, so the loop cannot
	// spin forever even if every remaining item is pinned or dirty.
	budget := c.lru.len()
	for evicted < nr && budget > 0 {
		cur := c.lru.front()
		if cur == nil {
			break
		}
		budget--

		n := c.shrinkOne(cur)
		evicted += n
		if n == 0 {
			c.counters.ShrinkFail()
			c.lru.rotateToBack(cur)
		}
	}

	c.pruneEmptyRanges()
	return evicted
}

// shrinkOne attempts to evict the window around it, returning the number
// of items evicted (0 on failure to make progress for this item — it is
// rotated to the LRU tail by the caller).
func (c *Cache) shrinkOne(it *cell) int {
	rng := c.ranges.coverage(it.key)
	if rng == nil {
		c.eraseItemLocked(it)
		c.counters.ShrinkAlone()
		return 1
	}

	firstKey, lastKey := c.shrinkBoundary(it, rng)

	leftNeighbor := c.items.lastLess(it.key)
	hasLeftNeighbor := leftNeighbor != nil && key.Compare(leftNeighbor.key, rng.rangeStart) >= 0
	rightNeighbor := c.items.firstGreater(it.key)
	hasRightNeighbor := rightNeighbor != nil && key.Compare(rightNeighbor.key, rng.rangeEnd) <= 0

	var victims []*cell
	c.itemsInRange(firstKey, lastKey, func(n *cell) { victims = append(victims, n) })
	evictedCount := len(victims)

	switch {
	case !hasLeftNeighbor && !hasRightNeighbor:
		c.ranges.t.Delete(rng)
		c.counters.ShrinkAlone()
		for _, v := range victims {
			c.eraseItemLocked(v)
		}
	case hasLeftNeighbor && !hasRightNeighbor:
		shrinkRangeEnd(rng, key.Dec(firstKey))
		c.counters.ShrinkLeft()
		for _, v := range victims {
			c.eraseItemLocked(v)
		}
	case !hasLeftNeighbor && hasRightNeighbor:
		shrinkRangeStart(rng, key.Inc(lastKey))
		c.counters.ShrinkRight()
		for _, v := range victims {
			c.eraseItemLocked(v)
		}
	default:
		// Split: reuse the memory of one evicted item as the new
		// right-half range, per §4.7 step 3 and the design notes'
		// sizeof(Item) >= sizeof(Range) invariant. The reused cell is
		// never passed to eraseItemLocked — it leaves the item map but
		// its allocation lives on as a range cell.
		c.ranges.t.Delete(rng)
		newEnd := key.Dec(firstKey)
		newStart := key.Inc(lastKey)
		oldEnd := rng.rangeEnd
		reuseFrom := victims[len(victims)-1]
		victims = victims[:len(victims)-1]
		rng.rangeEnd = newEnd
		c.ranges.t.ReplaceOrInsert(rng)
		for _, v := range victims {
			c.eraseItemLocked(v)
		}
		c.removeFromLRUAndTree(reuseFrom)
		right := reuseAsRange(reuseFrom, newStart, oldEnd)
		c.ranges.t.ReplaceOrInsert(right)
		c.counters.ShrinkSplit()
	}

	return evictedCount
}

// removeFromLRUAndTree unlinks c from the item tree and LRU without
// treating it as a freed item (no ItemFree counter, no dirty accounting
// change) — used only when the cell's memory is about to be reused as a
// range record rather than discarded.
func (c *Cache) removeFromLRUAndTree(it *cell) {
	c.lru.remove(it)
	c.items.erase(it)
}

func shrinkRangeEnd(r *cell, newEnd key.Key) {
	r.rangeEnd = newEnd
}

func shrinkRangeStart(r *cell, newStart key.Key) {
	r.rangeStart = newStart
}

// shrinkBoundary walks outward from it.key in both directions, one key at
// a time, up to BoundaryMax steps, looking for the furthest point on each
// side whose key, when decremented/incremented again, would reach or
// cross the nearest existing neighbor on that side — i.e. the furthest
// point at which splitting the covering range is still numerically sound.
// The walk stops early at the range endpoint, at a dirty neighbor (no
// slack is given next to an item that cannot itself be evicted), or once
// a valid point has been found and BoundaryMin steps taken (§4.7 step 2).
// Unlike a walk over existing items, this never skips past a neighbor
// that sits only a few keys away from it, which is what keeps an eviction
// window tight around dense neighbors while still giving sparse regions
// up to BoundaryMin keys of slack.
func (c *Cache) shrinkBoundary(it, rng *cell) (first, last key.Key) {
	left := c.items.lastLess(it.key)
	first = it.key
	if left == nil || !left.isSelfDirty() {
		for steps := 0; steps < BoundaryMax; steps++ {
			if key.Compare(first, key.Zero) == 0 {
				break
			}
			cand := key.Dec(first)
			if key.Compare(cand, rng.rangeStart) < 0 {
				break
			}
			if left != nil && key.Compare(cand, left.key) <= 0 {
				break
			}
			first = cand
			if steps+1 >= BoundaryMin {
				break
			}
		}
	}

	right := c.items.firstGreater(it.key)
	last = it.key
	if right == nil || !right.isSelfDirty() {
		for steps := 0; steps < BoundaryMax; steps++ {
			if key.Compare(last, key.Max) == 0 {
				break
			}
			cand := key.Inc(last)
			if key.Compare(cand, rng.rangeEnd) > 0 {
				break
			}
			if right != nil && key.Compare(cand, right.key) >= 0 {
				break
			}
			last = cand
			if steps+1 >= BoundaryMin {
				break
			}
		}
	}
	return first, last
}

// pruneEmptyRanges removes any range left with no items in it after a
// shrink pass that split/shrank ranges around it (§4.7 step 5). A range
// with no items is indistinguishable from "nothing has ever read this
// span", so it is safe — and required, since nothing refers to it by key
// any more — to drop it rather than leave dead negative-cache coverage.
//
// This is a reference-counting gap left deliberately unaddressed: walking
// every range on every Shrink call to check for zero items is O(ranges),
// acceptable only because this port drives Shrink far less often than the
// source's per-allocation shrinker callback would.
func (c *Cache) pruneEmptyRanges() {
	var empty []*cell
	c.ranges.ascend(func(r *cell) bool {
		if !c.rangeHasItems(r) {
			empty = append(empty, r)
		}
		return true
	})
	for _, r := range empty {
		c.ranges.t.Delete(r)
	}
}

func (c *Cache) rangeHasItems(r *cell) bool {
	found := false
	c.itemsInRange(r.rangeStart, r.rangeEnd, func(*cell) { found = true })
	return found
}
