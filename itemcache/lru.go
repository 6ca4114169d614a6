package itemcache

import "container/list"

// lruQueue orders clean (non SELF-dirty) items oldest-first, matching the
// teacher's preference for stdlib list types over a hand-rolled ring for
// simple FIFO bookkeeping. An item's lru field holds its *list.Element,
// nil iff the item is SELF-dirty (§3's item invariant).
type lruQueue struct {
	l *list.List
}

func newLRUQueue() *lruQueue {
	return &lruQueue{l: list.New()}
}

// touch inserts c at the back (most recently used / least eligible for
// eviction end) if not already present, or moves it there.
func (q *lruQueue) touch(c *cell) {
	if c.lru != nil {
		q.l.MoveToBack(c.lru)
		return
	}
	c.lru = q.l.PushBack(c)
}

// remove takes c out of the LRU, a no-op if it isn't in it.
func (q *lruQueue) remove(c *cell) {
	if c.lru == nil {
		return
	}
	q.l.Remove(c.lru)
	c.lru = nil
}

// front returns the oldest clean item, or nil if the LRU is empty.
func (q *lruQueue) front() *cell {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*cell)
}

// next returns the item after c in LRU order (toward the back), or nil.
func (q *lruQueue) next(c *cell) *cell {
	if c.lru == nil {
		return nil
	}
	e := c.lru.Next()
	if e == nil {
		return nil
	}
	return e.Value.(*cell)
}

// rotateToBack moves c to the tail, used by the shrinker when it fails to
// evict an item and must make forward progress on the next scan.
func (q *lruQueue) rotateToBack(c *cell) {
	if c.lru == nil {
		return
	}
	q.l.MoveToBack(c.lru)
}

func (q *lruQueue) len() int { return q.l.Len() }
