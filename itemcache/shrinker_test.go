package itemcache

import (
	"context"
	"testing"

	"github.com/driftfs/itemcache/key"
)

// TestShrinkSplitsAroundMiddleItem is scenario 5: evicting the middle item
// of three clean items covered by a single range splits that range in two.
// 5 and 9 are touched so that 7 is the oldest LRU entry Shrink(1) picks.
// Each half stops BoundaryMin keys away from 7 (the walk steps Offset), so
// the left half ends in Major 6 and the right half starts in Major 7.
func TestShrinkSplitsAroundMiddleItem(t *testing.T) {
	c := newTestCache(nil)
	lock := wlock(0, 100)
	if _, err := c.InsertBatch(lock, k(0), k(20), Batch{
		{Key: k(5), Value: key.Value("a")},
		{Key: k(7), Value: key.Value("b")},
		{Key: k(9), Value: key.Value("c")},
	}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	c.lru.touch(c.items.find(k(5)))
	c.lru.touch(c.items.find(k(9)))

	evicted := c.Shrink(1)
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, err := c.Lookup(context.Background(), rlock(0, 100), k(7)); err == nil {
		t.Fatalf("item 7 should have been evicted")
	}

	got := rangeOf(c.ranges)
	want := [][2]uint64{{0, 6}, {7, 20}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ranges after split = %v, want %v", got, want)
	}

	// neighbors 5 and 9 are still cached and covered.
	if _, err := c.Lookup(context.Background(), rlock(0, 100), k(5)); err != nil {
		t.Fatalf("Lookup(5) after split: %v", err)
	}
	if _, err := c.Lookup(context.Background(), rlock(0, 100), k(9)); err != nil {
		t.Fatalf("Lookup(9) after split: %v", err)
	}
}

func TestShrinkAloneDropsRangeEntirely(t *testing.T) {
	c := newTestCache(nil)
	lock := wlock(0, 100)
	if _, err := c.InsertBatch(lock, k(0), k(20), Batch{
		{Key: k(10), Value: key.Value("only")},
	}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	if n := c.Shrink(1); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
	if c.ranges.len() != 0 {
		t.Fatalf("ranges after lone eviction = %d, want 0", c.ranges.len())
	}
}

func TestShrinkLeftNeighborOnlyShrinksRangeEnd(t *testing.T) {
	c := newTestCache(nil)
	lock := wlock(0, 100)
	if _, err := c.InsertBatch(lock, k(0), k(20), Batch{
		{Key: k(5), Value: key.Value("a")},
		{Key: k(10), Value: key.Value("b")},
	}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	// evict the rightmost item (10); only a left neighbor (5) remains. The
	// range end moves BoundaryMin keys below 10, which is still Major 9.
	n := c.shrinkOne(c.items.find(k(10)))
	if n != 1 {
		t.Fatalf("shrinkOne = %d, want 1", n)
	}
	got := rangeOf(c.ranges)
	if len(got) != 1 || got[0] != [2]uint64{0, 9} {
		t.Fatalf("range after left-only shrink = %v, want [[0 9]]", got)
	}
}

func TestShrinkDoesNotEvictDirtyItems(t *testing.T) {
	c := newTestCache(nil)
	lock := wlock(0, 100)
	if err := c.Create(context.Background(), lock, k(5), key.Value("v")); err == nil {
		t.Fatalf("Create against uncovered range should fail")
	}
	c.ranges.insertRange(k(0), k(100))
	if err := c.Create(context.Background(), lock, k(5), key.Value("v")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// the only item is dirty and not in the LRU, so nothing is evictable.
	if n := c.Shrink(10); n != 0 {
		t.Fatalf("Shrink evicted %d dirty-only items, want 0", n)
	}
}

func TestShrinkBudgetTerminatesWhenAllItemsPinned(t *testing.T) {
	c := newTestCache(nil)
	lock := wlock(0, 100)
	var batch Batch
	for _, m := range []uint64{1, 2, 3, 4, 5} {
		batch = append(batch, BatchItem{Key: k(m), Value: key.Value("v")})
	}
	if _, err := c.InsertBatch(lock, k(0), k(100), batch); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	// Mark every item dirty so none are evictable; Shrink must still
	// terminate instead of spinning, bounded by the LRU-size budget.
	for _, m := range []uint64{1, 2, 3, 4, 5} {
		if err := c.Dirty(lock, k(m)); err != nil {
			t.Fatalf("Dirty(%d): %v", m, err)
		}
	}
	if n := c.Shrink(5); n != 0 {
		t.Fatalf("Shrink evicted %d, want 0", n)
	}
}
