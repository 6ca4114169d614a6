package itemcache

import (
	"container/list"

	"github.com/driftfs/itemcache/key"
)

// dirtyBits packs the three independent bits §4.3 assigns to every node in
// the item map: SELF (this item must be written at next commit) and
// LEFT/RIGHT (the respective subtree contains some SELF-dirty item).
type dirtyBits uint8

const (
	dirtySelf  dirtyBits = 1 << 0
	dirtyLeft  dirtyBits = 1 << 1
	dirtyRight dirtyBits = 1 << 2
)

// cell is the unit of storage for both the item map and, after eviction,
// a range-map record. The shrinker reuses an evicted item's cell as the
// memory for a new Range rather than allocating (§4.7, step 3's "reuse the
// memory of one evicted item"); isRange discriminates which view is live.
// This is the Go expression of the design notes' tagged-union requirement
// that sizeof(Item) >= sizeof(Range): here the union is a single struct
// with both field sets, and reuse means handing the same *cell onward
// instead of allocating a fresh one, not a byte-level memory cast.
type cell struct {
	isRange bool

	// item fields, valid when !isRange.
	key        key.Key
	value      key.Value
	deletion   bool
	persistent bool
	dirty      dirtyBits
	lru        *list.Element // nil iff SELF dirty

	// range fields, valid when isRange.
	rangeStart key.Key
	rangeEnd   key.Key

	// tree linkage, shared: a cell is either linked into the item tree
	// (isRange == false) or held by the caller/range map, never both.
	left, right, parent *cell
	red                  bool
}

func newItemCell(k key.Key, v key.Value, deletion, persistent bool) *cell {
	return &cell{
		key:        k,
		value:      v,
		deletion:   deletion,
		persistent: persistent,
	}
}

// reuseAsRange turns an item cell already unlinked from the item tree into
// a range cell, clearing item-only fields and the tree-linkage fields so
// it can be inserted fresh into the range map.
func reuseAsRange(c *cell, start, end key.Key) *cell {
	c.isRange = true
	c.value = nil
	c.deletion = false
	c.persistent = false
	c.dirty = 0
	c.lru = nil
	c.left, c.right, c.parent = nil, nil, nil
	c.red = false
	c.rangeStart = start
	c.rangeEnd = end
	return c
}

func (c *cell) isSelfDirty() bool { return c.dirty&dirtySelf != 0 }

// Item is the read-only view of a cached item returned to callers.
type Item struct {
	Key        key.Key
	Value      key.Value
	Deletion   bool
	Persistent bool
	Dirty      bool
}

func (c *cell) toItem() Item {
	return Item{
		Key:        c.key,
		Value:      c.value,
		Deletion:   c.deletion,
		Persistent: c.persistent,
		Dirty:      c.isSelfDirty(),
	}
}
