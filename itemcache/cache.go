package itemcache

import (
	"context"
	"sync"

	"github.com/driftfs/itemcache/key"
)

// Cache is the item cache: a single in-memory component guarding an item
// map, a range map, and an LRU queue behind one mutex (§5). All exported
// methods are safe for concurrent use.
type Cache struct {
	mu sync.Mutex

	items  itemTree
	ranges *rangeMap
	lru    *lruQueue

	nrDirtyItems  int
	dirtyValBytes int

	manifest Manifest
	tracker  Tracker
	syncer   Syncer
	counters Counters
	log      *logger
}

// Options configures a Cache at Setup. All fields are optional; a nil
// Manifest means NEEDS_READ can never be resolved (reads will fail with
// IOError instead of retrying forever), and a nil Tracker/Syncer/Counters
// degrades to no-ops.
type Options struct {
	Manifest Manifest
	Tracker  Tracker
	Syncer   Syncer
	Counters Counters
}

// Setup constructs a Cache, mirroring the source's mount-time registration
// with the memory pressure broker (§9's "Global state") minus the broker
// itself — in this port the shrinker is driven explicitly by a caller
// (typically cmd/itemcache's background loop) rather than an OS callback.
func Setup(opts Options) *Cache {
	counters := opts.Counters
	if counters == nil {
		counters = noopCounters{}
	}
	return &Cache{
		ranges:   newRangeMap(),
		lru:      newLRUQueue(),
		manifest: opts.Manifest,
		tracker:  opts.Tracker,
		syncer:   opts.Syncer,
		counters: counters,
		log:      newLogger("itemcache"),
	}
}

// SetManifest binds the Cache's read-through source after construction,
// for callers whose Manifest implementation itself needs a *Cache to call
// InsertBatch on (manifest/pebbleseg.Store is the concrete example) and
// so cannot be built before the Cache it will be wired into.
func (c *Cache) SetManifest(m Manifest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifest = m
}

// SetTracker and SetSyncer bind the Cache's dirty-accounting and commit
// collaborators after construction, for the same reason SetManifest
// exists: trans.Committer implements both Tracker and Syncer but itself
// needs a *Cache reference to drive Cache.DirtySeg, so it cannot be
// built before the Cache it will be wired into.
func (c *Cache) SetTracker(t Tracker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker = t
}

func (c *Cache) SetSyncer(s Syncer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncer = s
}

// Destroy frees all items and ranges. No augmentation bookkeeping runs
// since nothing will query the tree again (§9).
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.inorder(func(cl *cell) {
		c.counters.ItemFree()
	})
	c.items = itemTree{}
	c.ranges = newRangeMap()
	c.lru = newLRUQueue()
	c.nrDirtyItems = 0
	c.dirtyValBytes = 0
}

func (c *Cache) accountDirtyDelta(deltaItems, deltaBytes int) {
	c.nrDirtyItems += deltaItems
	c.dirtyValBytes += deltaBytes
	if c.tracker != nil {
		c.tracker.TrackItem(deltaItems, deltaBytes)
	}
}

func (c *Cache) readThrough(ctx context.Context, lock Lock, at key.Key) *CacheError {
	if c.manifest == nil {
		return newErr(IOError, "no manifest configured, cannot resolve needs-read at %v", at)
	}
	if err := c.manifest.ReadItems(ctx, at, lock.Start(), lock.End()); err != nil {
		return newErr(IOError, "manifest read at %v: %v", at, err)
	}
	return nil
}

// eraseItemLocked removes it from the tree, LRU, and dirty accounting.
// Caller must hold mu.
func (c *Cache) eraseItemLocked(it *cell) {
	if it.isSelfDirty() {
		oldLen := len(it.value)
		clearDirty(it)
		c.accountDirtyDelta(-1, -oldLen)
	} else {
		c.lru.remove(it)
	}
	c.items.erase(it)
	c.counters.ItemFree()
}

// itemsInRange calls fn for every item with key in [start,end], ascending.
// Caller must hold mu for the duration.
func (c *Cache) itemsInRange(start, end key.Key, fn func(n *cell)) {
	var walk func(n *cell)
	walk = func(n *cell) {
		if n == nil {
			return
		}
		if key.Compare(n.key, start) > 0 {
			walk(n.left)
		}
		if key.Compare(n.key, start) >= 0 && key.Compare(n.key, end) <= 0 {
			fn(n)
		}
		if key.Compare(n.key, end) < 0 {
			walk(n.right)
		}
	}
	walk(c.items.root)
}

// anyDirtyInRange reports whether any SELF-dirty item's key falls in
// [start,end], pruning subtrees using the LEFT/RIGHT aggregate bits so the
// cost is proportional to the number of dirty items actually near the
// range rather than the whole tree. Caller must hold mu.
func (c *Cache) anyDirtyInRange(start, end key.Key) bool {
	var found bool
	var walk func(n *cell)
	walk = func(n *cell) {
		if n == nil || found {
			return
		}
		if n.dirty&dirtyLeft != 0 && key.Compare(n.key, start) > 0 {
			walk(n.left)
		}
		if found {
			return
		}
		if n.isSelfDirty() && key.Compare(n.key, start) >= 0 && key.Compare(n.key, end) <= 0 {
			found = true
			return
		}
		if n.dirty&dirtyRight != 0 && key.Compare(n.key, end) < 0 {
			walk(n.right)
		}
	}
	walk(c.items.root)
	return found
}

func (c *Cache) fullyCovered(start, end key.Key) bool {
	r := c.ranges.coverage(start)
	return r != nil && key.Compare(r.rangeEnd, end) >= 0
}

// narrowEnd clamps last to at most lockEnd (§4.1: "effective last/first is
// always narrowed to the lock's start/end").
func narrowEnd(last, lockEnd key.Key) key.Key {
	if key.Compare(last, lockEnd) > 0 {
		return lockEnd
	}
	return last
}

func narrowStart(first, lockStart key.Key) key.Key {
	if key.Compare(first, lockStart) < 0 {
		return lockStart
	}
	return first
}

// Lookup returns the value at k, NOT_FOUND if k is a tombstone or is
// covered-but-absent, or triggers the miss loop on a coverage gap (§4.1).
func (c *Cache) Lookup(ctx context.Context, lock Lock, k key.Key) (Item, error) {
	if err := checkLock(lock, Read, k); err != nil {
		return Item{}, err
	}
	for {
		item, needsRead := c.lookupLocked(k)
		if needsRead {
			if err := c.readThrough(ctx, lock, k); err != nil {
				return Item{}, err
			}
			continue
		}
		if item == nil || item.deletion {
			c.counters.LookupMiss()
			return Item{}, newErr(NotFound, "key %v not found", k)
		}
		c.counters.LookupHit()
		return item.toItem(), nil
	}
}

func (c *Cache) lookupLocked(k key.Key) (item *cell, needsRead bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f := c.items.find(k); f != nil {
		return f, false
	}
	if c.ranges.coverage(k) != nil {
		c.counters.RangeHit()
		return nil, false
	}
	c.counters.RangeMiss()
	return nil, true
}

// LookupExact is the supplemented lookup_exact: like Lookup, but an IOError
// is returned instead of a truncated value if the stored value's length
// doesn't match wantLen exactly.
func (c *Cache) LookupExact(ctx context.Context, lock Lock, k key.Key, wantLen int) (Item, error) {
	item, err := c.Lookup(ctx, lock, k)
	if err != nil {
		return Item{}, err
	}
	if len(item.Value) != wantLen {
		return Item{}, newErr(IOError, "value length mismatch at %v: got %d want %d", k, len(item.Value), wantLen)
	}
	return item, nil
}

// Next returns the smallest item with key > k and key <= last (narrowed to
// the lock's end), skipping tombstones, per §4.1.
func (c *Cache) Next(ctx context.Context, lock Lock, k, last key.Key) (Item, error) {
	if err := checkLock(lock, Read, k); err != nil {
		return Item{}, err
	}
	last = narrowEnd(last, lock.End())
	cur := k
	for {
		item, readAt, decisive, notFound := c.nextLocked(cur, last)
		if !decisive {
			if err := c.readThrough(ctx, lock, readAt); err != nil {
				return Item{}, err
			}
			continue
		}
		if notFound {
			c.counters.LookupMiss()
			return Item{}, newErr(NotFound, "no next item after %v within %v", k, last)
		}
		c.counters.LookupHit()
		return item.toItem(), nil
	}
}

func (c *Cache) nextLocked(cur, last key.Key) (item *cell, readAt key.Key, decisive, notFound bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		it := c.items.firstGreater(cur)
		if it != nil && key.Compare(it.key, last) <= 0 {
			if it.deletion {
				cur = it.key
				continue
			}
			return it, key.Key{}, true, false
		}
		probe := key.Inc(cur)
		rng := c.ranges.coverage(probe)
		if rng == nil {
			return nil, probe, false, false
		}
		if key.Compare(rng.rangeEnd, last) >= 0 {
			return nil, key.Key{}, true, true
		}
		cur = rng.rangeEnd
	}
}

// Prev is symmetric to Next: the largest item with key < k and key >=
// first (narrowed to the lock's start), skipping tombstones.
func (c *Cache) Prev(ctx context.Context, lock Lock, k, first key.Key) (Item, error) {
	if err := checkLock(lock, Read, k); err != nil {
		return Item{}, err
	}
	first = narrowStart(first, lock.Start())
	cur := k
	for {
		item, readAt, decisive, notFound := c.prevLocked(cur, first)
		if !decisive {
			if err := c.readThrough(ctx, lock, readAt); err != nil {
				return Item{}, err
			}
			continue
		}
		if notFound {
			c.counters.LookupMiss()
			return Item{}, newErr(NotFound, "no prev item before %v within %v", k, first)
		}
		c.counters.LookupHit()
		return item.toItem(), nil
	}
}

func (c *Cache) prevLocked(cur, first key.Key) (item *cell, readAt key.Key, decisive, notFound bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		it := c.items.lastLess(cur)
		if it != nil && key.Compare(it.key, first) >= 0 {
			if it.deletion {
				cur = it.key
				continue
			}
			return it, key.Key{}, true, false
		}
		if key.Compare(cur, key.Zero) == 0 {
			return nil, key.Key{}, true, true
		}
		probe := key.Dec(cur)
		rng := c.ranges.coverage(probe)
		if rng == nil {
			return nil, probe, false, false
		}
		if key.Compare(rng.rangeStart, first) <= 0 {
			return nil, key.Key{}, true, true
		}
		cur = rng.rangeStart
	}
}

// Create inserts (k,v) under WRITE coverage; if k is currently a
// tombstone it is replaced in place, inheriting persistent (§4.2).
func (c *Cache) Create(ctx context.Context, lock Lock, k key.Key, v key.Value) error {
	if err := checkLock(lock, Write, k); err != nil {
		return err
	}
	if len(v) > key.MaxValSize {
		return newErr(InvalidArg, "value too large: %d", len(v))
	}
	nv := v.Clone()
	for {
		done, cerr := c.createLocked(k, nv)
		if cerr != nil {
			return cerr
		}
		if done {
			return nil
		}
		if err := c.readThrough(ctx, lock, k); err != nil {
			return err
		}
	}
}

func (c *Cache) createLocked(k key.Key, v key.Value) (done bool, cerr *CacheError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing != nil {
		if !existing.deletion {
			c.counters.ItemAlreadyExists()
			return false, newErr(AlreadyExists, "key %v already exists", k)
		}
		existing.value = v
		existing.deletion = false
		if !existing.isSelfDirty() {
			c.lru.remove(existing)
			markDirty(existing)
			c.accountDirtyDelta(1, len(v))
		} else {
			c.accountDirtyDelta(0, len(v))
		}
		c.counters.ItemCreate()
		return true, nil
	}
	if c.ranges.coverage(k) == nil {
		return false, nil
	}
	nc := newItemCell(k, v, false, false)
	c.items.insert(nc)
	c.counters.ItemAlloc()
	markDirty(nc)
	c.accountDirtyDelta(1, len(v))
	c.counters.ItemCreate()
	return true, nil
}

// CreateForce unconditionally overwrites any existing item under
// WRITE_ONLY mode, bypassing coverage. A pre-existing non-tombstone is a
// corruption signal (§4.2).
func (c *Cache) CreateForce(lock Lock, k key.Key, v key.Value) error {
	if err := checkLock(lock, WriteOnly, k); err != nil {
		return err
	}
	if len(v) > key.MaxValSize {
		return newErr(InvalidArg, "value too large: %d", len(v))
	}
	nv := v.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing != nil {
		if !existing.deletion {
			corrupt(c.log, "create_force found live non-tombstone item at %v", k)
		}
		existing.value = nv
		existing.deletion = false
		existing.persistent = true
		if !existing.isSelfDirty() {
			c.lru.remove(existing)
			markDirty(existing)
			c.accountDirtyDelta(1, len(nv))
		} else {
			c.accountDirtyDelta(0, len(nv))
		}
		c.counters.ItemCreateForce()
		return nil
	}
	nc := newItemCell(k, nv, false, true)
	c.items.insert(nc)
	c.counters.ItemAlloc()
	markDirty(nc)
	c.accountDirtyDelta(1, len(nv))
	c.counters.ItemCreateForce()
	return nil
}

// Update swaps k's value under WRITE coverage and remarks it dirty (§4.2).
func (c *Cache) Update(lock Lock, k key.Key, v key.Value) error {
	if err := checkLock(lock, Write, k); err != nil {
		return err
	}
	if len(v) > key.MaxValSize {
		return newErr(InvalidArg, "value too large: %d", len(v))
	}
	nv := v.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing == nil || existing.deletion {
		return newErr(NotFound, "key %v not found", k)
	}
	oldLen := len(existing.value)
	existing.value = nv
	if !existing.isSelfDirty() {
		c.lru.remove(existing)
		markDirty(existing)
		c.accountDirtyDelta(1, len(nv))
	} else {
		c.accountDirtyDelta(0, len(nv)-oldLen)
	}
	c.counters.ItemUpdate()
	return nil
}

// UpdateDirty is the supplemented update_dirty: an in-place value swap on
// an item the caller already knows is dirty, skipping the fresh
// dirty-accounting pass Update performs.
func (c *Cache) UpdateDirty(lock Lock, k key.Key, v key.Value) error {
	if err := checkLock(lock, Write, k); err != nil {
		return err
	}
	if len(v) > key.MaxValSize {
		return newErr(InvalidArg, "value too large: %d", len(v))
	}
	nv := v.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing == nil || !existing.isSelfDirty() {
		return newErr(InvalidArg, "update_dirty requires an already-dirty item at %v", k)
	}
	oldLen := len(existing.value)
	existing.value = nv
	c.accountDirtyDelta(0, len(nv)-oldLen)
	c.counters.ItemUpdate()
	return nil
}

// Delete erases k if non-persistent, otherwise turns it into a dirty
// tombstone (§4.2).
func (c *Cache) Delete(lock Lock, k key.Key) error {
	if err := checkLock(lock, Write, k); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing == nil || existing.deletion {
		return newErr(NotFound, "key %v not found", k)
	}
	if !existing.persistent {
		c.eraseItemLocked(existing)
		c.counters.ItemDelete()
		return nil
	}
	oldLen := len(existing.value)
	existing.value = nil
	existing.deletion = true
	if !existing.isSelfDirty() {
		c.lru.remove(existing)
		markDirty(existing)
		c.accountDirtyDelta(1, 0)
	} else {
		c.accountDirtyDelta(0, -oldLen)
	}
	c.counters.ItemDelete()
	c.counters.ItemDeleteTombstoneWritten()
	return nil
}

// DeleteForce installs a tombstone at k under WRITE_ONLY mode without
// first reading the item (§4.2).
func (c *Cache) DeleteForce(lock Lock, k key.Key) error {
	if err := checkLock(lock, WriteOnly, k); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing != nil {
		if existing.deletion {
			c.counters.ItemDeleteForce()
			return nil
		}
		oldLen := len(existing.value)
		existing.value = nil
		existing.deletion = true
		existing.persistent = true
		if !existing.isSelfDirty() {
			c.lru.remove(existing)
			markDirty(existing)
			c.accountDirtyDelta(1, 0)
		} else {
			c.accountDirtyDelta(0, -oldLen)
		}
		c.counters.ItemDeleteForce()
		return nil
	}
	nc := newItemCell(k, nil, true, true)
	c.items.insert(nc)
	c.counters.ItemAlloc()
	markDirty(nc)
	c.accountDirtyDelta(1, 0)
	c.counters.ItemDeleteForce()
	return nil
}

// DeleteDirty is the supplemented delete_dirty: an unconditional,
// error-free-in-the-happy-path delete for callers that have already
// established the item exists and is dirty. A violated precondition is a
// caller contract error and aborts like create_force's corruption check.
func (c *Cache) DeleteDirty(lock Lock, k key.Key) error {
	if err := checkLock(lock, Write, k); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing == nil || !existing.isSelfDirty() {
		corrupt(c.log, "delete_dirty called without a pre-existing dirty item at %v", k)
	}
	oldLen := len(existing.value)
	if !existing.persistent {
		clearDirty(existing)
		c.accountDirtyDelta(-1, -oldLen)
		c.items.erase(existing)
		c.counters.ItemFree()
	} else {
		existing.value = nil
		existing.deletion = true
		c.accountDirtyDelta(0, -oldLen)
	}
	c.counters.ItemDelete()
	return nil
}

// Dirty marks an existing item dirty without changing its value (§4.2).
func (c *Cache) Dirty(lock Lock, k key.Key) error {
	if err := checkLock(lock, Write, k); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing == nil {
		return newErr(NotFound, "key %v not found", k)
	}
	if !existing.isSelfDirty() {
		c.lru.remove(existing)
		markDirty(existing)
		c.accountDirtyDelta(1, len(existing.value))
	}
	c.counters.ItemDirty()
	return nil
}

// SavedItem is the payload DeleteSave hands to the caller and Restore
// consumes, carrying the deleted item's dirty status across the caller's
// own list (§4.2).
type SavedItem struct {
	Key        key.Key
	Value      key.Value
	Persistent bool
	WasDirty   bool
}

// DeleteSave unlinks the item at k, preserving its dirty status in the
// returned SavedItem, and installs a fresh persistent tombstone in its
// place (§4.2).
func (c *Cache) DeleteSave(lock Lock, k key.Key) (*SavedItem, error) {
	if err := checkLock(lock, Write, k); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.items.find(k)
	if existing == nil || existing.deletion {
		return nil, newErr(NotFound, "key %v not found", k)
	}
	wasDirty := existing.isSelfDirty()
	oldLen := len(existing.value)
	saved := &SavedItem{
		Key:        existing.key,
		Value:      existing.value.Clone(),
		Persistent: existing.persistent,
		WasDirty:   wasDirty,
	}
	if wasDirty {
		clearDirty(existing)
		c.accountDirtyDelta(-1, -oldLen)
	} else {
		c.lru.remove(existing)
	}
	c.items.erase(existing)

	tomb := newItemCell(k, nil, true, true)
	c.items.insert(tomb)
	c.counters.ItemAlloc()
	markDirty(tomb)
	c.accountDirtyDelta(1, 0)

	c.counters.ItemDeleteSave()
	return saved, nil
}

// Restore atomically reinserts items previously removed by DeleteSave into
// a still-covered range, replacing any tombstone DeleteSave left behind
// (§4.2).
func (c *Cache) Restore(lock Lock, items []SavedItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range items {
		if err := checkLock(lock, Write, it.Key); err != nil {
			return err
		}
		if c.ranges.coverage(it.Key) == nil {
			return newErr(InvalidArg, "restore target %v not covered", it.Key)
		}
	}
	for _, it := range items {
		if existing := c.items.find(it.Key); existing != nil {
			c.eraseItemLocked(existing)
		}
		nc := newItemCell(it.Key, it.Value.Clone(), false, it.Persistent)
		c.items.insert(nc)
		c.counters.ItemAlloc()
		if it.WasDirty {
			markDirty(nc)
			c.accountDirtyDelta(1, len(it.Value))
		} else {
			c.lru.touch(nc)
		}
	}
	c.counters.ItemRestore()
	return nil
}

// InsertBatch is the manifest-read completion callback: it installs the
// read range into coverage and inserts each batched item with
// cache-populate semantics, never replacing an existing key (§4.5). It
// returns the items it did not consume, for the caller to discard.
func (c *Cache) InsertBatch(lock Lock, start, end key.Key, batch Batch) (Batch, error) {
	if err := checkLockRange(lock, Write, start, end); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranges.insertRange(start, end)
	var rejected Batch
	for _, bi := range batch {
		if c.items.find(bi.Key) != nil {
			c.counters.BatchDuplicate()
			rejected = append(rejected, bi)
			continue
		}
		nc := newItemCell(bi.Key, bi.Value.Clone(), bi.Deletion, true)
		c.items.insert(nc)
		c.counters.ItemAlloc()
		c.lru.touch(nc)
		c.counters.BatchInserted()
	}
	return rejected, nil
}

// HasDirty reports whether any item in the cache is SELF-dirty.
func (c *Cache) HasDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nrDirtyItems > 0
}

// RangeCached reports whether [start,end] is covered (dirtyOnly=false) or
// whether it contains any dirty item (dirtyOnly=true).
func (c *Cache) RangeCached(start, end key.Key, dirtyOnly bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dirtyOnly {
		return c.anyDirtyInRange(start, end)
	}
	return c.fullyCovered(start, end)
}

// Writeback drives a transaction sync if [start,end] currently holds any
// dirty item, then returns. See DESIGN.md for the writeback/commit race
// handshake this implements (§9 Open Questions).
func (c *Cache) Writeback(ctx context.Context, lock Lock, start, end key.Key) error {
	if err := checkLockRange(lock, Write, start, end); err != nil {
		return err
	}
	c.mu.Lock()
	dirty := c.anyDirtyInRange(start, end)
	c.mu.Unlock()
	if !dirty {
		return nil
	}
	if c.syncer == nil {
		return newErr(IOError, "no transaction syncer configured")
	}
	c.counters.Writeback()
	if err := c.syncer.Sync(ctx, true); err != nil {
		return newErr(IOError, "transaction sync: %v", err)
	}
	return nil
}

// Invalidate erases every item in [start,end] and removes the range from
// coverage. None of the items may be dirty (§4.6).
func (c *Cache) Invalidate(lock Lock, start, end key.Key) error {
	if err := checkLockRange(lock, Write, start, end); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.anyDirtyInRange(start, end) {
		return newErr(InvalidArg, "cannot invalidate [%v,%v]: contains dirty items", start, end)
	}
	var victims []*cell
	c.itemsInRange(start, end, func(n *cell) { victims = append(victims, n) })
	for _, v := range victims {
		c.eraseItemLocked(v)
	}
	c.ranges.removeRange(start, end, nil)
	c.counters.Invalidate()
	return nil
}

// DirtyFitsSingle reports whether the current dirty set, plus nrExtra
// items and bytesExtra bytes, still fits a single segment (§4.6 step 3).
func (c *Cache) DirtyFitsSingle(seg Segment, nrExtra, bytesExtra int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seg.FitsSingle(c.nrDirtyItems+nrExtra, c.dirtyValBytes+bytesExtra)
}

// DirtySeg serializes every dirty item into seg in ascending key order via
// first_dirty/next_dirty, clearing SELF-dirty and erasing flushed
// tombstones as it goes (§4.6).
func (c *Cache) DirtySeg(seg Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item := c.items.firstDirty()
	for item != nil {
		next := c.items.nextDirty(item)

		flags := SegFlag(0)
		if item.deletion {
			flags |= SegFlagDeletion
		}
		if !seg.Append(item.key, item.value, flags) {
			return newErr(IOError, "segment full while appending %v", item.key)
		}

		oldLen := len(item.value)
		clearDirty(item)
		c.accountDirtyDelta(-1, -oldLen)
		item.persistent = true
		c.counters.TransCommitItemFlush()

		if item.deletion {
			c.items.erase(item)
			c.counters.ItemFree()
		} else {
			c.lru.touch(item)
		}

		item = next
	}
	return nil
}

// CopyKeys is the supplemented copy_keys: fills out with the keys of
// every item in [start,end], up to len(out). Returns the count written.
func (c *Cache) CopyKeys(lock Lock, start, end key.Key, out []key.Key) (int, error) {
	if err := checkLockRange(lock, Read, start, end); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	c.itemsInRange(start, end, func(cl *cell) {
		if n < len(out) {
			out[n] = cl.key
			n++
		}
	})
	return n, nil
}

// KeysSince is the supplemented copy_range_keys / keys_since: fills out
// with range endpoints from the first range intersecting or following k,
// up to len(out) (§4.4).
func (c *Cache) KeysSince(lock Lock, k key.Key, out []key.Key) (int, error) {
	if err := checkLock(lock, Read, k); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ranges.keysSince(k, out), nil
}

// NrDirtyItems and DirtyValBytes expose the dirty-accounting counters for
// tests and telemetry (P7).
func (c *Cache) NrDirtyItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nrDirtyItems
}

func (c *Cache) DirtyValBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyValBytes
}
