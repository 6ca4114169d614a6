package itemcache

import (
	"context"
	"errors"
	"testing"

	"github.com/driftfs/itemcache/key"
)

func newTestCache(m Manifest) *Cache {
	return Setup(Options{Manifest: m})
}

func mustErrKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("got nil error, want Kind %v", want)
	}
	var ce *CacheError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a *CacheError", err)
	}
	if ce.Kind != want {
		t.Fatalf("got Kind %v, want %v", ce.Kind, want)
	}
}

// TestLookupCoverageMissTriggersReadThrough is scenario 1: a lookup against
// an uncovered key calls the manifest exactly once, and succeeds once the
// manifest's callback populates the range and item via InsertBatch.
func TestLookupCoverageMissTriggersReadThrough(t *testing.T) {
	m := &fakeManifest{}
	c := newTestCache(m)
	m.onRead = func(ctx context.Context, at, start, end key.Key) error {
		_, err := c.InsertBatch(wlock(0, 100), start, end, Batch{
			{Key: k(42), Value: key.Value("hello")},
		})
		return err
	}

	item, err := c.Lookup(context.Background(), rlock(0, 100), k(42))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(item.Value) != "hello" {
		t.Fatalf("Value = %q, want hello", item.Value)
	}
	if m.calls != 1 {
		t.Fatalf("manifest called %d times, want 1", m.calls)
	}

	// second lookup is now a pure cache hit, no further manifest calls.
	if _, err := c.Lookup(context.Background(), rlock(0, 100), k(42)); err != nil {
		t.Fatalf("second Lookup: %v", err)
	}
	if m.calls != 1 {
		t.Fatalf("manifest called %d times after cache hit, want 1", m.calls)
	}
}

// TestLookupCoveredAbsentIsNotFound is scenario 2: a range is known covered
// but has no item at k, and must return NOT_FOUND without consulting the
// manifest.
func TestLookupCoveredAbsentIsNotFound(t *testing.T) {
	m := &fakeManifest{onRead: func(context.Context, key.Key, key.Key, key.Key) error {
		t.Fatalf("manifest should not be consulted for a covered-but-absent key")
		return nil
	}}
	c := newTestCache(m)
	c.ranges.insertRange(k(0), k(100))

	_, err := c.Lookup(context.Background(), rlock(0, 100), k(50))
	mustErrKind(t, err, NotFound)
}

func TestCreateThenLookup(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))

	if err := c.Create(context.Background(), wlock(0, 100), k(10), key.Value("v1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	item, err := c.Lookup(context.Background(), rlock(0, 100), k(10))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(item.Value) != "v1" || !item.Dirty {
		t.Fatalf("item = %+v, want dirty v1", item)
	}
	if c.NrDirtyItems() != 1 || c.DirtyValBytes() != 2 {
		t.Fatalf("dirty accounting = (%d,%d), want (1,2)", c.NrDirtyItems(), c.DirtyValBytes())
	}

	if err := c.Create(context.Background(), wlock(0, 100), k(10), key.Value("v2")); err == nil {
		t.Fatalf("second Create should fail with AlreadyExists")
	} else {
		mustErrKind(t, err, AlreadyExists)
	}
}

// TestDirtyAccountingCleanToDirtyUsesFullLength verifies the corrected
// delta rule: when an already-clean item becomes dirty via Update, the
// delta is the item's full new length, not new-old.
func TestDirtyAccountingCleanToDirtyUsesFullLength(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)

	if err := c.Create(context.Background(), lock, k(1), key.Value("abcde")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	seg := &fakeSegment{}
	if err := c.DirtySeg(seg); err != nil {
		t.Fatalf("DirtySeg: %v", err)
	}
	if c.NrDirtyItems() != 0 || c.DirtyValBytes() != 0 {
		t.Fatalf("after DirtySeg dirty accounting = (%d,%d), want (0,0)", c.NrDirtyItems(), c.DirtyValBytes())
	}

	// item is now clean (5 bytes, not counted). Update to a 2-byte value:
	// the delta must be +2 (full new length), not 2-5 = -3.
	if err := c.Update(lock, k(1), key.Value("xy")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.NrDirtyItems() != 1 || c.DirtyValBytes() != 2 {
		t.Fatalf("after clean->dirty update, dirty accounting = (%d,%d), want (1,2)", c.NrDirtyItems(), c.DirtyValBytes())
	}

	// now already dirty; a further update by delta applies newLen-oldLen.
	if err := c.Update(lock, k(1), key.Value("abcdefgh")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.NrDirtyItems() != 1 || c.DirtyValBytes() != 8 {
		t.Fatalf("after dirty->dirty update, dirty accounting = (%d,%d), want (1,8)", c.NrDirtyItems(), c.DirtyValBytes())
	}
}

func TestDeleteNonPersistentErasesOutright(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)
	if err := c.Create(context.Background(), lock, k(5), key.Value("v")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Delete(lock, k(5)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Lookup(context.Background(), rlock(0, 100), k(5)); err == nil {
		t.Fatalf("Lookup should fail after delete")
	}
	if c.NrDirtyItems() != 0 {
		t.Fatalf("NrDirtyItems = %d, want 0 (item was erased, not tombstoned)", c.NrDirtyItems())
	}
}

func TestDeletePersistentWritesTombstone(t *testing.T) {
	c := newTestCache(nil)
	lock := wlock(0, 100)
	if err := c.CreateForce(wolock(0, 100), k(5), key.Value("v")); err != nil {
		t.Fatalf("CreateForce: %v", err)
	}
	if err := c.Delete(lock, k(5)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Lookup(context.Background(), rlock(0, 100), k(5)); err == nil {
		t.Fatalf("Lookup should NotFound on a tombstone")
	} else {
		mustErrKind(t, err, NotFound)
	}
	if c.NrDirtyItems() != 1 {
		t.Fatalf("NrDirtyItems = %d, want 1 (tombstone is dirty)", c.NrDirtyItems())
	}
}

func TestNextSkipsTombstonesAndRespectsBound(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	wolk := wolock(0, 100)
	lock := wlock(0, 100)
	ctx := context.Background()
	for _, m := range []uint64{10, 20, 30} {
		if err := c.CreateForce(wolk, k(m), key.Value("v")); err != nil {
			t.Fatalf("CreateForce(%d): %v", m, err)
		}
	}
	// 20 is persistent, so Delete leaves a tombstone in the tree rather
	// than erasing the item outright — this is what Next's deletion-skip
	// branch actually has to step over.
	if err := c.Delete(lock, k(20)); err != nil {
		t.Fatalf("Delete(20): %v", err)
	}
	if c.items.find(k(20)) == nil {
		t.Fatalf("tombstone at 20 should remain in the tree")
	}

	item, err := c.Next(ctx, rlock(0, 100), k(10), k(100))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if item.Key.Major != 30 {
		t.Fatalf("Next after 10 (skipping tombstone 20) = %d, want 30", item.Key.Major)
	}

	_, err = c.Next(ctx, rlock(0, 100), k(10), k(25))
	mustErrKind(t, err, NotFound)
}

func TestPrevSymmetric(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)
	ctx := context.Background()
	for _, m := range []uint64{10, 20, 30} {
		if err := c.Create(ctx, lock, k(m), key.Value("v")); err != nil {
			t.Fatalf("Create(%d): %v", m, err)
		}
	}
	item, err := c.Prev(ctx, rlock(0, 100), k(30), k(0))
	if err != nil {
		t.Fatalf("Prev: %v", err)
	}
	if item.Key.Major != 20 {
		t.Fatalf("Prev before 30 = %d, want 20", item.Key.Major)
	}
}

func TestLockCoverageRejectsOutOfRangeKey(t *testing.T) {
	c := newTestCache(nil)
	_, err := c.Lookup(context.Background(), rlock(0, 10), k(50))
	mustErrKind(t, err, InvalidArg)
}

func TestLockModeRejectsReadOnlyForWrite(t *testing.T) {
	c := newTestCache(nil)
	err := c.Create(context.Background(), rlock(0, 100), k(5), key.Value("v"))
	mustErrKind(t, err, InvalidArg)
}

// TestDirtySegFlushesInKeyOrderAndClearsDirty is P6/P7-flavored: every
// dirty item is flushed in ascending key order and cleared afterward.
func TestDirtySegFlushesInKeyOrderAndClearsDirty(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)
	ctx := context.Background()
	for _, m := range []uint64{50, 10, 30} {
		if err := c.Create(ctx, lock, k(m), key.Value("v")); err != nil {
			t.Fatalf("Create(%d): %v", m, err)
		}
	}
	seg := &fakeSegment{}
	if err := c.DirtySeg(seg); err != nil {
		t.Fatalf("DirtySeg: %v", err)
	}
	if len(seg.appended) != 3 {
		t.Fatalf("appended %d items, want 3", len(seg.appended))
	}
	want := []uint64{10, 30, 50}
	for i, w := range want {
		if seg.appended[i].Key.Major != w {
			t.Fatalf("appended[%d].Key.Major = %d, want %d", i, seg.appended[i].Key.Major, w)
		}
	}
	if c.HasDirty() {
		t.Fatalf("HasDirty after DirtySeg, want false")
	}
}

func TestDirtySegStopsOnFullSegment(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)
	ctx := context.Background()
	if err := c.Create(ctx, lock, k(1), key.Value("v")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	seg := &fakeSegment{full: true}
	err := c.DirtySeg(seg)
	mustErrKind(t, err, IOError)
}

func TestInvalidateRejectsDirtyRange(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)
	if err := c.Create(context.Background(), lock, k(5), key.Value("v")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := c.Invalidate(lock, k(0), k(100))
	mustErrKind(t, err, InvalidArg)
}

func TestInvalidateCleanRangeSucceeds(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)
	c.InsertBatch(lock, k(0), k(100), Batch{{Key: k(5), Value: key.Value("v")}})
	if err := c.Invalidate(lock, k(0), k(100)); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if c.RangeCached(k(0), k(100), false) {
		t.Fatalf("range should no longer be covered")
	}
}

func TestWritebackCallsSyncerOnlyWhenDirty(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)

	called := false
	c.syncer = syncerFunc(func(ctx context.Context, wait bool) error {
		called = true
		return nil
	})

	if err := c.Writeback(context.Background(), lock, k(0), k(100)); err != nil {
		t.Fatalf("Writeback on clean range: %v", err)
	}
	if called {
		t.Fatalf("syncer called on an all-clean range")
	}

	if err := c.Create(context.Background(), lock, k(5), key.Value("v")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Writeback(context.Background(), lock, k(0), k(100)); err != nil {
		t.Fatalf("Writeback on dirty range: %v", err)
	}
	if !called {
		t.Fatalf("syncer not called on a dirty range")
	}
}

type syncerFunc func(ctx context.Context, wait bool) error

func (f syncerFunc) Sync(ctx context.Context, wait bool) error { return f(ctx, wait) }

func TestDeleteSaveAndRestoreRoundTrip(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)
	if err := c.CreateForce(wolock(0, 100), k(5), key.Value("orig")); err != nil {
		t.Fatalf("CreateForce: %v", err)
	}
	seg := &fakeSegment{}
	if err := c.DirtySeg(seg); err != nil {
		t.Fatalf("DirtySeg: %v", err)
	}

	saved, err := c.DeleteSave(lock, k(5))
	if err != nil {
		t.Fatalf("DeleteSave: %v", err)
	}
	if string(saved.Value) != "orig" || saved.WasDirty {
		t.Fatalf("saved = %+v, want clean orig", saved)
	}
	if _, err := c.Lookup(context.Background(), rlock(0, 100), k(5)); err == nil {
		t.Fatalf("Lookup should fail, DeleteSave left a tombstone")
	}

	if err := c.Restore(lock, []SavedItem{*saved}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	item, err := c.Lookup(context.Background(), rlock(0, 100), k(5))
	if err != nil {
		t.Fatalf("Lookup after Restore: %v", err)
	}
	if string(item.Value) != "orig" {
		t.Fatalf("restored value = %q, want orig", item.Value)
	}
}

func TestCopyKeysAndKeysSince(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(50))
	c.ranges.insertRange(k(60), k(100))
	lock := wlock(0, 100)
	ctx := context.Background()
	for _, m := range []uint64{5, 10, 70} {
		if err := c.Create(ctx, lock, k(m), key.Value("v")); err != nil {
			t.Fatalf("Create(%d): %v", m, err)
		}
	}

	out := make([]key.Key, 3)
	n, err := c.CopyKeys(rlock(0, 100), k(0), k(100), out)
	if err != nil {
		t.Fatalf("CopyKeys: %v", err)
	}
	if n != 3 {
		t.Fatalf("CopyKeys n = %d, want 3", n)
	}

	rout := make([]key.Key, 4)
	rn, err := c.KeysSince(rlock(0, 100), k(0), rout)
	if err != nil {
		t.Fatalf("KeysSince: %v", err)
	}
	want := []uint64{0, 50, 60, 100}
	if rn != len(want) {
		t.Fatalf("KeysSince n = %d, want %d", rn, len(want))
	}
	for i, w := range want {
		if rout[i].Major != w {
			t.Fatalf("rout[%d] = %d, want %d", i, rout[i].Major, w)
		}
	}
}

func TestUpdateDirtyRequiresAlreadyDirty(t *testing.T) {
	c := newTestCache(nil)
	c.ranges.insertRange(k(0), k(100))
	lock := wlock(0, 100)
	if err := c.Create(context.Background(), lock, k(1), key.Value("v")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	seg := &fakeSegment{}
	if err := c.DirtySeg(seg); err != nil {
		t.Fatalf("DirtySeg: %v", err)
	}
	err := c.UpdateDirty(lock, k(1), key.Value("xx"))
	mustErrKind(t, err, InvalidArg)
}

func TestBatchInsertRejectsDuplicates(t *testing.T) {
	c := newTestCache(nil)
	lock := wlock(0, 100)
	if err := c.CreateForce(wolock(0, 100), k(5), key.Value("v")); err != nil {
		t.Fatalf("CreateForce: %v", err)
	}
	rejected, err := c.InsertBatch(lock, k(0), k(100), Batch{
		{Key: k(5), Value: key.Value("dup")},
		{Key: k(6), Value: key.Value("new")},
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if len(rejected) != 1 || rejected[0].Key.Major != 5 {
		t.Fatalf("rejected = %v, want one entry for key 5", rejected)
	}
}
