package itemcache

import (
	"context"

	"github.com/driftfs/itemcache/key"
)

type testLock struct {
	mode       Mode
	start, end key.Key
}

func (l testLock) Mode() Mode     { return l.mode }
func (l testLock) Start() key.Key { return l.start }
func (l testLock) End() key.Key   { return l.end }

func wlock(start, end uint64) Lock  { return testLock{Write, k(start), k(end)} }
func rlock(start, end uint64) Lock  { return testLock{Read, k(start), k(end)} }
func wolock(start, end uint64) Lock { return testLock{WriteOnly, k(start), k(end)} }

func k(major uint64) key.Key { return key.Key{Major: major} }

type fakeManifest struct {
	onRead func(ctx context.Context, at, start, end key.Key) error
	calls  int
}

func (m *fakeManifest) ReadItems(ctx context.Context, at, start, end key.Key) error {
	m.calls++
	return m.onRead(ctx, at, start, end)
}

type fakeSegment struct {
	appended []BatchItem
	full     bool
}

func (s *fakeSegment) Append(k key.Key, v key.Value, flags SegFlag) bool {
	if s.full {
		return false
	}
	s.appended = append(s.appended, BatchItem{Key: k, Value: v, Deletion: flags&SegFlagDeletion != 0})
	return true
}

func (s *fakeSegment) FitsSingle(nrItems, nBytes int) bool {
	return !s.full
}

type fakeTracker struct {
	items, bytes int
}

func (t *fakeTracker) TrackItem(deltaItems, deltaBytes int) {
	t.items += deltaItems
	t.bytes += deltaBytes
}
