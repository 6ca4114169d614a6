// Package pebbleseg is a reference manifest/segment backend built on
// cockroachdb/pebble, satisfying itemcache.Manifest and itemcache.Segment.
// It is a demo backend exercising those two interfaces, not a
// crash-recovery- or compaction-correct storage layer in its own right —
// pebble itself owns on-disk correctness, and SPEC_FULL.md's Non-goals
// exclude the item cache from needing to reason about it.
//
// Structured after the teacher's lib/store/lstore package (one embedded
// engine wrapped for this system's needs); pebble's own usage here
// (pebble.Open, db.NewIter, db.NewBatch, pebble.Batch) is grounded on
// its public API rather than on any teacher call site, since no file in
// the example corpus imports cockroachdb/pebble directly.
package pebbleseg

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
	"github.com/driftfs/itemcache/lockmgr"
)

// wireDeletion is the one flag byte prefixed onto every stored value,
// mirroring itemcache.SegFlag's deletion bit so a manifest read can
// reconstruct BatchItem.Deletion without a second lookup.
const wireDeletion = 1 << 0

// Store wraps a pebble.DB as both the manifest (read side) and the
// factory for Segments (write side) of a single shard's item storage.
type Store struct {
	db    *pebble.DB
	cache *itemcache.Cache
}

// Open opens (creating if necessary) a pebble database at dir and binds
// it to cache as that cache's read-through source. cache.InsertBatch is
// called with a synthetic Write-mode lockmgr.Grant over the
// requested range, since the manifest is a trusted internal collaborator
// the cache's own callers never see — it is not subject to the caller's
// own lock coverage.
func Open(dir string, cache *itemcache.Cache) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebbleseg: open %s: %w", dir, err)
	}
	return &Store{db: db, cache: cache}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ReadItems implements itemcache.Manifest: it scans every key in
// [start,end] currently present in the pebble instance and inserts them
// as a batch, satisfying the coverage the caller's original miss needed.
// at is unused by this reference backend — a manifest backed by multiple
// generations of immutable segments would use it to pick which
// generation's view to read; a single mutable pebble instance has only
// one.
func (s *Store) ReadItems(ctx context.Context, at, start, end key.Key) error {
	lower := start.Bytes()
	upper := key.Inc(end).Bytes()

	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	defer iter.Close()

	var batch itemcache.Batch
	for valid := iter.First(); valid; valid = iter.Next() {
		k, err := decodeKey(iter.Key())
		if err != nil {
			return err
		}
		val := iter.Value()
		if len(val) == 0 {
			return fmt.Errorf("pebbleseg: corrupt record at %v: empty value (missing flags byte)", k)
		}
		flags := val[0]
		v := append(key.Value(nil), val[1:]...)
		if len(v) == 0 {
			v = nil
		}
		batch = append(batch, itemcache.BatchItem{
			Key:      k,
			Value:    v,
			Deletion: flags&wireDeletion != 0,
		})
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("pebbleseg: iterate: %w", err)
	}

	lock := lockmgr.NewGrant(itemcache.Write, start, end)
	if _, err := s.cache.InsertBatch(lock, start, end, batch); err != nil {
		return fmt.Errorf("pebbleseg: insert batch: %w", err)
	}
	return nil
}

// NewSegment returns a fresh Segment bounded by maxItems/maxBytes,
// backed by a pebble batch that is committed to the underlying db on
// Commit.
func (s *Store) NewSegment(maxItems, maxBytes int) *Segment {
	return &Segment{
		db:       s.db,
		batch:    s.db.NewBatch(),
		maxItems: maxItems,
		maxBytes: maxBytes,
	}
}

func decodeKey(b []byte) (key.Key, error) {
	if len(b) != key.Size {
		return key.Key{}, fmt.Errorf("pebbleseg: corrupt key of length %d, want %d", len(b), key.Size)
	}
	// decode manually since key.Key has no Decode method — Encode's
	// inverse, field for field.
	k := key.Key{
		Zone:   b[0],
		Major:  binary.BigEndian.Uint64(b[1:9]),
		Minor:  binary.BigEndian.Uint64(b[9:17]),
		Offset: binary.BigEndian.Uint32(b[17:21]),
	}
	return k, nil
}
