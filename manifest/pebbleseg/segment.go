package pebbleseg

import (
	"github.com/cockroachdb/pebble"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
)

// DefaultMaxSegmentItems and DefaultMaxSegmentBytes bound a Segment's
// size by default, scaled from key.MaxValSize (64KiB) the way the
// original's SCOUTFS_MAX_VAL_SIZE family of constants scales a single
// item's bound into a whole segment's bound.
const (
	DefaultMaxSegmentItems = 1 << 16
	DefaultMaxSegmentBytes = 4 << 20
)

// Segment implements itemcache.Segment over a pebble write batch:
// Append buffers into the batch, Commit flushes it to the underlying db.
// Not safe for concurrent use — a Segment belongs to exactly one
// in-progress transaction.
type Segment struct {
	db       *pebble.DB
	batch    *pebble.Batch
	nrItems  int
	nrBytes  int
	maxItems int
	maxBytes int
}

// Append implements itemcache.Segment. flags carries the deletion bit
// (§4.6 step 2).
func (s *Segment) Append(k key.Key, v key.Value, flags itemcache.SegFlag) bool {
	if !s.FitsSingle(1, v.Len()) {
		return false
	}

	val := make([]byte, 1+v.Len())
	if flags&itemcache.SegFlagDeletion != 0 {
		val[0] = wireDeletion
	}
	copy(val[1:], v)

	if err := s.batch.Set(k.Bytes(), val, nil); err != nil {
		return false
	}
	s.nrItems++
	s.nrBytes += v.Len()
	return true
}

// FitsSingle implements itemcache.Segment.
func (s *Segment) FitsSingle(nrItems, nBytes int) bool {
	return s.nrItems+nrItems <= s.maxItems && s.nrBytes+nBytes <= s.maxBytes
}

// Commit flushes the batch to the underlying pebble instance durably.
func (s *Segment) Commit() error {
	return s.batch.Commit(pebble.Sync)
}

// Close discards the batch without committing it.
func (s *Segment) Close() error {
	return s.batch.Close()
}

var _ itemcache.Segment = (*Segment)(nil)
