// Package trans provides the default transaction tracker/syncer pair
// that drives a commit: draining dirty items out of an itemcache.Cache
// into manifest segments via Cache.DirtySeg, opening a fresh segment
// whenever the current one reports full, grounded on the retry-until-done
// shape of the teacher's lib/store/dstore.storeImpl.write (propose, check
// for a recoverable failure, retry) applied here to "segment full" rather
// than "system busy".
package trans

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/driftfs/itemcache/itemcache"
)

// CommittableSegment is an itemcache.Segment that can also be durably
// flushed and abandoned — manifest/pebbleseg.Segment is the concrete
// example.
type CommittableSegment interface {
	itemcache.Segment
	Commit() error
	Close() error
}

// SegmentFactory returns a fresh, empty CommittableSegment to append the
// next batch of dirty items into.
type SegmentFactory func() CommittableSegment

// Committer implements both itemcache.Tracker and itemcache.Syncer,
// matching SPEC_FULL.md §6.2's single "transaction tracker" collaborator
// even though itemcache/collab.go splits the methods across two
// interfaces to avoid forcing every caller that only wants one half to
// depend on both.
type Committer struct {
	cache      *itemcache.Cache
	newSegment SegmentFactory

	// commitMu serializes commit runs and is held for the whole duration
	// of commit, giving Sync its idempotency: a second concurrent caller
	// blocks until the first's commit finishes, then finds HasDirty
	// false. It is held across DirtySeg, which calls TrackItem (below) for
	// every item it drains when the Committer is wired as its own cache's
	// Tracker, so TrackItem never takes it.
	commitMu sync.Mutex

	// counterMu guards only dirtyItems/dirtyBytes, touched by TrackItem
	// (called from inside a commit's DirtySeg) and DirtyCounts (called
	// from anywhere).
	counterMu  sync.Mutex
	dirtyItems int
	dirtyBytes int

	maxRounds int
}

// NewCommitter binds a Committer to cache and a segment factory.
// maxRounds bounds how many fresh segments a single Sync call will open
// before giving up (a defensive bound against a segment factory that
// always reports full); 0 means no bound.
func NewCommitter(cache *itemcache.Cache, newSegment SegmentFactory, maxRounds int) *Committer {
	return &Committer{cache: cache, newSegment: newSegment, maxRounds: maxRounds}
}

// TrackItem implements itemcache.Tracker. Called synchronously from
// inside Cache.DirtySeg, including while this same Committer's own commit
// is draining it — so it must only ever take counterMu, never commitMu.
func (c *Committer) TrackItem(deltaItems, deltaBytes int) {
	c.counterMu.Lock()
	c.dirtyItems += deltaItems
	c.dirtyBytes += deltaBytes
	c.counterMu.Unlock()
}

// DirtyCounts returns the running totals TrackItem has accumulated since
// the Committer was created or since commit last wrote a segment (which
// resets them to zero), for diagnostics (the cmd/itemcache stat
// subcommand reads this).
func (c *Committer) DirtyCounts() (items, bytes int) {
	c.counterMu.Lock()
	defer c.counterMu.Unlock()
	return c.dirtyItems, c.dirtyBytes
}

func (c *Committer) resetCounters() {
	c.counterMu.Lock()
	c.dirtyItems, c.dirtyBytes = 0, 0
	c.counterMu.Unlock()
}

// Sync implements itemcache.Syncer. Acquiring commitMu for the whole
// commit is what makes a redundant concurrent Sync call idempotent: a
// second caller blocks until the first's commit finishes, then finds no
// dirty items left and returns immediately rather than committing twice.
// When wait is false the commit still runs, but in a detached goroutine —
// the call returns before it is known to be durable, matching the
// original's trans_sync(wait=false) semantics.
func (c *Committer) Sync(ctx context.Context, wait bool) error {
	if !wait {
		go func() {
			_ = c.commit(context.Background())
		}()
		return nil
	}
	return c.commit(ctx)
}

func (c *Committer) commit(ctx context.Context) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	rounds := 0
	for c.cache.HasDirty() {
		if c.maxRounds > 0 && rounds >= c.maxRounds {
			return fmt.Errorf("trans: commit did not converge after %d segments", c.maxRounds)
		}
		rounds++

		if err := ctx.Err(); err != nil {
			return err
		}

		seg := c.newSegment()
		segErr := c.cache.DirtySeg(seg)
		if segErr != nil && !isSegmentFull(segErr) {
			_ = seg.Close()
			return segErr
		}
		if err := seg.Commit(); err != nil {
			return fmt.Errorf("trans: commit segment: %w", err)
		}
		c.resetCounters()
		if segErr == nil {
			// DirtySeg drained every dirty item without the segment
			// reporting full.
			return nil
		}
	}
	return nil
}

// isSegmentFull reports whether err is the "segment full while appending"
// *itemcache.CacheError DirtySeg returns when Segment.Append refuses an
// item, the one error this loop treats as "open another segment and keep
// going" rather than a hard failure.
func isSegmentFull(err error) bool {
	var cerr *itemcache.CacheError
	return errors.As(err, &cerr) && cerr.Kind == itemcache.IOError
}

var _ itemcache.Tracker = (*Committer)(nil)
var _ itemcache.Syncer = (*Committer)(nil)
