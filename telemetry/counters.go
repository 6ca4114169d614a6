// Package telemetry implements itemcache's Counters and latency
// collaborators against the same metrics stack the teacher wires up
// (VictoriaMetrics/metrics for counters, rcrowley/go-metrics for
// timers, puzpuzpuz/xsync/v3 as the concurrent map backing per-key
// latency samples before they are folded into a timer).
package telemetry

import (
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/driftfs/itemcache/itemcache"
)

// Counters implements itemcache.Counters by incrementing a
// VictoriaMetrics counter per event, all registered against a private
// *metrics.Set so a process can run more than one Cache without their
// counters colliding.
type Counters struct {
	set *metrics.Set

	lookupHit  *metrics.Counter
	lookupMiss *metrics.Counter
	rangeHit   *metrics.Counter
	rangeMiss  *metrics.Counter

	itemCreate                 *metrics.Counter
	itemCreateForce            *metrics.Counter
	itemAlreadyExists          *metrics.Counter
	itemUpdate                 *metrics.Counter
	itemDelete                 *metrics.Counter
	itemDeleteForce            *metrics.Counter
	itemDeleteTombstoneWritten *metrics.Counter
	itemDirty                  *metrics.Counter
	itemDeleteSave             *metrics.Counter
	itemRestore                *metrics.Counter
	itemAlloc                  *metrics.Counter
	itemFree                   *metrics.Counter

	batchInserted  *metrics.Counter
	batchDuplicate *metrics.Counter

	shrinkAlone *metrics.Counter
	shrinkSplit *metrics.Counter
	shrinkLeft  *metrics.Counter
	shrinkRight *metrics.Counter
	shrinkFail  *metrics.Counter

	invalidate           *metrics.Counter
	writeback            *metrics.Counter
	transCommitItemFlush *metrics.Counter
}

// NewCounters registers a fresh set of itemcache counters against set.
// Passing a nil set registers against metrics.GetDefaultSet(), the set
// metrics.WritePrometheus(w, true) serves by default.
func NewCounters(set *metrics.Set) *Counters {
	if set == nil {
		set = metrics.GetDefaultSet()
	}
	c := &Counters{set: set}

	c.lookupHit = set.NewCounter("itemcache_lookup_total{result=\"hit\"}")
	c.lookupMiss = set.NewCounter("itemcache_lookup_total{result=\"miss\"}")
	c.rangeHit = set.NewCounter("itemcache_range_total{result=\"hit\"}")
	c.rangeMiss = set.NewCounter("itemcache_range_total{result=\"miss\"}")

	c.itemCreate = set.NewCounter("itemcache_item_create_total{forced=\"false\"}")
	c.itemCreateForce = set.NewCounter("itemcache_item_create_total{forced=\"true\"}")
	c.itemAlreadyExists = set.NewCounter("itemcache_item_already_exists_total")
	c.itemUpdate = set.NewCounter("itemcache_item_update_total")
	c.itemDelete = set.NewCounter("itemcache_item_delete_total{forced=\"false\"}")
	c.itemDeleteForce = set.NewCounter("itemcache_item_delete_total{forced=\"true\"}")
	c.itemDeleteTombstoneWritten = set.NewCounter("itemcache_item_delete_tombstone_total")
	c.itemDirty = set.NewCounter("itemcache_item_dirty_total")
	c.itemDeleteSave = set.NewCounter("itemcache_item_delete_save_total")
	c.itemRestore = set.NewCounter("itemcache_item_restore_total")
	c.itemAlloc = set.NewCounter("itemcache_item_alloc_total")
	c.itemFree = set.NewCounter("itemcache_item_free_total")

	c.batchInserted = set.NewCounter("itemcache_batch_inserted_total")
	c.batchDuplicate = set.NewCounter("itemcache_batch_duplicate_total")

	c.shrinkAlone = set.NewCounter("itemcache_shrink_total{outcome=\"alone\"}")
	c.shrinkSplit = set.NewCounter("itemcache_shrink_total{outcome=\"split\"}")
	c.shrinkLeft = set.NewCounter("itemcache_shrink_total{outcome=\"left\"}")
	c.shrinkRight = set.NewCounter("itemcache_shrink_total{outcome=\"right\"}")
	c.shrinkFail = set.NewCounter("itemcache_shrink_total{outcome=\"fail\"}")

	c.invalidate = set.NewCounter("itemcache_invalidate_total")
	c.writeback = set.NewCounter("itemcache_writeback_total")
	c.transCommitItemFlush = set.NewCounter("itemcache_trans_commit_item_flush_total")

	return c
}

func (c *Counters) LookupHit()  { c.lookupHit.Inc() }
func (c *Counters) LookupMiss() { c.lookupMiss.Inc() }
func (c *Counters) RangeHit()   { c.rangeHit.Inc() }
func (c *Counters) RangeMiss()  { c.rangeMiss.Inc() }

func (c *Counters) ItemCreate()                 { c.itemCreate.Inc() }
func (c *Counters) ItemCreateForce()            { c.itemCreateForce.Inc() }
func (c *Counters) ItemAlreadyExists()          { c.itemAlreadyExists.Inc() }
func (c *Counters) ItemUpdate()                 { c.itemUpdate.Inc() }
func (c *Counters) ItemDelete()                 { c.itemDelete.Inc() }
func (c *Counters) ItemDeleteForce()            { c.itemDeleteForce.Inc() }
func (c *Counters) ItemDeleteTombstoneWritten() { c.itemDeleteTombstoneWritten.Inc() }
func (c *Counters) ItemDirty()                  { c.itemDirty.Inc() }
func (c *Counters) ItemDeleteSave()             { c.itemDeleteSave.Inc() }
func (c *Counters) ItemRestore()                { c.itemRestore.Inc() }
func (c *Counters) ItemAlloc()                  { c.itemAlloc.Inc() }
func (c *Counters) ItemFree()                   { c.itemFree.Inc() }

func (c *Counters) BatchInserted()  { c.batchInserted.Inc() }
func (c *Counters) BatchDuplicate() { c.batchDuplicate.Inc() }

func (c *Counters) ShrinkAlone() { c.shrinkAlone.Inc() }
func (c *Counters) ShrinkSplit() { c.shrinkSplit.Inc() }
func (c *Counters) ShrinkLeft()  { c.shrinkLeft.Inc() }
func (c *Counters) ShrinkRight() { c.shrinkRight.Inc() }
func (c *Counters) ShrinkFail()  { c.shrinkFail.Inc() }

func (c *Counters) Invalidate()           { c.invalidate.Inc() }
func (c *Counters) Writeback()            { c.writeback.Inc() }
func (c *Counters) TransCommitItemFlush() { c.transCommitItemFlush.Inc() }

// WritePrometheus writes every counter this Counters registered, in
// Prometheus text exposition format, to w — the body of cmd/itemcache's
// /metrics endpoint.
func (c *Counters) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

var _ itemcache.Counters = (*Counters)(nil)
