package itemcache

import (
	"context"

	"github.com/driftfs/itemcache/key"
)

// SegFlag carries per-item metadata across Segment.Append, currently just
// the deletion bit (§4.6 step 2: "flags carries the deletion bit").
type SegFlag uint8

const SegFlagDeletion SegFlag = 1 << 0

// Manifest is the downstream collaborator that resolves a coverage miss by
// reading items from on-disk segments. A successful ReadItems call must
// have invoked Cache.InsertBatch with a range covering at least the
// smallest subrange around the query key it could determine (§6).
// Concrete implementations live in package manifest (manifest/pebbleseg);
// this interface is declared on the consumer side, in itemcache, to keep
// manifest free to depend on itemcache without an import cycle.
type Manifest interface {
	ReadItems(ctx context.Context, at, start, end key.Key) error
}

// Segment is the downstream collaborator a commit serializes dirty items
// into.
type Segment interface {
	Append(k key.Key, v key.Value, flags SegFlag) bool
	FitsSingle(nrItems, nBytes int) bool
}

// Tracker is the external transaction tracker notified of dirty-accounting
// deltas as items change; the cache never decides when to commit, it only
// reports deltas and responds to DirtySeg calls.
type Tracker interface {
	TrackItem(deltaItems, deltaBytes int)
}

// Syncer drives a transaction commit to completion; Writeback calls it
// when there are dirty items in the requested range (§5's suspension
// point (b)). wait mirrors the original's trans_sync(wait) -> int: if
// wait is false the call may return before the commit is durable.
type Syncer interface {
	Sync(ctx context.Context, wait bool) error
}

// Counters is the closed enumeration of telemetry events §6 and SPEC_FULL
// §9.5 require, implemented by package telemetry. Options.Counters may be
// left nil — Setup substitutes noopCounters — since not every caller
// (e.g. unit tests) wants a metrics dependency.
type Counters interface {
	LookupHit()
	LookupMiss()
	RangeHit()
	RangeMiss()
	ItemCreate()
	ItemCreateForce()
	ItemAlreadyExists()
	ItemUpdate()
	ItemDelete()
	ItemDeleteForce()
	ItemDeleteTombstoneWritten()
	ItemDirty()
	ItemDeleteSave()
	ItemRestore()
	ItemAlloc()
	ItemFree()
	BatchInserted()
	BatchDuplicate()
	ShrinkAlone()
	ShrinkSplit()
	ShrinkLeft()
	ShrinkRight()
	ShrinkFail()
	Invalidate()
	Writeback()
	TransCommitItemFlush()
}

// noopCounters implements Counters as a no-op, used when a Cache is built
// without telemetry wired in.
type noopCounters struct{}

func (noopCounters) LookupHit()                  {}
func (noopCounters) LookupMiss()                 {}
func (noopCounters) RangeHit()                   {}
func (noopCounters) RangeMiss()                  {}
func (noopCounters) ItemCreate()                 {}
func (noopCounters) ItemCreateForce()            {}
func (noopCounters) ItemAlreadyExists()          {}
func (noopCounters) ItemUpdate()                 {}
func (noopCounters) ItemDelete()                 {}
func (noopCounters) ItemDeleteForce()            {}
func (noopCounters) ItemDeleteTombstoneWritten() {}
func (noopCounters) ItemDirty()                  {}
func (noopCounters) ItemDeleteSave()             {}
func (noopCounters) ItemRestore()                {}
func (noopCounters) ItemAlloc()                  {}
func (noopCounters) ItemFree()                   {}
func (noopCounters) BatchInserted()              {}
func (noopCounters) BatchDuplicate()             {}
func (noopCounters) ShrinkAlone()                {}
func (noopCounters) ShrinkSplit()                {}
func (noopCounters) ShrinkLeft()                 {}
func (noopCounters) ShrinkRight()                {}
func (noopCounters) ShrinkFail()                 {}
func (noopCounters) Invalidate()                 {}
func (noopCounters) Writeback()                  {}
func (noopCounters) TransCommitItemFlush()       {}
