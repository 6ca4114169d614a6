package itemcache

import "github.com/driftfs/itemcache/key"

// BatchItem is one item read from the manifest, awaiting insertion by
// InsertBatch. Deletion distinguishes a persisted tombstone from a live
// value; items arriving via a batch are always persistent (§4.5 step 3).
type BatchItem struct {
	Key      key.Key
	Value    key.Value
	Deletion bool
}

// Batch is an ordered (ascending key), exclusively-owned sequence of items
// conveyed from a Manifest read to the cache. Ownership transfers to
// InsertBatch; items it does not consume (duplicates that lost to a
// concurrently-written cached item) are returned to the caller to discard.
type Batch []BatchItem
