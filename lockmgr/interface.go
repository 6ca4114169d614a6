// Package lockmgr defines the lock-manager contract the item cache depends
// on for its external Lock leases (itemcache §4.2), with two providers:
// lockmgr/local (single-process) and lockmgr/raftlock (Raft-replicated).
// Grounded on the teacher's lib/lockmgr package, generalized from named
// point-key locks to range-plus-mode locks.
package lockmgr

import (
	"context"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
)

// ILockManager is the interface every lock-manager provider implements.
// AcquireLock returns ok=false (with a nil error) when the range conflicts
// with an existing lease held by someone else, mirroring the teacher's
// ILockManager.AcquireLock contract of distinguishing "lost the race" from
// "an error occurred".
type ILockManager interface {
	// AcquireLock grants a lease of the given mode over [start,end] unless
	// it conflicts with an existing lease. timeoutSeconds of 0 means no
	// expiration.
	AcquireLock(ctx context.Context, start, end key.Key, mode itemcache.Mode, timeoutSeconds uint64) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases a previously granted lease. ok is true if the
	// lease existed and ownerID matched, or if the lease did not exist at
	// all (already released/expired) — mirroring the teacher's
	// ReleaseLock contract ("will also return True if the lock did not
	// exist").
	ReleaseLock(ctx context.Context, start, end key.Key, ownerID []byte) (ok bool, err error)
}

// Grant is the itemcache.Lock implementation returned to a caller once
// AcquireLock succeeds.
type Grant struct {
	mode       itemcache.Mode
	start, end key.Key
}

func NewGrant(mode itemcache.Mode, start, end key.Key) Grant {
	return Grant{mode: mode, start: start, end: end}
}

func (g Grant) Mode() itemcache.Mode { return g.mode }
func (g Grant) Start() key.Key       { return g.start }
func (g Grant) End() key.Key         { return g.end }

// Conflicts reports whether a lease of mode a overlapping a lease of mode
// b (or any query against it) must be refused. Read/Read is the only
// compatible pair; Write is a superset of Read so it conflicts with
// everything, and WriteOnly grants exclusive range ownership so it also
// conflicts with everything, including another WriteOnly.
func Conflicts(a, b itemcache.Mode) bool {
	return !(a == itemcache.Read && b == itemcache.Read)
}

// Overlaps reports whether two closed ranges [s1,e1] and [s2,e2] share any
// key.
func Overlaps(s1, e1, s2, e2 key.Key) bool {
	return key.Compare(s1, e2) <= 0 && key.Compare(s2, e1) <= 0
}
