package itemcache

import "github.com/driftfs/itemcache/key"

// Mode is a lock's access mode. Write is a superset of Read; WriteOnly is
// its own class, granted to callers of the *_force operations that bypass
// read coverage entirely (they never consult the range/item maps for a
// decisive answer, only for CORRUPTION detection).
type Mode int

const (
	Read Mode = iota
	Write
	WriteOnly
)

// covers reports whether a held lock of mode m satisfies a requested op
// mode. Write covers Read and Write; WriteOnly covers only WriteOnly.
func (m Mode) covers(op Mode) bool {
	switch m {
	case Write:
		return op == Read || op == Write
	case Read:
		return op == Read
	case WriteOnly:
		return op == WriteOnly
	default:
		return false
	}
}

// Lock is the external lease every Cache operation is required to hold.
// Implementations live in package lockmgr; the cache only ever reads it.
type Lock interface {
	Mode() Mode
	Start() key.Key
	End() key.Key
}

// checkLock asserts lock.mode covers op and k falls within [lock.Start(),
// lock.End()]. Violations are the one case in the error table that changes
// no state and is returned immediately, before anything else runs.
func checkLock(lock Lock, op Mode, k key.Key) *CacheError {
	if lock == nil {
		return newErr(InvalidArg, "nil lock")
	}
	if !lock.Mode().covers(op) {
		return newErr(InvalidArg, "lock mode %v does not cover op mode %v", lock.Mode(), op)
	}
	if key.Compare(k, lock.Start()) < 0 || key.Compare(k, lock.End()) > 0 {
		return newErr(InvalidArg, "key %v outside lock range [%v,%v]", k, lock.Start(), lock.End())
	}
	return nil
}

// checkLockRange asserts lock.mode covers op and the whole [start,end]
// range falls within the lock's range. Used by range-scoped operations
// (range_cached, writeback, invalidate, insert_batch).
func checkLockRange(lock Lock, op Mode, start, end key.Key) *CacheError {
	if lock == nil {
		return newErr(InvalidArg, "nil lock")
	}
	if !lock.Mode().covers(op) {
		return newErr(InvalidArg, "lock mode %v does not cover op mode %v", lock.Mode(), op)
	}
	if key.Compare(start, end) > 0 {
		return newErr(InvalidArg, "start %v > end %v", start, end)
	}
	if key.Compare(start, lock.Start()) < 0 || key.Compare(end, lock.End()) > 0 {
		return newErr(InvalidArg, "range [%v,%v] outside lock range [%v,%v]", start, end, lock.Start(), lock.End())
	}
	return nil
}
