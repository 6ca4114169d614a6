package key

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Size is the encoded width of a Key in bytes: one zone byte, two 64 bit
// major/minor fields, and a 32 bit offset.
const Size = 1 + 8 + 8 + 4

// Key is an opaque, totally ordered, fixed-structure value. Zero value is
// the minimum key (all fields zero).
type Key struct {
	Zone   uint8
	Major  uint64
	Minor  uint64
	Offset uint32
}

// Zero is the smallest possible Key.
var Zero = Key{}

// Max is the largest possible Key, used as an open-ended upper bound.
var Max = Key{Zone: 0xff, Major: ^uint64(0), Minor: ^uint64(0), Offset: ^uint32(0)}

// Encode writes the Key's fixed-width ordered byte representation into buf,
// which must be at least Size bytes.
func (k Key) Encode(buf []byte) {
	buf[0] = k.Zone
	binary.BigEndian.PutUint64(buf[1:9], k.Major)
	binary.BigEndian.PutUint64(buf[9:17], k.Minor)
	binary.BigEndian.PutUint32(buf[17:21], k.Offset)
}

// Bytes returns the Key's encoded ordered byte representation.
func (k Key) Bytes() []byte {
	buf := make([]byte, Size)
	k.Encode(buf)
	return buf
}

func (k Key) String() string {
	return fmt.Sprintf("%02x:%016x:%016x:%08x", k.Zone, k.Major, k.Minor, k.Offset)
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
// Fields are compared in encoding order (zone, major, minor, offset), so the
// result matches a byte-wise comparison of the big-endian encoded form.
func Compare(a, b Key) int {
	if a.Zone != b.Zone {
		if a.Zone < b.Zone {
			return -1
		}
		return 1
	}
	if a.Major != b.Major {
		if a.Major < b.Major {
			return -1
		}
		return 1
	}
	if a.Minor != b.Minor {
		if a.Minor < b.Minor {
			return -1
		}
		return 1
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b. Provided for callers (like the
// range btree) that want a strict-weak-ordering predicate instead of a
// three-way comparator.
func Less(a, b Key) bool {
	return Compare(a, b) < 0
}

// CompareRanges compares the range [aStart, aEnd] against the range
// [bStart, bEnd]: 0 if they overlap or touch, -1 if a sorts entirely below
// b, 1 if a sorts entirely above b. Mirrors scoutfs_key_compare_ranges: it
// is the primitive both the item lookup ("is k in [start,end]?", pass
// k for both a's endpoints) and the range map's overlap descent use.
func CompareRanges(aStart, aEnd, bStart, bEnd Key) int {
	if Compare(aEnd, bStart) < 0 {
		return -1
	}
	if Compare(aStart, bEnd) > 0 {
		return 1
	}
	return 0
}

// Inc returns the successor of k in the total order. Incrementing Max
// wraps to Zero; callers that walk off the top of the keyspace must check
// for Max explicitly (mirrored on the original's u64 overflow behavior,
// which is likewise the caller's responsibility to avoid).
func Inc(k Key) Key {
	if k.Offset != ^uint32(0) {
		k.Offset++
		return k
	}
	k.Offset = 0
	if k.Minor != ^uint64(0) {
		k.Minor++
		return k
	}
	k.Minor = 0
	if k.Major != ^uint64(0) {
		k.Major++
		return k
	}
	k.Major = 0
	k.Zone++
	return k
}

// Dec returns the predecessor of k in the total order. Decrementing Zero
// wraps to Max; see Inc's note on boundary behavior.
func Dec(k Key) Key {
	if k.Offset != 0 {
		k.Offset--
		return k
	}
	k.Offset = ^uint32(0)
	if k.Minor != 0 {
		k.Minor--
		return k
	}
	k.Minor = ^uint64(0)
	if k.Major != 0 {
		k.Major--
		return k
	}
	k.Major = ^uint64(0)
	k.Zone--
	return k
}

// SetZero zeroes k in place, mirroring scoutfs_key_set_zeros: used by
// callers that want to clear a key without allocating a fresh zero value.
func SetZero(k *Key) {
	*k = Zero
}

// MaxValSize bounds the length of any Value accepted by the cache.
const MaxValSize = 1 << 16

// Value is a variable-length byte buffer. A nil Value represents an item
// present but valueless, distinct from an empty non-nil slice.
type Value []byte

// Clone returns a defensive copy of v, or nil if v is nil.
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	c := make(Value, len(v))
	copy(c, v)
	return c
}

// Len returns len(v), 0 for a nil Value.
func (v Value) Len() int {
	return len(v)
}

// Equal reports whether two Values hold identical bytes, treating nil and
// empty-but-non-nil as distinct (matching the cache's null-vs-empty item
// distinction in spec).
func Equal(a, b Value) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}
