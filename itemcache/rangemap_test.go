package itemcache

import (
	"testing"

	"github.com/driftfs/itemcache/key"
)

func rangeOf(rm *rangeMap) [][2]uint64 {
	var out [][2]uint64
	rm.ascend(func(r *cell) bool {
		out = append(out, [2]uint64{r.rangeStart.Major, r.rangeEnd.Major})
		return true
	})
	return out
}

// checkRangeMapInvariant verifies P5: every pair of ranges is disjoint and
// non-adjacent (a gap of at least one key between any two ranges).
func checkRangeMapInvariant(t *testing.T, rm *rangeMap) {
	t.Helper()
	rs := rangeOf(rm)
	for i := 1; i < len(rs); i++ {
		prevEnd := rs[i-1][1]
		curStart := rs[i][0]
		if curStart <= prevEnd+1 {
			t.Fatalf("ranges %v and %v are overlapping or adjacent", rs[i-1], rs[i])
		}
	}
}

func TestRangeMapInsertMerge(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(0), k(3))
	checkRangeMapInvariant(t, rm)
	if got := rangeOf(rm); len(got) != 1 || got[0] != [2]uint64{0, 3} {
		t.Fatalf("got %v, want [[0 3]]", got)
	}

	// scenario 3: inserting an overlapping range merges into one.
	rm.insertRange(k(2), k(5))
	checkRangeMapInvariant(t, rm)
	if got := rangeOf(rm); len(got) != 1 || got[0] != [2]uint64{0, 5} {
		t.Fatalf("got %v, want [[0 5]]", got)
	}
}

func TestRangeMapInsertAdjacentMerges(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(0), k(10))
	rm.insertRange(key.Inc(k(10)), k(20))
	checkRangeMapInvariant(t, rm)
	if got := rangeOf(rm); len(got) != 1 || got[0] != [2]uint64{0, 20} {
		t.Fatalf("adjacent ranges did not merge, got %v", got)
	}
}

func TestRangeMapInsertDisjointStaysSeparate(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(0), k(10))
	rm.insertRange(k(20), k(30))
	checkRangeMapInvariant(t, rm)
	if got := rangeOf(rm); len(got) != 2 {
		t.Fatalf("expected 2 disjoint ranges, got %v", got)
	}
}

func TestRangeMapCoverage(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(10), k(20))
	if rm.coverage(k(5)) != nil {
		t.Fatalf("5 should not be covered")
	}
	if rm.coverage(k(15)) == nil {
		t.Fatalf("15 should be covered")
	}
	if rm.coverage(k(20)) == nil {
		t.Fatalf("20 (endpoint) should be covered")
	}
	if rm.coverage(k(21)) != nil {
		t.Fatalf("21 should not be covered")
	}
}

func TestRangeMapRemoveSplit(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(0), k(20))
	rm.removeRange(k(8), k(12), nil)
	checkRangeMapInvariant(t, rm)
	got := rangeOf(rm)
	// Dec(k(8)) has Major 7; Inc(k(12)) only steps Offset, so Major 12.
	want := [][2]uint64{{0, 7}, {12, 20}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRangeMapRemoveSplitReusesEvictedCell(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(0), k(20))
	evicted := newItemCell(k(999), key.Value("x"), false, false)
	rm.removeRange(k(8), k(12), evicted)
	checkRangeMapInvariant(t, rm)

	found := false
	rm.ascend(func(r *cell) bool {
		if r == evicted {
			found = true
		}
		return true
	})
	if !found {
		t.Fatalf("split did not reuse the evicted cell's memory")
	}
	if !evicted.isRange {
		t.Fatalf("reused cell was not converted to a range")
	}
}

func TestRangeMapRemoveShrinkLeftRight(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(10), k(20))
	rm.removeRange(k(0), k(12), nil)
	checkRangeMapInvariant(t, rm)
	// the new start is Inc(k(12)), which keeps Major 12.
	if got := rangeOf(rm); len(got) != 1 || got[0] != [2]uint64{12, 20} {
		t.Fatalf("left shrink: got %v, want [[12 20]]", got)
	}

	rm2 := newRangeMap()
	rm2.insertRange(k(10), k(20))
	rm2.removeRange(k(15), k(30), nil)
	checkRangeMapInvariant(t, rm2)
	if got := rangeOf(rm2); len(got) != 1 || got[0] != [2]uint64{10, 14} {
		t.Fatalf("right shrink: got %v, want [[10 14]]", got)
	}
}

func TestRangeMapRemoveWhole(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(10), k(20))
	rm.removeRange(k(0), k(30), nil)
	if got := rangeOf(rm); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestRangeMapKeysSince(t *testing.T) {
	rm := newRangeMap()
	rm.insertRange(k(0), k(5))
	rm.insertRange(k(10), k(15))
	rm.insertRange(k(20), k(25))

	out := make([]key.Key, 6)
	n := rm.keysSince(k(3), out)
	want := []uint64{0, 5, 10, 15, 20, 25}
	if n != len(want) {
		t.Fatalf("n = %d, want %d", n, len(want))
	}
	for i, w := range want {
		if out[i].Major != w {
			t.Fatalf("out[%d] = %d, want %d", i, out[i].Major, w)
		}
	}

	out2 := make([]key.Key, 2)
	n2 := rm.keysSince(k(16), out2)
	if n2 != 2 || out2[0].Major != 20 || out2[1].Major != 25 {
		t.Fatalf("keysSince(16) = %v, want [20 25]", out2[:n2])
	}
}
