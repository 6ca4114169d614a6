package telemetry

import (
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/driftfs/itemcache/key"
)

func TestCountersIncrementIndependently(t *testing.T) {
	set := metrics.NewSet()
	c := NewCounters(set)

	c.LookupHit()
	c.LookupHit()
	c.LookupMiss()

	if got := c.lookupHit.Get(); got != 2 {
		t.Fatalf("lookupHit = %d, want 2", got)
	}
	if got := c.lookupMiss.Get(); got != 1 {
		t.Fatalf("lookupMiss = %d, want 1", got)
	}
	if got := c.rangeHit.Get(); got != 0 {
		t.Fatalf("rangeHit = %d, want 0", got)
	}
}

func TestLatencyTrackerManifestReadRoundTrip(t *testing.T) {
	l := NewLatencyTracker(gometrics.NewRegistry())
	k := key.Key{Major: 1}

	l.BeginManifestRead(k)
	time.Sleep(time.Millisecond)
	l.EndManifestRead(k)

	if n := l.ManifestReadTimer().Count(); n != 1 {
		t.Fatalf("ManifestReadTimer().Count() = %d, want 1", n)
	}
}

func TestLatencyTrackerEndWithoutBeginIsNoop(t *testing.T) {
	l := NewLatencyTracker(gometrics.NewRegistry())
	l.EndManifestRead(key.Key{Major: 99})
	if n := l.ManifestReadTimer().Count(); n != 0 {
		t.Fatalf("ManifestReadTimer().Count() = %d, want 0", n)
	}
}

func TestLatencyTrackerShrinkerPass(t *testing.T) {
	l := NewLatencyTracker(gometrics.NewRegistry())
	l.TimeShrinkerPass(5 * time.Millisecond)
	l.TimeShrinkerPass(10 * time.Millisecond)
	if n := l.ShrinkerPassTimer().Count(); n != 2 {
		t.Fatalf("ShrinkerPassTimer().Count() = %d, want 2", n)
	}
}

func TestLatencyTrackerConcurrentKeysIndependent(t *testing.T) {
	l := NewLatencyTracker(gometrics.NewRegistry())
	a := key.Key{Major: 1}
	b := key.Key{Major: 2}

	l.BeginManifestRead(a)
	l.BeginManifestRead(b)
	l.EndManifestRead(a)
	l.EndManifestRead(b)

	if n := l.ManifestReadTimer().Count(); n != 2 {
		t.Fatalf("ManifestReadTimer().Count() = %d, want 2", n)
	}
}
