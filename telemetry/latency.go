package telemetry

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/driftfs/itemcache/key"
)

// LatencyTracker times manifest reads and shrinker passes with
// rcrowley/go-metrics Timers, keyed by the operation name
// ("manifest_read", "shrinker_pass"). A manifest read is asynchronous
// from the caller's point of view — ReadItems can be in flight for one
// key while another Lookup starts a second read for a different key —
// so in-flight start times are tracked in an xsync.MapOf keyed by the
// query key rather than a single shared field.
type LatencyTracker struct {
	registry gometrics.Registry
	inFlight *xsync.MapOf[key.Key, time.Time]
}

// NewLatencyTracker returns a LatencyTracker registered against
// registry. A nil registry uses gometrics.DefaultRegistry.
func NewLatencyTracker(registry gometrics.Registry) *LatencyTracker {
	if registry == nil {
		registry = gometrics.DefaultRegistry
	}
	return &LatencyTracker{
		registry: registry,
		inFlight: xsync.NewMapOf[key.Key, time.Time](),
	}
}

// ManifestReadTimer returns the Timer accumulating manifest.ReadItems
// durations.
func (l *LatencyTracker) ManifestReadTimer() gometrics.Timer {
	return gometrics.GetOrRegisterTimer("itemcache.manifest_read", l.registry)
}

// ShrinkerPassTimer returns the Timer accumulating shrinker pass
// durations.
func (l *LatencyTracker) ShrinkerPassTimer() gometrics.Timer {
	return gometrics.GetOrRegisterTimer("itemcache.shrinker_pass", l.registry)
}

// BeginManifestRead records the start of a ReadItems call for at so a
// matching EndManifestRead can compute its duration. Concurrent reads
// for distinct keys are tracked independently.
func (l *LatencyTracker) BeginManifestRead(at key.Key) {
	l.inFlight.Store(at, time.Now())
}

// EndManifestRead records the end of the ReadItems call started by the
// most recent BeginManifestRead(at), updating ManifestReadTimer. A call
// with no matching Begin (at was never started, or was already ended)
// is a no-op.
func (l *LatencyTracker) EndManifestRead(at key.Key) {
	start, ok := l.inFlight.LoadAndDelete(at)
	if !ok {
		return
	}
	l.ManifestReadTimer().Update(time.Since(start))
}

// TimeShrinkerPass records d as one shrinker pass's duration.
func (l *LatencyTracker) TimeShrinkerPass(d time.Duration) {
	l.ShrinkerPassTimer().Update(d)
}
