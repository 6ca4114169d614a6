package cmd

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/viper"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/manifest/pebbleseg"
	"github.com/driftfs/itemcache/telemetry"
	"github.com/driftfs/itemcache/trans"
)

// session bundles together everything a one-shot command or the serve
// loop needs: the cache itself, the pebble-backed manifest it reads
// through, and the committer that drains dirty items back into it.
type session struct {
	cache     *itemcache.Cache
	store     *pebbleseg.Store
	counters  *telemetry.Counters
	committer *trans.Committer
}

// openSession opens (or creates) the pebble manifest at the configured
// data-dir and wires it to a fresh Cache, the way cmd/itemcache's every
// subcommand needs to before it can do anything.
func openSession() (*session, error) {
	dataDir := viper.GetString("data-dir")

	counters := telemetry.NewCounters(metrics.NewSet())

	cache := itemcache.Setup(itemcache.Options{
		Counters: counters,
	})

	store, err := pebbleseg.Open(dataDir, cache)
	if err != nil {
		return nil, fmt.Errorf("opening manifest at %s: %w", dataDir, err)
	}
	cache.SetManifest(store)

	committer := trans.NewCommitter(cache, func() trans.CommittableSegment {
		return store.NewSegment(pebbleseg.DefaultMaxSegmentItems, pebbleseg.DefaultMaxSegmentBytes)
	}, 0)
	cache.SetTracker(committer)
	cache.SetSyncer(committer)

	return &session{
		cache:     cache,
		store:     store,
		counters:  counters,
		committer: committer,
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}
