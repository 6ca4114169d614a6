package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the background shrinker loop and serve telemetry over HTTP",
	Long: `Run itemcache as a long-lived process: a background loop periodically
calls Cache.Shrink to keep the in-memory tree bounded, and an HTTP
server exposes the resulting counters at /metrics in the
VictoriaMetrics/Prometheus text exposition format.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindViper(cmd)
	},
	RunE: runServe,
}

func init() {
	key := "endpoint"
	serveCmd.Flags().String(key, "0.0.0.0:8080", wrapHelp("Address the /metrics HTTP server listens on"))
	key = "shrink-interval-ms"
	serveCmd.Flags().Int(key, 500, wrapHelp("How often the background shrinker loop runs, in milliseconds"))
	key = "shrink-batch"
	serveCmd.Flags().Int(key, 64, wrapHelp("Maximum number of items one shrinker pass evicts"))
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.counters.WritePrometheus(w)
	})

	endpoint := viper.GetString("endpoint")
	server := &http.Server{Addr: endpoint, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runShrinkerLoop(ctx, s, viper.GetInt("shrink-interval-ms"), viper.GetInt("shrink-batch"))

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
		_ = server.Close()
	}()

	fmt.Printf("itemcache serving metrics on %s/metrics\n", endpoint)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runShrinkerLoop periodically calls Cache.Shrink, the caller-driven
// replacement for the original's OS memory-pressure callback (§5).
func runShrinkerLoop(ctx context.Context, s *session, intervalMs, batch int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cache.Shrink(batch)
		}
	}
}
