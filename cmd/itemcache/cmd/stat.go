package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "print cache dirty-item accounting and counters",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindViper(cmd)
	},
	RunE: runStat,
}

func runStat(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	items, bytesDirty := s.committer.DirtyCounts()
	fmt.Printf("nr_dirty_items=%d dirty_val_bytes=%d has_dirty=%t\n", s.cache.NrDirtyItems(), s.cache.DirtyValBytes(), s.cache.HasDirty())
	fmt.Printf("committer_tracked_items=%d committer_tracked_bytes=%d\n", items, bytesDirty)

	var buf bytes.Buffer
	s.counters.WritePrometheus(&buf)
	fmt.Print(buf.String())
	return nil
}
