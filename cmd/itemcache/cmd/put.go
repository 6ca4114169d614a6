package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
	"github.com/driftfs/itemcache/lockmgr"
)

var putCmd = &cobra.Command{
	Use:   "put <major> <value>",
	Short: "create or update a single item and commit it to the manifest",
	Args:  cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindViper(cmd)
	},
	RunE: runPut,
}

func init() {
	key := "zone"
	putCmd.Flags().Uint8(key, 0, wrapHelp("Zone byte of the key to write"))
	key = "minor"
	putCmd.Flags().Uint64(key, 0, wrapHelp("Minor component of the key to write"))
}

func runPut(cmd *cobra.Command, args []string) error {
	k, err := parseKeyArg(cmd, args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	forceLock := lockmgr.NewGrant(itemcache.WriteOnly, key.Zero, key.Max)
	lock := lockmgr.NewGrant(itemcache.Write, key.Zero, key.Max)
	ctx := context.Background()

	if err := s.cache.CreateForce(forceLock, k, key.Value(args[1])); err != nil {
		return fmt.Errorf("put %v: %w", k, err)
	}
	if err := s.cache.Writeback(ctx, lock, k, k); err != nil {
		return fmt.Errorf("writeback %v: %w", k, err)
	}

	fmt.Printf("put %v = %q\n", k, args[1])
	return nil
}
