package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
	"github.com/driftfs/itemcache/lockmgr"
)

var getCmd = &cobra.Command{
	Use:   "get <major>",
	Short: "look up a single item by its major key and print its value",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindViper(cmd)
	},
	RunE: runGet,
}

func init() {
	key := "zone"
	getCmd.Flags().Uint8(key, 0, wrapHelp("Zone byte of the key to look up"))
	key = "minor"
	getCmd.Flags().Uint64(key, 0, wrapHelp("Minor component of the key to look up"))
}

func runGet(cmd *cobra.Command, args []string) error {
	k, err := parseKeyArg(cmd, args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	lock := lockmgr.NewGrant(itemcache.Read, key.Zero, key.Max)
	item, err := s.cache.Lookup(context.Background(), lock, k)
	if err != nil {
		return fmt.Errorf("lookup %v: %w", k, err)
	}

	fmt.Println(string(item.Value))
	return nil
}
