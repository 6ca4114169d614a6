package cmd

import (
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftfs/itemcache/key"
)

// initConfig wires environment variables and .env files into viper the
// way the teacher's cmd packages do it, with the prefix changed from
// DKV_ to ITEMCACHE_ (e.g. ITEMCACHE_DATA_DIR=/var/lib/itemcache).
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("itemcache")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindViper binds cmd's own flags into viper so ITEMCACHE_<flag> and
// .env entries can override them, same as the teacher's processConfig
// PreRunE hooks do per-subcommand.
func bindViper(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// parseKeyArg builds a key.Key from a positional major-key argument
// plus the --zone and --minor flags every inspection subcommand
// registers.
func parseKeyArg(cmd *cobra.Command, arg string) (key.Key, error) {
	major, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return key.Key{}, err
	}
	zone, _ := cmd.Flags().GetUint8("zone")
	minor, _ := cmd.Flags().GetUint64("minor")
	return key.Key{Zone: zone, Major: major, Minor: minor}, nil
}
