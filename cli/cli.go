package cli

import (
	"fmt"
	"os"

	"github.com/BenHamm/bluesky-times/cli/cache"
	"github.com/BenHamm/bluesky-times/cli/generate"
	"github.com/BenHamm/bluesky-times/configuration"
	"github.com/BenHamm/bluesky-times/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dbPath  string
	verbose bool
)

func NewCommand() *cobra.Command {
	timesCli := &cobra.Command{
		Use:     "bluesky-times",
		Short:   "Bluesky Times CLI",
		Long:    "Turns a Bluesky timeline into a printable newspaper edition",
		Example: fmt.Sprintf("  %s generate yourname.bsky.social", os.Args[0]),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configuration.LoadEnvironment()
			logger.SetVerbose(viper.GetBool("verbose"))
		},
	}

	timesCli.PersistentFlags().StringVar(&dbPath, "database", "", "Snapshot database filename")
	timesCli.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	viper.BindPFlag("database", timesCli.PersistentFlags().Lookup("database"))
	viper.BindPFlag("verbose", timesCli.PersistentFlags().Lookup("verbose"))

	timesCli.AddCommand(generate.NewCommand())
	timesCli.AddCommand(cache.NewCommand())

	return timesCli
}
