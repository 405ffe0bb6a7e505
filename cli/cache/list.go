package cache

import (
	"fmt"

	"github.com/BenHamm/bluesky-times/configuration"
	"github.com/BenHamm/bluesky-times/logger"
	"github.com/spf13/cobra"
)

func initListCommand() *cobra.Command {
	listCommand := &cobra.Command{
		Use:   "list",
		Short: "Lists snapshots in the database",
		Run:   runListCommand,
	}
	return listCommand
}

func runListCommand(cmd *cobra.Command, args []string) {
	sdb, err := configuration.OpenExistingSnapshotDatabase()
	if err != nil {
		logger.Log.Fatal(err)
	}
	defer sdb.Close()

	infos, err := sdb.ListSnapshots()
	if err != nil {
		logger.Log.Fatal(err)
	}

	for _, info := range infos {
		fmt.Printf("%s @%s: %d posts (fetched %s)\n",
			info.Date, info.Handle, info.PostCount,
			info.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}
