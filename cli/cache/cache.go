package cache

import (
	"os"

	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cacheCommand := &cobra.Command{
		Use:   "cache",
		Short: "Commands for inspecting cached timeline snapshots",
		Example: "  # Lists the snapshots available for --cache replay\n" +
			"  " + os.Args[0] + " cache list",
	}

	cacheCommand.AddCommand(initListCommand())

	return cacheCommand
}
