package main

import (
	"log"

	"github.com/BenHamm/bluesky-times/cli"
)

func main() {
	timesCmd := cli.NewCommand()
	if err := timesCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
