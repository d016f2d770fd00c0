package main

import (
	"os"

	"guild-ranker/cmd/indexer/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
