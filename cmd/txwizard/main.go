package main

import (
	"os"

	"txwizard/cmd/txwizard/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
