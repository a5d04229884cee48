package main

import (
	"os"

	"focustrack/modules/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
