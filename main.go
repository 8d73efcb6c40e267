package main

import (
	"os"

	"go.olrik.dev/adbwatch/cmd"
)

func main() {
	// If no command specified, default to devices
	if len(os.Args) == 1 {
		os.Args = []string{os.Args[0], "devices"}
	}

	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
