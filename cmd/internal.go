package cmd

import (
	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewInternalCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "internal-server",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			d := daemon.New()
			d.Run()
		},
	}
}
