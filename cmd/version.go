package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentmux version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentmux version %s\n", GetVersion())
		},
	}
}
