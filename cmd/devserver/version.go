package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", config.ServerName, version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
