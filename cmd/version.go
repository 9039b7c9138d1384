package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clhost/internal/backend"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "clhost version %s (backends: %v)\n", version, backend.SupportedBackends())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
