package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show dlogctl version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dlogctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}
