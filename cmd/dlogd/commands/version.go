package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show dlogd version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dlogd %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}
