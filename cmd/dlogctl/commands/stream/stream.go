// Package stream implements dlogctl's stream management commands.
package stream

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for stream management.
var Cmd = &cobra.Command{
	Use:   "stream",
	Short: "Manage log streams",
	Long: `Create, inspect, and administer dlogd streams.

Examples:
  dlogctl stream create orders
  dlogctl stream list
  dlogctl stream show orders
  dlogctl stream segments orders
  dlogctl stream tail orders`,
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(segmentsCmd)
	Cmd.AddCommand(truncateCmd)
	Cmd.AddCommand(markEndOfStreamCmd)
	Cmd.AddCommand(rollCmd)
	Cmd.AddCommand(tailCmd)
}
