// Package config implements dlogctl's local configuration-file commands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for local configuration file management.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage dlogd's local configuration file",
}

func init() {
	Cmd.AddCommand(initCmd)
}
