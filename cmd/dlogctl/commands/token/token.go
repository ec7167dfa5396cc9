// Package token implements dlogctl's admin-API bearer token commands.
package token

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for admin-API token management.
var Cmd = &cobra.Command{
	Use:   "token",
	Short: "Manage admin API bearer tokens",
	Long: `The admin API has no login endpoint: tokens are minted out-of-band by
an operator who holds the signing secret.

dlogctl token create reads that secret from the same configuration file
dlogd itself loads (or the DLOG_ADMINAPI_JWT_SECRET environment variable)
and signs a token locally; it never talks to a running server.`,
}

func init() {
	Cmd.AddCommand(createCmd)
}
