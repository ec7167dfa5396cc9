// Package commands implements the dlogctl CLI commands.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
	configcmd "github.com/dlogio/dlog/cmd/dlogctl/commands/config"
	streamcmd "github.com/dlogio/dlog/cmd/dlogctl/commands/stream"
	tokencmd "github.com/dlogio/dlog/cmd/dlogctl/commands/token"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd is the base command when dlogctl is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "dlogctl",
	Short: "dlogctl - admin client for dlogd",
	Long: `dlogctl is the command-line administration client for dlogd.

Most subcommands talk to a running dlogd's admin API over HTTP. A few
(stream create, stream tail, token create, config init) have no HTTP
route and instead read dlogd's own configuration file to reach the
catalog, coordinator, and segment store directly.

Use "dlogctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.ConfigFile, _ = cmd.Flags().GetString("config")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "dlogd admin API URL (default: "+cmdutil.EnvServerURL+" or http://localhost:9091)")
	rootCmd.PersistentFlags().String("token", "", "Admin API bearer token (default: "+cmdutil.EnvToken+")")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().String("config", "", "dlogd config file, for commands that bypass the admin API (default: $XDG_CONFIG_HOME/dlog/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(streamcmd.Cmd)
	rootCmd.AddCommand(tokencmd.Cmd)
	rootCmd.AddCommand(configcmd.Cmd)
}

// PrintErr prints an error to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with status 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
