package stream

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
)

var rollCmd = &cobra.Command{
	Use:   "roll NAME",
	Short: "Force an immediate segment roll",
	Long:  `Close NAME's current in-progress segment and open a new one, bypassing the configured rolling policy.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRoll,
}

func runRoll(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	if err := client.ForceRoll(cmdutil.Context(), name); err != nil {
		return fmt.Errorf("force roll %q: %w", name, err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("stream %q rolled to a new segment", name))
	return nil
}
