package stream

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
	"github.com/dlogio/dlog/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show one stream's details",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	view, err := client.GetStream(cmdutil.Context(), name)
	if err != nil {
		return fmt.Errorf("get stream %q: %w", name, err)
	}

	format, err := output.ParseFormat(cmdutil.Flags.Output)
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, view)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, view)
	default:
		output.SimpleTable(os.Stdout, [][2]string{
			{"name", view.Name},
			{"created", view.CreatedAt},
			{"truncated at", view.TruncatedPosition},
		})
		return nil
	}
}
