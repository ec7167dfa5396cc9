package stream

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
	"github.com/dlogio/dlog/internal/cli/prompt"
)

var markEndOfStreamForce bool

var markEndOfStreamCmd = &cobra.Command{
	Use:   "mark-end-of-stream NAME",
	Short: "Write the terminal end-of-stream record",
	Long: `Write NAME's terminal end-of-stream record, after which no further
writes are accepted. This cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: runMarkEndOfStream,
}

func init() {
	markEndOfStreamCmd.Flags().BoolVarP(&markEndOfStreamForce, "force", "f", false, "Skip the confirmation prompt")
}

func runMarkEndOfStream(cmd *cobra.Command, args []string) error {
	name := args[0]

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Mark %q as ended? No further writes will be accepted.", name), markEndOfStreamForce)
	if err != nil {
		return handleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	if err := client.MarkEndOfStream(cmdutil.Context(), name); err != nil {
		return fmt.Errorf("mark end of stream %q: %w", name, err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("stream %q marked as ended", name))
	return nil
}
