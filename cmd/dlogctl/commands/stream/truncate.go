package stream

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
	"github.com/dlogio/dlog/internal/cli/prompt"
	"github.com/dlogio/dlog/pkg/position"
)

var truncateForce bool

var truncateCmd = &cobra.Command{
	Use:   "truncate NAME SEGMENT_SEQ ENTRY_ID SLOT_ID",
	Short: "Move a stream's truncation low-water-mark forward",
	Long: `Move NAME's truncation low-water-mark forward to the given position.

Segments entirely below the new mark become eligible for deletion from the
segment store. This is irreversible: truncated records cannot be read
again even if the mark is later lowered in the catalog.`,
	Args: cobra.ExactArgs(4),
	RunE: runTruncate,
}

func init() {
	truncateCmd.Flags().BoolVarP(&truncateForce, "force", "f", false, "Skip the confirmation prompt")
}

func runTruncate(cmd *cobra.Command, args []string) error {
	name := args[0]
	pos, err := parsePosition(args[1], args[2], args[3])
	if err != nil {
		return err
	}

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Truncate %q up to %s? This is irreversible.", name, pos), truncateForce)
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
	if err := client.Truncate(cmdutil.Context(), name, pos); err != nil {
		return fmt.Errorf("truncate %q: %w", name, err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("stream %q truncated up to %s", name, pos))
	return nil
}

func parsePosition(segSeq, entryID, slotID string) (position.Position, error) {
	var p position.Position
	var err error
	if p.SegmentSeq, err = parseInt64(segSeq); err != nil {
		return p, fmt.Errorf("segment_seq: %w", err)
	}
	if p.EntryID, err = parseInt64(entryID); err != nil {
		return p, fmt.Errorf("entry_id: %w", err)
	}
	if p.SlotID, err = parseInt64(slotID); err != nil {
		return p, fmt.Errorf("slot_id: %w", err)
	}
	return p, nil
}

func handleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}
