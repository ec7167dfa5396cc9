package stream

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
	"github.com/dlogio/dlog/pkg/adminapi"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all streams",
	RunE:  runList,
}

// streamList renders a slice of adminapi.StreamView as a table.
type streamList []adminapi.StreamView

func (l streamList) Headers() []string { return []string{"NAME", "CREATED", "TRUNCATED AT"} }

func (l streamList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, []string{s.Name, s.CreatedAt, s.TruncatedPosition})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	streams, err := client.ListStreams(cmdutil.Context())
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	rows := streamList(streams)
	return cmdutil.PrintOutput(os.Stdout, rows, len(rows) == 0, "No streams found.", rows)
}
