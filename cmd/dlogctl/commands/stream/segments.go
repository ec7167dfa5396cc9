package stream

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
	"github.com/dlogio/dlog/pkg/adminapi"
)

var segmentsCmd = &cobra.Command{
	Use:   "segments NAME",
	Short: "List a stream's segments",
	Args:  cobra.ExactArgs(1),
	RunE:  runSegments,
}

type segmentList []adminapi.SegmentView

func (l segmentList) Headers() []string {
	return []string{"SEQ", "STATE", "FIRST ENTRY", "LAST ENTRY", "START TXID", "LAST TXID", "REGION", "RECORDS"}
}

func (l segmentList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, []string{
			strconv.FormatInt(s.SegmentSeq, 10),
			s.State,
			strconv.FormatInt(s.FirstEntrySeq, 10),
			strconv.FormatInt(s.LastEntrySeq, 10),
			strconv.FormatInt(s.StartTxID, 10),
			strconv.FormatInt(s.LastTxID, 10),
			strconv.FormatInt(s.RegionID, 10),
			strconv.FormatInt(s.RecordCount, 10),
		})
	}
	return rows
}

func runSegments(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	segments, err := client.ListSegments(cmdutil.Context(), name)
	if err != nil {
		return fmt.Errorf("list segments for %q: %w", name, err)
	}

	rows := segmentList(segments)
	return cmdutil.PrintOutput(os.Stdout, rows, len(rows) == 0, "No segments found.", rows)
}
