package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/segmentmeta"
	"github.com/dlogio/dlog/pkg/segmentreader"
)

var tailFromStart bool

var tailCmd = &cobra.Command{
	Use:   "tail NAME",
	Short: "Stream a stream's records to stdout as they're written",
	Long: `Tail NAME's records from its current truncation mark, or from the
beginning of the stream with --from-start.

This has no admin-API route: it opens a segmentreader.Reader directly
against the catalog/coordinator/segment-store backends dlogctl's config
points at, the same way a real consumer would. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailFromStart, "from-start", false, "Start from the beginning of the stream instead of its truncation mark")
}

func runTail(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := cmdutil.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmdutil.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	coord, err := cfg.CreateCoordinator()
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	defer coord.Close()

	store, err := cfg.CreateSegmentStore(ctx, name)
	if err != nil {
		return fmt.Errorf("create segment store: %w", err)
	}

	meta := segmentmeta.New(coord, "/dlog/streams/"+name)

	startPosition := position.InitialLowerBound
	if !tailFromStart {
		if mark, err := meta.TruncationMark(ctx); err == nil {
			startPosition = mark
		}
	}

	reader := segmentreader.New(name, cfg.SegmentReaderConfig(), meta, store, startPosition, metrics.NewReaderMetrics())
	if err := reader.Start(ctx); err != nil {
		return fmt.Errorf("start reader: %w", err)
	}
	defer reader.Close(ctx)

	fmt.Printf("tailing %q from %s, press Ctrl+C to stop\n", name, startPosition)

	for {
		future, err := reader.ReadNext(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		delivered, err := future.WaitOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, dlogerr.ErrEndOfStream) {
				fmt.Println("(end of stream)")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("[%s] txid=%d bytes=%d\n", delivered.Position, delivered.Record.TxID, len(delivered.Record.Payload))
	}
}
