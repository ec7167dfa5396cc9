package stream

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
)

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Register a new stream in the catalog",
	Long: `Register a new stream in dlogd's catalog.

There is no admin-API route for this: stream creation writes directly to
the catalog database dlogd also reads from. A running dlogd picks up the
new stream on its next catalog poll (see internal/daemon's poll loop) and
starts writing to it; no restart is required.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := cmdutil.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmdutil.Context()
	catalogStore, err := cfg.CreateCatalog(ctx)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalogStore.Close()

	if _, err := catalogStore.CreateStream(ctx, name); err != nil {
		return fmt.Errorf("create stream %q: %w", name, err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("stream %q created", name))
	return nil
}
