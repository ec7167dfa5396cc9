package token

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/cmd/dlogctl/cmdutil"
)

var createCmd = &cobra.Command{
	Use:   "create PRINCIPAL",
	Short: "Mint a bearer token for PRINCIPAL",
	Long: `Mint a short-lived admin-API bearer token identifying PRINCIPAL (an
operator name or automation identity, carried through to dlogd's logs).

The raw token is printed on its own line whatever --output says, so it
can be piped directly into an environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	principal := args[0]

	cfg, err := cmdutil.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	token, err := cmdutil.MintLocalToken(cfg, principal)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	fmt.Println(token)
	return nil
}
