// Package cmdutil holds the flag state and output helpers shared by every
// dlogctl subcommand.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dlogio/dlog/internal/cli/output"
	"github.com/dlogio/dlog/pkg/adminapi"
	"github.com/dlogio/dlog/pkg/apiclient"
	"github.com/dlogio/dlog/pkg/config"
)

// EnvServerURL and EnvToken let an operator point dlogctl at a server and
// credential without repeating --server/--token on every invocation.
const (
	EnvServerURL = "DLOG_ADMINAPI_ADDR"
	EnvToken     = "DLOG_ADMINAPI_TOKEN"
)

const defaultServerURL = "http://localhost:9091"

// Flags holds the global flag values, populated by the root command's
// PersistentPreRun.
var Flags = &GlobalFlags{}

// GlobalFlags mirrors dlogctl's persistent flags.
type GlobalFlags struct {
	ServerURL  string
	Token      string
	Output     string
	NoColor    bool
	ConfigFile string
}

// GetClient builds an apiclient.Client from --server/--token, falling back
// to the DLOG_ADMINAPI_ADDR/DLOG_ADMINAPI_TOKEN environment variables and
// finally to the default local address. There is no stored-credential
// login flow: the admin API has no login endpoint, so a token must come
// from `dlogctl token create` or an operator-supplied secret.
func GetClient() (*apiclient.Client, error) {
	url := Flags.ServerURL
	if url == "" {
		url = os.Getenv(EnvServerURL)
	}
	if url == "" {
		url = defaultServerURL
	}

	token := Flags.Token
	if token == "" {
		token = os.Getenv(EnvToken)
	}

	client := apiclient.New(url)
	if token != "" {
		client = client.WithToken(token)
	}
	return client, nil
}

// LoadLocalConfig loads dlogd's configuration file for the subcommands that
// talk to the catalog/coordinator/segment store directly rather than
// through the admin API (stream create, stream tail, token create).
func LoadLocalConfig() (*config.Config, error) {
	return config.MustLoad(Flags.ConfigFile)
}

// MintLocalToken mints an admin-API bearer token using the signing secret
// from the local configuration, the same secret a running dlogd verifies
// incoming tokens against.
func MintLocalToken(cfg *config.Config, principal string) (string, error) {
	jwtCfg := cfg.AdminAPI.JWT
	jwtCfg.Secret = cfg.AdminAPI.Secret()
	svc, err := adminapi.NewJWTService(jwtCfg)
	if err != nil {
		return "", fmt.Errorf("build token signer: %w", err)
	}
	token, _, err := svc.MintToken(principal)
	return token, err
}

func outputFormat() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput renders data in the configured format: JSON/YAML encode data
// directly, table format uses tableRenderer or prints emptyMsg when isEmpty.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintSuccess prints a success message, but only in table format: JSON/YAML
// callers already got their answer from the command's structured output.
func PrintSuccess(msg string) {
	format, err := outputFormat()
	if err != nil || format != output.FormatTable {
		return
	}
	output.Success(os.Stdout, msg, !Flags.NoColor)
}

// Context returns a background context; dlogctl commands are short-lived
// and don't need signal-driven cancellation.
func Context() context.Context {
	return context.Background()
}
