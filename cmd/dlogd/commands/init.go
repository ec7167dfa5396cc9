package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlogio/dlog/pkg/adminapi"
	"github.com/dlogio/dlog/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default dlogd configuration file.

By default the file is created at $XDG_CONFIG_HOME/dlog/config.yaml. Use
--config to write it somewhere else.

Examples:
  dlogd init
  dlogd init --config /etc/dlog/config.yaml
  dlogd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := config.GetDefaultConfig()
	secret, err := randomJWTSecret()
	if err != nil {
		return fmt.Errorf("generate JWT secret: %w", err)
	}
	cfg.AdminAPI.JWT.Secret = secret

	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Configuration file written to: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to select backends and tune stream settings")
	fmt.Println("  2. Start the server with: dlogd start")
	fmt.Printf("  3. Or specify a custom config: dlogd start --config %s\n", path)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random admin API JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and supply it via environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", adminapi.EnvJWTSecret)
	return nil
}

// randomJWTSecret generates a 32-byte secret, hex-encoded, satisfying
// adminapi.JWTConfig's minimum length.
func randomJWTSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
