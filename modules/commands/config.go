package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"focustrack/modules/platform/config"
)

var (
	initForce  bool
	initSecret bool
)

// configCmd groups the config file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.GetGlobal()
		if cfg.Auth.Secret != "" {
			cfg.Auth.Secret = "********"
		}
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader(config.GetGlobalPath())
		if loader.Exists() && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", loader.GetPath())
		}

		cfg := config.DefaultConfig()
		if initSecret {
			secret, err := generateSecret()
			if err != nil {
				return err
			}
			cfg.Auth.Secret = secret
		}

		if err := loader.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", loader.GetPath())
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path in use",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.GetGlobalPath())
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
	configInitCmd.Flags().BoolVar(&initSecret, "secret", false, "Generate a JWT secret to protect the HTTP surface")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
