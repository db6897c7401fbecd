package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/apesavax/wAvaxApes/internal/config"
	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

var (
	configInitPath  string
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default targets",
	Long: `Write the built-in defaults (snowtrace, lore and fuji targets, solidity
profile, confirmation policy) to a YAML file for editing.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.File == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No config file found, using defaults.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.File)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configInitPath, "output", "o", "apesctl.yaml", "file to write")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(configInitPath); err == nil && !configInitForce {
		return fmt.Errorf("%w: %s already exists (use --force to overwrite)", apperrors.ErrConfiguration, configInitPath)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	data, err := yaml.Marshal(config.DefaultSettings())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if dir := filepath.Dir(configInitPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(configInitPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Config written to %s\n", colorGreen("✓"), configInitPath)
	return nil
}
