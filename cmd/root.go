package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/apesavax/wAvaxApes/internal/config"
	"github.com/apesavax/wAvaxApes/internal/deployer"
	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
	"github.com/apesavax/wAvaxApes/internal/target"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Global flags
	cfgFile    string
	targetName string
	jsonOut    bool
	logLevel   string
	logFormat  string

	// Loaded in PersistentPreRunE.
	cfg    *config.Config
	logger *slog.Logger

	// clientFactory dials RPC endpoints. Tests replace it.
	clientFactory deployer.ClientFactory = deployer.NewEthClientFactory()
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "apesctl",
	Short: "Deploy and verify the wAvaxApes contracts",
	Long: `apesctl deploys compiled Hardhat artifacts to Avalanche C-Chain targets
and verifies their source on Etherscan-compatible explorers.

Configuration (in order of priority):
  1. Command-line flags (--target, --log-level, ...)
  2. Environment variables (APESCTL_DEFAULT_TARGET, APESCTL_TARGETS_FUJI_RPC_URL, ...)
  3. Config file (./apesctl.yaml, ./config/apesctl.yaml, ~/.config/apesctl/apesctl.yaml)

Private keys are never part of the configuration. Targets name where to find
them, e.g. "env:PRIVATE_KEY", and .env files are consulted for unset variables.

Get started:
  $ apesctl config init            # Write apesctl.yaml with the default targets
  $ apesctl artifacts              # List compiled contracts
  $ apesctl deploy wAvaxApes       # Deploy to the default target
  $ apesctl verify wAvaxApes       # Verify the last deployment`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(stderr, err)
		return apperrors.ExitCode(err)
	}
	return apperrors.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./apesctl.yaml, ./config, ~/.config/apesctl)")
	rootCmd.PersistentFlags().StringVarP(&targetName, "target", "t", "", "deployment target (default from config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json (default from config)")
}

// initConfig loads the configuration and sets up logging.
func initConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}

	l, err := newLogger(cmd.ErrOrStderr(), c.Log)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	slog.SetDefault(l)

	if c.File != "" {
		logger.Debug("config loaded", slog.String("file", c.File))
	}
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	if lc.Level != "" && level.UnmarshalText([]byte(lc.Level)) != nil {
		return nil, fmt.Errorf("%w: log level %q", apperrors.ErrConfiguration, lc.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(lc.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log format %q (want text or json)", apperrors.ErrConfiguration, lc.Format)
	}
}

// registry builds the target registry from the loaded config.
func registry() (*target.Registry, error) {
	return cfg.Registry()
}

// Output helpers

// printJSON outputs data as formatted JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints an error message, with the transaction hash on its own
// line when there is one.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", colorRed("Error:"), err.Error())
	var txErr *apperrors.TxError
	if errors.As(err, &txErr) {
		fmt.Fprintf(w, "  Transaction: %s\n", txErr.Hash.Hex())
		if txErr.BlockNumber > 0 {
			fmt.Fprintf(w, "  Block: %d\n", txErr.BlockNumber)
		}
	}
}

// newTable creates a new tabwriter for formatted output.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printTableHeader prints a bold header row.
func printTableHeader(w *tabwriter.Writer, columns ...string) {
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, colorBold(col))
	}
	fmt.Fprintln(w)
}

// Terminal colors

func colorRed(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

func colorGreen(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func colorYellow(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func colorBold(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
