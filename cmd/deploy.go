package cmd

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/apesavax/wAvaxApes/internal/artifact"
	"github.com/apesavax/wAvaxApes/internal/config"
	"github.com/apesavax/wAvaxApes/internal/deployer"
	"github.com/apesavax/wAvaxApes/internal/journal"
	"github.com/apesavax/wAvaxApes/internal/metrics"
	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
	"github.com/apesavax/wAvaxApes/internal/signer"
)

var deployValue string

var deployCmd = &cobra.Command{
	Use:   "deploy <contract> [constructor-args...]",
	Short: "Deploy a compiled contract to a target",
	Long: `Deploy a compiled contract to the selected target and wait for the
transaction to be confirmed.

The contract is looked up in the artifacts directory by name, or by fully
qualified name ("contracts/wAvaxApes.sol:wAvaxApes") when the name is
ambiguous. Constructor arguments are given in ABI order; pass "--" before
arguments that start with a dash.

Running deploy twice creates two contracts. Successful deployments are
recorded in the journal directory.

Examples:
  # Deploy to the default target
  apesctl deploy wAvaxApes

  # Deploy to Fuji with constructor arguments
  apesctl deploy DikDiks "DikDiks" DIK 10_000 --target fuji

  # Send value with the creation transaction
  apesctl deploy Vault --value 1000000000000000000`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployValue, "value", "", "wei to send with the creation transaction")
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	value, err := parseWei(deployValue)
	if err != nil {
		return err
	}

	reg, err := registry()
	if err != nil {
		return err
	}
	env, err := config.LoadEnvFile(cfg.EnvFile)
	if err != nil {
		return err
	}
	if env.Len() > 0 {
		logger.Debug("env file loaded", slog.String("file", cfg.EnvFile), slog.Int("vars", env.Len()))
	}

	m := metrics.New()
	defer flushMetrics(m)

	runner := deployer.NewRunner(
		reg,
		artifact.NewStore(cfg.ArtifactsDir),
		signer.NewResolver(env.Lookup),
		clientFactory,
		cfg.Deploy,
		deployer.WithLogger(logger),
		deployer.WithRecorder(m),
		deployer.WithProgress(func(stage deployer.Stage, message string) {
			if jsonOut || stage.Terminal() {
				return
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", colorYellow("["+stage.String()+"]"), message)
		}),
	)

	result, err := runner.Deploy(ctx, deployer.Request{
		Contract: args[0],
		Target:   targetName,
		Args:     args[1:],
		Value:    value,
	})
	if err != nil {
		return err
	}

	rec, err := recordDeployment(journal.Record{Result: *result, Args: args[1:]})
	if err != nil {
		// Not fatal, the contract is already on chain.
		logger.Warn("deployment not recorded", slog.String("error", err.Error()))
	}

	if jsonOut {
		return printJSON(out, rec)
	}
	fmt.Fprintf(out, "%s deployed to %s\n", result.Contract, result.Address.Hex())
	return nil
}

func recordDeployment(rec journal.Record) (journal.Record, error) {
	j, err := journal.Open(cfg.JournalDir)
	if err != nil {
		return rec, err
	}
	stored, err := j.Append(rec)
	if err != nil {
		return rec, err
	}
	return stored, nil
}

// parseWei parses a decimal or 0x-prefixed amount. Empty means zero.
func parseWei(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: --value %q is not a non-negative integer", apperrors.ErrConfiguration, s)
	}
	return v, nil
}

// flushMetrics writes the textfile when metrics_file is configured.
func flushMetrics(m *metrics.Metrics) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn("metrics not written", slog.String("error", err.Error()))
	}
}
