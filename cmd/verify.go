package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/apesavax/wAvaxApes/internal/artifact"
	"github.com/apesavax/wAvaxApes/internal/journal"
	"github.com/apesavax/wAvaxApes/internal/metrics"
	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
	"github.com/apesavax/wAvaxApes/internal/verify"
)

var verifyAddress string

var verifyCmd = &cobra.Command{
	Use:   "verify <contract> [constructor-args...]",
	Short: "Verify a deployed contract's source on the target's explorer",
	Long: `Submit the contract's standard JSON input to the explorer registered for
the target and wait for the result.

Without --address the most recent journal entry for the contract on the
target supplies the address and constructor arguments. With --address the
constructor arguments are taken from the command line.

Examples:
  # Verify the last wAvaxApes deployment on the default target
  apesctl verify wAvaxApes

  # Verify a contract deployed elsewhere
  apesctl verify DikDiks "DikDiks" DIK 10000 --address 0x5FbDB2315678afecb367f032d93F642f64180aa3 --target lore`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyAddress, "address", "", "contract address (default from the journal)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	contract := args[0]

	reg, err := registry()
	if err != nil {
		return err
	}
	t, err := reg.Resolve(targetName)
	if err != nil {
		return err
	}

	m := metrics.New()
	defer flushMetrics(m)

	client, err := verify.NewClient(t.Verification, verify.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}

	var (
		rec      journal.Record
		j        *journal.Journal
		address  common.Address
		ctorArgs = args[1:]
	)
	if verifyAddress != "" {
		if !common.IsHexAddress(verifyAddress) {
			return fmt.Errorf("%w: --address %q is not an address", apperrors.ErrConfiguration, verifyAddress)
		}
		address = common.HexToAddress(verifyAddress)
	} else {
		if len(ctorArgs) > 0 {
			return fmt.Errorf("%w: constructor arguments require --address", apperrors.ErrConfiguration)
		}
		if j, err = journal.Open(cfg.JournalDir); err != nil {
			return err
		}
		if rec, err = j.Latest(t.Name, contract); err != nil {
			return err
		}
		address, ctorArgs = rec.Address, rec.Args
	}

	store := artifact.NewStore(cfg.ArtifactsDir)
	a, err := store.Load(contract)
	if err != nil {
		return err
	}
	bi, err := store.BuildInfo(a)
	if err != nil {
		return err
	}
	if err := bi.CheckCompiler(cfg.Solidity); err != nil {
		logger.Warn("verifying with the artifact's own compiler settings", slog.String("reason", err.Error()))
	}
	encoded, err := a.EncodeConstructorArgs(ctorArgs)
	if err != nil {
		return err
	}

	logger.Info("verifying",
		slog.String("contract", a.FullyQualifiedName()),
		slog.String("address", address.Hex()),
		slog.String("service", client.Service()),
	)
	res, err := client.Verify(ctx, verify.NewRequest(a, bi, address, encoded))
	outcome := string(res.State)
	if err != nil && outcome == "" {
		outcome = "error"
	}
	m.ObserveVerification(client.Service(), outcome)
	if err != nil {
		return err
	}

	if j != nil && res.URL != "" {
		if err := j.MarkVerified(t.Name, rec.ID, res.URL); err != nil && !errors.Is(err, journal.ErrNotFound) {
			logger.Warn("journal not updated", slog.String("error", err.Error()))
		}
	}

	if jsonOut {
		return printJSON(out, res)
	}
	switch res.State {
	case verify.StateAlreadyVerified:
		fmt.Fprintf(out, "%s at %s is already verified\n", contract, address.Hex())
	default:
		fmt.Fprintf(out, "%s %s\n", colorGreen("Verified"), contract)
	}
	if res.URL != "" {
		fmt.Fprintf(out, "  %s\n", res.URL)
	}
	return nil
}
