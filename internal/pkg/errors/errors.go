// Package errors defines the deployment error taxonomy shared by the registry,
// the runner and the CLI exit-code adapter.
package errors

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Categories. Every specific error below wraps exactly one of these.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrNetwork       = errors.New("network error")
	ErrTransaction   = errors.New("transaction error")
	ErrTimeout       = errors.New("timeout error")
)

// Configuration errors are raised before any network interaction.
var (
	ErrUnknownTarget              = fmt.Errorf("%w: unknown target", ErrConfiguration)
	ErrDuplicateTarget            = fmt.Errorf("%w: duplicate target", ErrConfiguration)
	ErrInvalidTarget              = fmt.Errorf("%w: invalid target", ErrConfiguration)
	ErrInvalidCredentialReference = fmt.Errorf("%w: invalid credential reference", ErrConfiguration)
	ErrArtifactNotFound           = fmt.Errorf("%w: artifact not found", ErrConfiguration)
	ErrAmbiguousArtifact          = fmt.Errorf("%w: ambiguous artifact name", ErrConfiguration)
	ErrNoVerificationService      = fmt.Errorf("%w: target has no verification service", ErrConfiguration)
)

// Network errors.
var (
	ErrConnection      = fmt.Errorf("%w: connection failed", ErrNetwork)
	ErrChainIDMismatch = fmt.Errorf("%w: chain id mismatch", ErrNetwork)
)

// Transaction errors.
var (
	ErrSubmission         = fmt.Errorf("%w: submission rejected", ErrTransaction)
	ErrInvalidArgument    = fmt.Errorf("%w: invalid constructor argument", ErrSubmission)
	ErrReverted           = fmt.Errorf("%w: execution reverted", ErrTransaction)
	ErrVerificationFailed = fmt.Errorf("%w: verification failed", ErrTransaction)
)

// ErrConfirmationTimeout means no receipt arrived within the configured
// bound. The transaction may still be mined later.
var ErrConfirmationTimeout = fmt.Errorf("%w: confirmation timed out", ErrTimeout)

// TxError attaches a broadcast transaction to an error so it can be tracked
// out-of-band after a revert or a timeout.
type TxError struct {
	Hash        common.Hash
	BlockNumber uint64
	Err         error
}

// Error implements the error interface.
func (e *TxError) Error() string {
	if e.BlockNumber > 0 {
		return fmt.Sprintf("tx %s (block %d): %v", e.Hash.Hex(), e.BlockNumber, e.Err)
	}
	return fmt.Sprintf("tx %s: %v", e.Hash.Hex(), e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *TxError) Unwrap() error {
	return e.Err
}

// Exit codes returned by the CLI.
const (
	ExitOK            = 0
	ExitUnknown       = 1
	ExitConfiguration = 2
	ExitNetwork       = 3
	ExitTransaction   = 4
	ExitTimeout       = 5
)

// ExitCode maps an error to the process exit status. A nil error is ExitOK;
// errors outside the taxonomy are ExitUnknown.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrNetwork):
		return ExitNetwork
	case errors.Is(err, ErrTransaction):
		return ExitTransaction
	case errors.Is(err, ErrTimeout):
		return ExitTimeout
	default:
		return ExitUnknown
	}
}
