package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestSpecificErrorsWrapOneCategory(t *testing.T) {
	categories := []error{ErrConfiguration, ErrNetwork, ErrTransaction, ErrTimeout}

	tests := []struct {
		err      error
		category error
	}{
		{ErrUnknownTarget, ErrConfiguration},
		{ErrDuplicateTarget, ErrConfiguration},
		{ErrInvalidTarget, ErrConfiguration},
		{ErrInvalidCredentialReference, ErrConfiguration},
		{ErrArtifactNotFound, ErrConfiguration},
		{ErrAmbiguousArtifact, ErrConfiguration},
		{ErrNoVerificationService, ErrConfiguration},
		{ErrConnection, ErrNetwork},
		{ErrChainIDMismatch, ErrNetwork},
		{ErrSubmission, ErrTransaction},
		{ErrInvalidArgument, ErrTransaction},
		{ErrReverted, ErrTransaction},
		{ErrVerificationFailed, ErrTransaction},
		{ErrConfirmationTimeout, ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			for _, c := range categories {
				assert.Equal(t, c == tt.category, errors.Is(tt.err, c), "category %v", c)
			}
		})
	}
}

func TestTxError(t *testing.T) {
	hash := common.HexToHash("0x01")

	err := fmt.Errorf("deploy: %w", &TxError{Hash: hash, BlockNumber: 7, Err: ErrReverted})
	assert.ErrorIs(t, err, ErrReverted)
	assert.ErrorIs(t, err, ErrTransaction)
	assert.NotErrorIs(t, err, ErrTimeout)

	var txErr *TxError
	if assert.ErrorAs(t, err, &txErr) {
		assert.Equal(t, hash, txErr.Hash)
	}
	assert.Contains(t, err.Error(), "block 7")

	pending := &TxError{Hash: hash, Err: ErrConfirmationTimeout}
	assert.NotContains(t, pending.Error(), "block")
	assert.ErrorIs(t, pending, ErrTimeout)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"unknown target", fmt.Errorf("%w: %q", ErrUnknownTarget, "x"), ExitConfiguration},
		{"connection", fmt.Errorf("dial: %w", ErrConnection), ExitNetwork},
		{"revert", &TxError{Err: ErrReverted}, ExitTransaction},
		{"timeout", &TxError{Err: ErrConfirmationTimeout}, ExitTimeout},
		{"other", errors.New("boom"), ExitUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
