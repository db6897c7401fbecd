package deployer

import (
	"errors"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// Stage is a step of a single deployment.
type Stage string

const (
	// StagePendingResolution is the initial stage: target and credential are
	// being resolved.
	StagePendingResolution Stage = "pending_resolution"
	// StageConnected means the endpoint answered with the expected chain id.
	StageConnected Stage = "connected"
	// StageSubmitted means the creation transaction was accepted by the node.
	StageSubmitted Stage = "submitted"
	// StageConfirmed is terminal: the contract exists.
	StageConfirmed Stage = "confirmed"
	// StageReverted is terminal: the transaction was mined with status 0.
	StageReverted Stage = "reverted"
	// StageTimedOut is terminal: no receipt within the confirmation timeout.
	StageTimedOut Stage = "timed_out"
	// StageFailed is terminal for every other error.
	StageFailed Stage = "failed"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Terminal reports whether no further transition can follow s.
func (s Stage) Terminal() bool {
	switch s {
	case StageConfirmed, StageReverted, StageTimedOut, StageFailed:
		return true
	}
	return false
}

// outcome maps a deployment error to its terminal stage.
func outcome(err error) Stage {
	switch {
	case err == nil:
		return StageConfirmed
	case errors.Is(err, apperrors.ErrReverted):
		return StageReverted
	case errors.Is(err, apperrors.ErrConfirmationTimeout):
		return StageTimedOut
	default:
		return StageFailed
	}
}

// ProgressFunc is called on every stage transition.
type ProgressFunc func(stage Stage, message string)
