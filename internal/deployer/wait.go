package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// poller waits for one transaction. The deadline is shared by the receipt
// and confirmation phases.
type poller struct {
	clock     clockwork.Clock
	interval  time.Duration
	deadline  time.Time
	maxErrors int
	failures  int
	target    string
	hash      common.Hash
	logger    *slog.Logger
	recorder  Recorder
}

func (r *Runner) newPoller(targetName string, hash common.Hash) *poller {
	p := &poller{
		clock:     r.clock,
		interval:  r.config.PollInterval,
		maxErrors: r.config.MaxPollErrors,
		target:    targetName,
		hash:      hash,
		logger:    r.logger,
		recorder:  r.recorder,
	}
	if r.config.ConfirmTimeout > 0 {
		p.deadline = r.clock.Now().Add(r.config.ConfirmTimeout)
	}
	return p
}

// waitForReceipt polls until the transaction is mined. ethereum.NotFound is
// the normal pending answer; other errors count towards maxErrors.
func (p *poller) waitForReceipt(ctx context.Context, client Client) (*types.Receipt, error) {
	for {
		p.recorder.IncConfirmationPolls(p.target)
		callCtx, cancel := p.callContext(ctx)
		receipt, err := client.TransactionReceipt(callCtx, p.hash)
		expired := p.expired(ctx, callCtx)
		cancel()
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case expired:
			return nil, p.timeout()
		case err == nil || errors.Is(err, ethereum.NotFound):
			p.failures = 0
		default:
			if ferr := p.fail(ctx, "receipt", err); ferr != nil {
				return nil, ferr
			}
		}
		if err := p.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

// waitForConfirmations polls the chain head until block has the requested
// number of confirmations, counting block itself as the first.
func (p *poller) waitForConfirmations(ctx context.Context, client Client, block, confirmations uint64) error {
	want := block + confirmations - 1
	for {
		callCtx, cancel := p.callContext(ctx)
		head, err := client.BlockNumber(callCtx)
		expired := p.expired(ctx, callCtx)
		cancel()
		if err != nil && expired {
			return p.timeout()
		}
		if err == nil {
			p.failures = 0
			if head >= want {
				return nil
			}
			p.logger.Debug("waiting for confirmations",
				slog.String("txHash", p.hash.Hex()),
				slog.Uint64("head", head),
				slog.Uint64("want", want),
			)
		} else if ferr := p.fail(ctx, "block number", err); ferr != nil {
			return ferr
		}
		if err := p.sleep(ctx); err != nil {
			return err
		}
	}
}

// callContext bounds a single RPC call by what is left of the deadline.
func (p *poller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.deadline.IsZero() {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.deadline.Sub(p.clock.Now()))
}

// expired reports whether callCtx ran out on the poller's deadline rather
// than the caller's.
func (p *poller) expired(ctx, callCtx context.Context) bool {
	return ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)
}

func (p *poller) timeout() error {
	return &apperrors.TxError{Hash: p.hash, Err: apperrors.ErrConfirmationTimeout}
}

// fail records a failed poll and returns an error once too many happened in
// a row.
func (p *poller) fail(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return &apperrors.TxError{Hash: p.hash, Err: ctx.Err()}
	}
	p.failures++
	p.logger.Warn("poll failed",
		slog.String("what", what),
		slog.String("txHash", p.hash.Hex()),
		slog.Int("consecutive", p.failures),
		slog.String("error", err.Error()),
	)
	if p.failures >= p.maxErrors {
		return &apperrors.TxError{
			Hash: p.hash,
			Err:  fmt.Errorf("%w: %s poll failed %d times in a row: %v", apperrors.ErrConnection, what, p.failures, err),
		}
	}
	return nil
}

// sleep waits one poll interval, or fails if the deadline has passed.
func (p *poller) sleep(ctx context.Context) error {
	if !p.deadline.IsZero() && !p.clock.Now().Before(p.deadline) {
		return p.timeout()
	}
	select {
	case <-ctx.Done():
		return &apperrors.TxError{Hash: p.hash, Err: ctx.Err()}
	case <-p.clock.After(p.interval):
		return nil
	}
}
