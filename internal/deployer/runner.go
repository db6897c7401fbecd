package deployer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
	"github.com/apesavax/wAvaxApes/internal/target"
)

// Config controls gas pricing and confirmation waiting.
type Config struct {
	// PollInterval is the delay between receipt polls.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// ConfirmTimeout bounds the wait for a receipt. Zero waits forever.
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	// Confirmations is the number of blocks, including the receipt's own,
	// required before a deployment counts as confirmed.
	Confirmations uint64 `mapstructure:"confirmations" yaml:"confirmations"`
	// MaxPollErrors is how many consecutive failed polls are tolerated.
	MaxPollErrors int `mapstructure:"max_poll_errors" yaml:"max_poll_errors"`

	// GasPriceBoostPercent is added on top of the node's suggested price.
	GasPriceBoostPercent uint64 `mapstructure:"gas_price_boost_percent" yaml:"gas_price_boost_percent"`
	// MinGasPriceWei is a floor for the gas price. Zero disables it.
	MinGasPriceWei uint64 `mapstructure:"min_gas_price_wei" yaml:"min_gas_price_wei"`
	// GasLimitBufferPercent is added on top of the node's gas estimate.
	GasLimitBufferPercent uint64 `mapstructure:"gas_limit_buffer_percent" yaml:"gas_limit_buffer_percent"`
	// GasLimit skips estimation when non-zero.
	GasLimit uint64 `mapstructure:"gas_limit" yaml:"gas_limit"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PollInterval:          2 * time.Second,
		ConfirmTimeout:        5 * time.Minute,
		Confirmations:         1,
		MaxPollErrors:         5,
		GasPriceBoostPercent:  20,
		GasLimitBufferPercent: 20,
	}
}

// ApplyDefaults fills fields whose zero value is not meaningful. A zero
// ConfirmTimeout is left alone.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Confirmations == 0 {
		c.Confirmations = d.Confirmations
	}
	if c.MaxPollErrors <= 0 {
		c.MaxPollErrors = d.MaxPollErrors
	}
	if c.ConfirmTimeout < 0 {
		c.ConfirmTimeout = 0
	}
}

// Request is a single deployment to perform.
type Request struct {
	Contract string
	// Target is the registry name. Empty selects the registry default.
	Target string
	// Args are constructor arguments in textual form.
	Args []string
	// Value is sent with the creation transaction. Nil means zero.
	Value *big.Int
}

// Result describes a confirmed deployment.
type Result struct {
	Contract     string         `json:"contract"`
	Target       string         `json:"target"`
	Address      common.Address `json:"address"`
	TxHash       common.Hash    `json:"txHash"`
	ChainID      int64          `json:"chainId"`
	BlockNumber  uint64         `json:"blockNumber"`
	GasUsed      uint64         `json:"gasUsed"`
	Deployer     common.Address `json:"deployer"`
	BytecodeHash string         `json:"bytecodeHash"`
}

// Runner executes deployments. It keeps no per-deployment state, so one
// Runner may serve several Deploy calls.
type Runner struct {
	registry  *target.Registry
	artifacts ArtifactLoader
	signers   SignerResolver
	clients   ClientFactory
	config    Config
	clock     clockwork.Clock
	logger    *slog.Logger
	recorder  Recorder
	progress  ProgressFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the real clock, e.g. with clockwork.NewFakeClock().
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRecorder sets where deployment metrics go.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithProgress registers a stage transition callback.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// NewRunner creates a Runner.
func NewRunner(
	registry *target.Registry,
	artifacts ArtifactLoader,
	signers SignerResolver,
	clients ClientFactory,
	config Config,
	opts ...Option,
) *Runner {
	config.ApplyDefaults()
	r := &Runner{
		registry:  registry,
		artifacts: artifacts,
		signers:   signers,
		clients:   clients,
		config:    config,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	return r
}

// Deploy performs req once. Every call fetches a fresh nonce, so repeating a
// request creates another contract.
//
// Configuration problems (unknown target, bad credential, missing artifact,
// malformed arguments) are reported before any network call. Cancelling ctx
// while waiting for confirmation stops the wait but not the transaction.
func (r *Runner) Deploy(ctx context.Context, req Request) (result *Result, err error) {
	start := r.clock.Now()
	targetName := req.Target
	logger := r.logger.With(slog.String("contract", req.Contract))

	defer func() {
		stage := outcome(err)
		r.recorder.ObserveDeployment(targetName, req.Contract, stage.String(), r.clock.Since(start).Seconds())
		if err != nil {
			logger.Error("deployment failed", slog.String("stage", stage.String()), slog.String("error", err.Error()))
			r.report(stage, err.Error())
			return
		}
		r.report(stage, fmt.Sprintf("%s deployed to %s", result.Contract, result.Address.Hex()))
	}()

	r.report(StagePendingResolution, "resolving target "+req.Target)

	t, err := r.registry.Resolve(req.Target)
	if err != nil {
		return nil, err
	}
	targetName = t.Name
	logger = logger.With(slog.String("target", t.Name))

	ref, err := t.CredentialRef()
	if err != nil {
		return nil, err
	}
	txSigner, err := r.signers.Resolve(ref, t.ChainID)
	if err != nil {
		return nil, err
	}

	contract, err := r.artifacts.Load(req.Contract)
	if err != nil {
		return nil, err
	}
	data, err := contract.EncodeDeployment(req.Args)
	if err != nil {
		return nil, err
	}
	bytecodeHash, err := contract.BytecodeHash()
	if err != nil {
		return nil, err
	}

	client, err := r.connect(ctx, t)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	r.report(StageConnected, "connected to "+t.Endpoint())
	logger.Info("connected", slog.String("rpc", t.Endpoint()), slog.Int64("chainId", t.ChainID))

	from := txSigner.Address()
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	tx, err := r.buildTx(ctx, client, from, value, data)
	if err != nil {
		return nil, err
	}

	signedTx, err := txSigner.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSubmission, err)
	}
	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("%w: send transaction: %v", apperrors.ErrSubmission, err)
	}

	txHash := signedTx.Hash()
	r.report(StageSubmitted, "transaction "+txHash.Hex())
	logger.Info("transaction sent",
		slog.String("txHash", txHash.Hex()),
		slog.String("deployer", from.Hex()),
		slog.Uint64("nonce", signedTx.Nonce()),
		slog.Uint64("gas", signedTx.Gas()),
		slog.String("gasPrice", signedTx.GasPrice().String()),
	)

	p := r.newPoller(t.Name, txHash)
	receipt, err := p.waitForReceipt(ctx, client)
	if err != nil {
		return nil, err
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &apperrors.TxError{Hash: txHash, BlockNumber: block, Err: apperrors.ErrReverted}
	}
	if r.config.Confirmations > 1 {
		if err := p.waitForConfirmations(ctx, client, block, r.config.Confirmations); err != nil {
			return nil, err
		}
	}

	address := receipt.ContractAddress
	if address == (common.Address{}) {
		address = crypto.CreateAddress(from, signedTx.Nonce())
	}

	logger.Info("contract deployed",
		slog.String("contractAddress", address.Hex()),
		slog.Uint64("gasUsed", receipt.GasUsed),
		slog.String("txHash", txHash.Hex()),
	)

	return &Result{
		Contract:     req.Contract,
		Target:       t.Name,
		Address:      address,
		TxHash:       txHash,
		ChainID:      t.ChainID,
		BlockNumber:  block,
		GasUsed:      receipt.GasUsed,
		Deployer:     from,
		BytecodeHash: bytecodeHash,
	}, nil
}

// connect dials the target and checks it serves the expected chain.
func (r *Runner) connect(ctx context.Context, t target.Target) (Client, error) {
	client, err := r.clients.Dial(ctx, t.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", apperrors.ErrConnection, t.Endpoint(), err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrConnection, t.Endpoint(), err)
	}
	if chainID.Cmp(big.NewInt(t.ChainID)) != 0 {
		client.Close()
		return nil, fmt.Errorf("%w: target %q expects %d, %s reports %s",
			apperrors.ErrChainIDMismatch, t.Name, t.ChainID, t.Endpoint(), chainID)
	}
	return client, nil
}

// buildTx prices and sizes an unsigned legacy contract creation transaction.
func (r *Runner) buildTx(ctx context.Context, client Client, from common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: get nonce: %v", apperrors.ErrConnection, err)
	}

	suggested, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get gas price: %v", apperrors.ErrConnection, err)
	}
	gasPrice := addPercent(suggested, r.config.GasPriceBoostPercent)
	if floor := new(big.Int).SetUint64(r.config.MinGasPriceWei); gasPrice.Cmp(floor) < 0 {
		gasPrice = floor
	}

	gas := r.config.GasLimit
	if gas == 0 {
		estimated, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From:     from,
			To:       nil,
			GasPrice: gasPrice,
			Value:    value,
			Data:     data,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: estimate gas: %v", apperrors.ErrSubmission, err)
		}
		gas = addPercent(new(big.Int).SetUint64(estimated), r.config.GasLimitBufferPercent).Uint64()
	}

	balance, err := client.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: get balance: %v", apperrors.ErrConnection, err)
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))
	cost.Add(cost, value)
	if balance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: %s holds %s wei, deployment needs up to %s wei",
			apperrors.ErrSubmission, from.Hex(), balance, cost)
	}

	return types.NewContractCreation(nonce, value, gas, gasPrice, data), nil
}

func (r *Runner) report(stage Stage, message string) {
	if r.progress != nil {
		r.progress(stage, message)
	}
}

// addPercent returns v * (100 + pct) / 100.
func addPercent(v *big.Int, pct uint64) *big.Int {
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(100+pct))
	return out.Div(out, big.NewInt(100))
}
