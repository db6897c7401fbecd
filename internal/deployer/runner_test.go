package deployer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/apesavax/wAvaxApes/internal/artifact"
	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
	"github.com/apesavax/wAvaxApes/internal/signer"
	"github.com/apesavax/wAvaxApes/internal/target"
)

const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	fujiChainID = 43113
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock

	mu     sync.Mutex
	sent   []*types.Transaction
	closed int
}

func (m *MockClient) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	args := m.Called(ctx, account, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	if fn, ok := args.Get(0).(func() uint64); ok {
		return fn(), args.Error(1)
	}
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	args := m.Called(ctx, tx)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.sent = append(m.sent, tx)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	if fn, ok := args.Get(0).(func(common.Hash) (*types.Receipt, error)); ok {
		return fn(txHash)
	}
	if fn, ok := args.Get(0).(func(context.Context) (*types.Receipt, error)); ok {
		return fn(ctx)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}

func (m *MockClient) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockClient) Close() {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
}

func (m *MockClient) sentTx(hash common.Hash) *types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.sent {
		if tx.Hash() == hash {
			return tx
		}
	}
	return nil
}

// minedReceipt answers with a successful receipt for any transaction the
// mock has accepted, addressed the way the EVM derives creation addresses.
func (m *MockClient) minedReceipt(status uint64) func(common.Hash) (*types.Receipt, error) {
	return func(h common.Hash) (*types.Receipt, error) {
		tx := m.sentTx(h)
		if tx == nil {
			return nil, ethereum.NotFound
		}
		return &types.Receipt{
			Status:          status,
			TxHash:          h,
			ContractAddress: crypto.CreateAddress(common.HexToAddress(testAddress), tx.Nonce()),
			BlockNumber:     big.NewInt(100),
			GasUsed:         90_000,
		}, nil
	}
}

// MockClientFactory implements ClientFactory for testing.
type MockClientFactory struct {
	client *MockClient
	err    error
	dials  int
}

func (f *MockClientFactory) Dial(ctx context.Context, rpcURL string) (Client, error) {
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeArtifacts map[string]*artifact.ContractArtifact

func (f fakeArtifacts) Load(name string) (*artifact.ContractArtifact, error) {
	a, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrArtifactNotFound, name)
	}
	return a, nil
}

type fakeRecorder struct {
	outcomes []string
	polls    int
}

func (r *fakeRecorder) ObserveDeployment(_, _, outcome string, _ float64) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) IncConfirmationPolls(string) { r.polls++ }

func newTestArtifacts(t *testing.T) fakeArtifacts {
	t.Helper()
	var apes, dikdiks artifact.ContractArtifact
	require.NoError(t, json.Unmarshal([]byte(`{
		"contractName":"wAvaxApes","sourceName":"contracts/wAvaxApes.sol",
		"abi":[],"bytecode":"0x6080604052"}`), &apes))
	require.NoError(t, json.Unmarshal([]byte(`{
		"contractName":"DikDiks","sourceName":"contracts/DikDiks.sol",
		"abi":[{"type":"constructor","inputs":[{"name":"apes","type":"address"}]}],
		"bytecode":"0x6080604053"}`), &dikdiks))
	return fakeArtifacts{"wAvaxApes": &apes, "DikDiks": &dikdiks}
}

func newTestRegistry(t *testing.T) *target.Registry {
	t.Helper()
	reg, err := target.NewRegistry(
		target.Target{
			Name:       "fuji",
			RPCURL:     "https://api.avax-test.network/ext/bc/C/rpc",
			ChainID:    fujiChainID,
			Credential: "env:PRIVATE_KEY",
		},
		target.Target{
			Name:       "keyless",
			RPCURL:     "https://api.avax-test.network/ext/bc/C/rpc",
			ChainID:    fujiChainID,
			Credential: "env:UNSET_KEY",
		},
	)
	require.NoError(t, err)
	reg, err = reg.WithDefault("fuji")
	require.NoError(t, err)
	return reg
}

// newHealthyClient expects a full successful deployment flow.
func newHealthyClient() *MockClient {
	client := &MockClient{}
	var nonce uint64 = 7
	var mu sync.Mutex
	client.On("ChainID", mock.Anything).Return(big.NewInt(fujiChainID), nil)
	client.On("PendingNonceAt", mock.Anything, common.HexToAddress(testAddress)).Return(func() uint64 {
		mu.Lock()
		defer mu.Unlock()
		n := nonce
		nonce++
		return n
	}, nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(25_000_000_000), nil)
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(100_000), nil)
	client.On("BalanceAt", mock.Anything, common.HexToAddress(testAddress), (*big.Int)(nil)).Return(big.NewInt(1e18), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	return client
}

type testEnv struct {
	client   *MockClient
	factory  *MockClientFactory
	recorder *fakeRecorder
	stages   []Stage
	runner   *Runner
}

func newTestEnv(t *testing.T, client *MockClient, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		client:   client,
		factory:  &MockClientFactory{client: client},
		recorder: &fakeRecorder{},
	}
	lookup := func(key string) (string, bool) {
		if key == "PRIVATE_KEY" {
			return testKey, true
		}
		return "", false
	}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRecorder(env.recorder),
		WithProgress(func(s Stage, _ string) { env.stages = append(env.stages, s) }),
	}, opts...)
	env.runner = NewRunner(newTestRegistry(t), newTestArtifacts(t), signer.NewResolver(lookup), env.factory, cfg, opts...)
	return env
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.ConfirmTimeout = 5 * time.Second
	return cfg
}

func TestDeploy_Success(t *testing.T) {
	client := newHealthyClient()
	calls := 0
	mined := client.minedReceipt(types.ReceiptStatusSuccessful)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(func(h common.Hash) (*types.Receipt, error) {
		calls++
		if calls < 3 {
			return nil, ethereum.NotFound
		}
		return mined(h)
	}, nil)

	env := newTestEnv(t, client, fastConfig())
	res, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	require.NoError(t, err)

	from := common.HexToAddress(testAddress)
	assert.Equal(t, "wAvaxApes", res.Contract)
	assert.Equal(t, "fuji", res.Target)
	assert.Equal(t, crypto.CreateAddress(from, 7), res.Address)
	assert.Equal(t, from, res.Deployer)
	assert.Equal(t, int64(fujiChainID), res.ChainID)
	assert.Equal(t, uint64(100), res.BlockNumber)
	assert.Equal(t, uint64(90_000), res.GasUsed)
	assert.NotEmpty(t, res.BytecodeHash)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, env.recorder.polls)

	assert.Equal(t, []Stage{StagePendingResolution, StageConnected, StageSubmitted, StageConfirmed}, env.stages)
	assert.Equal(t, []string{"confirmed"}, env.recorder.outcomes)
	assert.Equal(t, 1, client.closed)

	tx := client.sentTx(res.TxHash)
	require.NotNil(t, tx)
	assert.Nil(t, tx.To())
	assert.Equal(t, big.NewInt(30_000_000_000), tx.GasPrice(), "20% over the suggested price")
	assert.Equal(t, uint64(120_000), tx.Gas(), "20% over the estimate")
	assert.Equal(t, big.NewInt(fujiChainID), tx.ChainId())
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(fujiChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)
}

func TestDeploy_DefaultTargetAndArgs(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(client.minedReceipt(types.ReceiptStatusSuccessful), nil)

	env := newTestEnv(t, client, fastConfig())
	apes := "0x00000000000000000000000000000000000000aa"
	res, err := env.runner.Deploy(context.Background(), Request{
		Contract: "DikDiks",
		Args:     []string{apes},
		Value:    big.NewInt(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "fuji", res.Target)

	tx := client.sentTx(res.TxHash)
	require.NotNil(t, tx)
	assert.Equal(t, big.NewInt(5), tx.Value())
	data := tx.Data()
	require.Len(t, data, 5+32)
	assert.Equal(t, common.HexToAddress(apes).Bytes(), data[5+12:])
}

func TestDeploy_NotIdempotent(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(client.minedReceipt(types.ReceiptStatusSuccessful), nil)

	env := newTestEnv(t, client, fastConfig())
	req := Request{Contract: "wAvaxApes", Target: "fuji"}

	first, err := env.runner.Deploy(context.Background(), req)
	require.NoError(t, err)
	second, err := env.runner.Deploy(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Address, second.Address)
	assert.NotEqual(t, first.TxHash, second.TxHash)
	assert.Equal(t, 2, env.factory.dials)
}

func TestDeploy_ConfigurationErrorsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"unknown target", Request{Contract: "wAvaxApes", Target: "mainnet-typo"}, apperrors.ErrUnknownTarget},
		{"missing credential", Request{Contract: "wAvaxApes", Target: "keyless"}, apperrors.ErrInvalidCredentialReference},
		{"unknown contract", Request{Contract: "Nope", Target: "fuji"}, apperrors.ErrArtifactNotFound},
		{"bad arguments", Request{Contract: "DikDiks", Target: "fuji", Args: []string{"not-an-address"}}, apperrors.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockClient{}
			env := newTestEnv(t, client, fastConfig())

			res, err := env.runner.Deploy(context.Background(), tt.req)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, env.factory.dials)
			client.AssertExpectations(t)
			assert.Equal(t, []Stage{StagePendingResolution, StageFailed}, env.stages)
		})
	}
}

func TestDeploy_DialFailure(t *testing.T) {
	client := &MockClient{}
	env := newTestEnv(t, client, fastConfig())
	env.factory.err = errors.New("no such host")

	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.ErrorIs(t, err, apperrors.ErrConnection)
	assert.Equal(t, apperrors.ExitNetwork, apperrors.ExitCode(err))
}

func TestDeploy_ChainIDMismatch(t *testing.T) {
	client := &MockClient{}
	client.On("ChainID", mock.Anything).Return(big.NewInt(43114), nil)

	env := newTestEnv(t, client, fastConfig())
	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.ErrorIs(t, err, apperrors.ErrChainIDMismatch)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.Equal(t, 1, client.closed)
	client.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestDeploy_SubmissionRejected(t *testing.T) {
	client := &MockClient{}
	client.On("ChainID", mock.Anything).Return(big.NewInt(fujiChainID), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(25_000_000_000), nil)
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(100_000), nil)
	client.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(big.NewInt(1e18), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(errors.New("nonce too low"))

	env := newTestEnv(t, client, fastConfig())
	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.ErrorIs(t, err, apperrors.ErrSubmission)
	assert.Contains(t, err.Error(), "nonce too low")
	assert.Equal(t, apperrors.ExitTransaction, apperrors.ExitCode(err))
	assert.Equal(t, StageFailed, env.stages[len(env.stages)-1])
	client.AssertNotCalled(t, "TransactionReceipt", mock.Anything, mock.Anything)
}

func TestDeploy_EstimateGasFailure(t *testing.T) {
	client := &MockClient{}
	client.On("ChainID", mock.Anything).Return(big.NewInt(fujiChainID), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(25_000_000_000), nil)
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(0), errors.New("execution reverted"))

	env := newTestEnv(t, client, fastConfig())
	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.ErrorIs(t, err, apperrors.ErrSubmission)
	client.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestDeploy_InsufficientFunds(t *testing.T) {
	client := &MockClient{}
	client.On("ChainID", mock.Anything).Return(big.NewInt(fujiChainID), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(25_000_000_000), nil)
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(100_000), nil)
	client.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(big.NewInt(1), nil)

	env := newTestEnv(t, client, fastConfig())
	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.ErrorIs(t, err, apperrors.ErrSubmission)
	client.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestDeploy_GasOverrides(t *testing.T) {
	client := &MockClient{}
	client.On("ChainID", mock.Anything).Return(big.NewInt(fujiChainID), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(big.NewInt(1e18), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(client.minedReceipt(types.ReceiptStatusSuccessful), nil)

	cfg := fastConfig()
	cfg.GasLimit = 3_000_000
	cfg.MinGasPriceWei = 25_000_000_000
	env := newTestEnv(t, client, cfg)

	res, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	require.NoError(t, err)

	tx := client.sentTx(res.TxHash)
	require.NotNil(t, tx)
	assert.Equal(t, uint64(3_000_000), tx.Gas())
	assert.Equal(t, big.NewInt(25_000_000_000), tx.GasPrice())
	client.AssertNotCalled(t, "EstimateGas", mock.Anything, mock.Anything)
}

func TestDeploy_Reverted(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(client.minedReceipt(types.ReceiptStatusFailed), nil)

	env := newTestEnv(t, client, fastConfig())
	res, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrReverted)

	var txErr *apperrors.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, uint64(100), txErr.BlockNumber)
	assert.NotNil(t, client.sentTx(txErr.Hash))
	assert.Equal(t, StageReverted, env.stages[len(env.stages)-1])
	assert.Equal(t, []string{"reverted"}, env.recorder.outcomes)
}

func TestDeploy_ConfirmationTimeout(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)

	fc := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.PollInterval = time.Second
	cfg.ConfirmTimeout = 10 * time.Second
	env := newTestEnv(t, client, cfg, WithClock(fc))

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
		done <- outcome{res, err}
	}()

	for i := 0; i < 10; i++ {
		fc.BlockUntil(1)
		fc.Advance(time.Second)
	}

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deployment did not time out")
	}

	assert.Nil(t, got.res)
	assert.ErrorIs(t, got.err, apperrors.ErrConfirmationTimeout)
	assert.Equal(t, apperrors.ExitTimeout, apperrors.ExitCode(got.err))

	var txErr *apperrors.TxError
	require.ErrorAs(t, got.err, &txErr)
	assert.NotNil(t, client.sentTx(txErr.Hash), "timeout carries the broadcast hash")
	assert.Equal(t, 11, env.recorder.polls)
	assert.Equal(t, []string{"timed_out"}, env.recorder.outcomes)
}

func TestDeploy_ConfirmationTimeoutBoundsHangingCalls(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(func(ctx context.Context) (*types.Receipt, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ConfirmTimeout = 100 * time.Millisecond
	env := newTestEnv(t, client, cfg)

	start := time.Now()
	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, err, apperrors.ErrConfirmationTimeout)
	assert.Equal(t, apperrors.ExitTimeout, apperrors.ExitCode(err))
	var txErr *apperrors.TxError
	require.ErrorAs(t, err, &txErr)
	assert.NotNil(t, client.sentTx(txErr.Hash))
	client.AssertNumberOfCalls(t, "TransactionReceipt", 1)
}

func TestDeploy_ConfirmationTimeoutBoundsBlockNumber(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(client.minedReceipt(types.ReceiptStatusSuccessful), nil)
	client.On("BlockNumber", mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(uint64(0), context.DeadlineExceeded)

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ConfirmTimeout = 100 * time.Millisecond
	cfg.Confirmations = 2
	env := newTestEnv(t, client, cfg)

	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.ErrorIs(t, err, apperrors.ErrConfirmationTimeout)
	client.AssertNumberOfCalls(t, "BlockNumber", 1)
}

func TestDeploy_PollErrors(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, errors.New("502 bad gateway"))

	cfg := fastConfig()
	cfg.MaxPollErrors = 3
	env := newTestEnv(t, client, cfg)

	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	assert.ErrorIs(t, err, apperrors.ErrConnection)
	var txErr *apperrors.TxError
	require.ErrorAs(t, err, &txErr)
	client.AssertNumberOfCalls(t, "TransactionReceipt", 3)
}

func TestDeploy_TransientPollErrorsRecover(t *testing.T) {
	client := newHealthyClient()
	mined := client.minedReceipt(types.ReceiptStatusSuccessful)
	calls := 0
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(func(h common.Hash) (*types.Receipt, error) {
		calls++
		switch calls {
		case 1, 2, 4, 5:
			return nil, errors.New("connection reset")
		case 3:
			return nil, ethereum.NotFound
		}
		return mined(h)
	}, nil)

	cfg := fastConfig()
	cfg.MaxPollErrors = 3
	env := newTestEnv(t, client, cfg)

	_, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	require.NoError(t, err)
	assert.Equal(t, 6, calls)
}

func TestDeploy_Confirmations(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(client.minedReceipt(types.ReceiptStatusSuccessful), nil)
	client.On("BlockNumber", mock.Anything).Return(uint64(100), nil).Once()
	client.On("BlockNumber", mock.Anything).Return(uint64(101), nil).Once()
	client.On("BlockNumber", mock.Anything).Return(uint64(102), nil).Once()

	cfg := fastConfig()
	cfg.Confirmations = 3
	env := newTestEnv(t, client, cfg)

	res, err := env.runner.Deploy(context.Background(), Request{Contract: "wAvaxApes"})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.BlockNumber)
	client.AssertNumberOfCalls(t, "BlockNumber", 3)
}

func TestDeploy_ContextCancelledWhileWaiting(t *testing.T) {
	client := newHealthyClient()
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)

	fc := clockwork.NewFakeClock()
	env := newTestEnv(t, client, DefaultConfig(), WithClock(fc))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := env.runner.Deploy(ctx, Request{Contract: "wAvaxApes"})
		done <- err
	}()

	fc.BlockUntil(1)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	var txErr *apperrors.TxError
	require.ErrorAs(t, err, &txErr)
	assert.NotNil(t, client.sentTx(txErr.Hash))
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, uint64(1), cfg.Confirmations)
	assert.Equal(t, 5, cfg.MaxPollErrors)
	assert.Equal(t, time.Duration(0), cfg.ConfirmTimeout, "zero timeout stays unbounded")
}

func TestStage_Terminal(t *testing.T) {
	for _, s := range []Stage{StageConfirmed, StageReverted, StageTimedOut, StageFailed} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []Stage{StagePendingResolution, StageConnected, StageSubmitted} {
		assert.False(t, s.Terminal(), s.String())
	}
}
