// Package deployer runs a single contract deployment against a named target:
// resolve, connect, submit, wait for confirmation, report.
package deployer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/apesavax/wAvaxApes/internal/artifact"
	"github.com/apesavax/wAvaxApes/internal/signer"
	"github.com/apesavax/wAvaxApes/internal/target"
)

// Client is the subset of the Ethereum JSON-RPC API a deployment needs.
// *ethclient.Client satisfies it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// ClientFactory opens clients from RPC URLs.
type ClientFactory interface {
	Dial(ctx context.Context, rpcURL string) (Client, error)
}

// EthClientFactory dials with go-ethereum's ethclient.
type EthClientFactory struct{}

// NewEthClientFactory creates a new EthClientFactory.
func NewEthClientFactory() *EthClientFactory {
	return &EthClientFactory{}
}

// Dial connects to an Ethereum RPC endpoint. For HTTP endpoints no request is
// made until the first call.
func (f *EthClientFactory) Dial(ctx context.Context, rpcURL string) (Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ArtifactLoader looks up compiled contracts by name. *artifact.Store
// satisfies it.
type ArtifactLoader interface {
	Load(name string) (*artifact.ContractArtifact, error)
}

// SignerResolver turns a credential reference into a signer without touching
// the network. *signer.Resolver satisfies it.
type SignerResolver interface {
	Resolve(ref target.CredentialRef, chainID int64) (signer.TransactionSigner, error)
}

// Recorder receives deployment measurements. A nil Recorder is allowed.
type Recorder interface {
	ObserveDeployment(target, contract, outcome string, seconds float64)
	IncConfirmationPolls(target string)
}

var (
	_ Client         = (*ethclient.Client)(nil)
	_ ArtifactLoader = (*artifact.Store)(nil)
	_ SignerResolver = (*signer.Resolver)(nil)
)

type nopRecorder struct{}

func (nopRecorder) ObserveDeployment(string, string, string, float64) {}
func (nopRecorder) IncConfirmationPolls(string)                      {}
