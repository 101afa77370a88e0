package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/constants"
)

// RPCProvider is a Provider backed by a JSON-RPC endpoint that manages the
// wallet's keys, such as a node with unlocked accounts or a signer proxy.
type RPCProvider struct {
	client         *rpc.Client
	eth            *ethclient.Client
	pollInterval   time.Duration
	receiptTimeout time.Duration
	log            zerolog.Logger
}

// RPCOption configures an RPCProvider.
type RPCOption func(*RPCProvider)

// WithReceiptPolling sets how often and how long WaitReceipt polls.
func WithReceiptPolling(interval, timeout time.Duration) RPCOption {
	return func(p *RPCProvider) {
		if interval > 0 {
			p.pollInterval = interval
		}
		if timeout > 0 {
			p.receiptTimeout = timeout
		}
	}
}

// Dial connects to the wallet endpoint.
func Dial(ctx context.Context, url string, log zerolog.Logger, opts ...RPCOption) (*RPCProvider, error) {
	if url == "" {
		return nil, ErrNotConnected
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("could not dial wallet RPC: %w", err)
	}
	p := &RPCProvider{
		client:         client,
		eth:            ethclient.NewClient(client),
		pollInterval:   constants.ReceiptPollInterval,
		receiptTimeout: constants.DefaultReceiptTimeout,
		log:            log.With().Str("component", "wallet").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Accounts returns the accounts the wallet exposes.
func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

// ChainID returns the chain the wallet is connected to.
func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := p.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	return id, nil
}

// sendTxArgs is the eth_sendTransaction parameter object. Gas, fees and nonce
// are left to the wallet.
type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

// SendTransaction asks the wallet to sign and broadcast a transfer.
// Errors are returned as produced by the wallet so their code and message survive.
func (p *RPCProvider) SendTransaction(ctx context.Context, tx Transfer) (common.Hash, error) {
	to := tx.To
	args := sendTxArgs{From: tx.From, To: &to, Value: (*hexutil.Big)(tx.Value)}

	var hash common.Hash
	if err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}

	p.log.Info().Str("hash", hash.Hex()).Str("to", tx.To.Hex()).Msg("transaction broadcast")
	return hash, nil
}

// Close closes the underlying RPC connection.
func (p *RPCProvider) Close() {
	p.client.Close()
}
