package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sethvargo/go-retry"
)

// WaitReceipt polls for the receipt of a broadcast transaction until it is
// mined, the receipt timeout passes or ctx is done.
func (p *RPCProvider) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	backoff := retry.WithMaxDuration(p.receiptTimeout, retry.NewConstant(p.pollInterval))

	var receipt *types.Receipt
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := p.eth.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			p.log.Debug().Str("hash", hash.Hex()).Msg("transaction pending")
			return retry.RetryableError(err)
		}
		if err != nil {
			return fmt.Errorf("eth_getTransactionReceipt: %w", err)
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.log.Info().Str("hash", hash.Hex()).Uint64("status", receipt.Status).Msg("transaction mined")
	return receipt, nil
}
