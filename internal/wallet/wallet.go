// Package wallet sends native currency transfers through a wallet provider
// that holds the keys and signs on the user's behalf.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrNotConnected      = errors.New("wallet not connected")
	ErrUserRejected      = errors.New("transaction rejected by user")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWrongNetwork      = errors.New("wallet is connected to a different network")
	ErrReverted          = errors.New("transaction reverted")
	ErrInvalidAddress    = errors.New("invalid wallet address")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// userRejectedCode is the EIP-1193 error code for a request the user declined.
const userRejectedCode = 4001

// Transfer is a plain value transfer.
type Transfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// Provider is a wallet that can expose accounts and sign and broadcast transfers.
type Provider interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx Transfer) (common.Hash, error)
	Close()
}

// ReceiptWaiter is implemented by providers that can wait for a transaction to be mined.
type ReceiptWaiter interface {
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxError is a failure reported by the wallet. Error returns the provider's
// message unchanged; Unwrap exposes the classified sentinel.
type TxError struct {
	Kind    error
	Message string
}

func (e *TxError) Error() string { return e.Message }
func (e *TxError) Unwrap() error { return e.Kind }

// classify maps a provider error to one of the wallet sentinels while keeping its message.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return &TxError{Kind: ErrUserRejected, Message: err.Error()}
	}
	if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
		return &TxError{Kind: ErrInsufficientFunds, Message: err.Error()}
	}
	return err
}

// Step is a stage of payment processing, reported to the caller as it starts.
type Step int

const (
	StepRetrievingWallet Step = iota
	StepPreparing
	StepSigning
	StepBroadcasting
	StepAwaitingConfirmation
)

var stepLabels = [...]string{
	"Retrieving wallet details",
	"Preparing transaction",
	"Signing transaction",
	"Broadcasting to network",
	"Awaiting confirmation",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepLabels) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepLabels[s]
}

// Steps returns the labels of all processing steps in order.
func Steps() []string {
	return stepLabels[:]
}

// PayRequest describes a payment.
type PayRequest struct {
	From        string // optional, first wallet account when empty
	To          string
	Amount      string
	ChainID     int64 // expected chain, zero skips the check
	WaitReceipt bool
}

// Payment is the outcome of a broadcast.
type Payment struct {
	Hash    common.Hash
	From    common.Address
	To      common.Address
	Wei     *big.Int
	Receipt *types.Receipt
}

// Account resolves the sending account. A nil provider or a wallet without
// accounts is ErrNotConnected.
func Account(ctx context.Context, p Provider, from string) (common.Address, error) {
	if p == nil {
		return common.Address{}, ErrNotConnected
	}
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNotConnected
	}
	if from == "" {
		return accounts[0], nil
	}
	want, err := ParseAddress(from)
	if err != nil {
		return common.Address{}, err
	}
	for _, a := range accounts {
		if a == want {
			return a, nil
		}
	}
	return common.Address{}, fmt.Errorf("%w: account %s is not available", ErrNotConnected, want.Hex())
}

// Pay validates the request, asks the wallet to sign and broadcast the transfer
// and optionally waits for the receipt. onStep, if set, is called as each
// processing step starts. When the broadcast succeeded but waiting failed,
// the returned Payment still carries the hash.
func Pay(ctx context.Context, p Provider, req PayRequest, onStep func(Step)) (*Payment, error) {
	step := func(s Step) {
		if onStep != nil {
			onStep(s)
		}
	}

	step(StepRetrievingWallet)
	from, err := Account(ctx, p, req.From)
	if err != nil {
		return nil, err
	}
	if req.ChainID != 0 {
		chainID, err := p.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not read chain id: %w", classify(err))
		}
		if chainID.Int64() != req.ChainID {
			return nil, fmt.Errorf("%w: expected chain %d, wallet is on %s", ErrWrongNetwork, req.ChainID, chainID)
		}
	}

	step(StepPreparing)
	to, err := ParseAddress(req.To)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	wei, err := ToWei(amount)
	if err != nil {
		return nil, err
	}

	step(StepSigning)
	hash, err := p.SendTransaction(ctx, Transfer{From: from, To: to, Value: wei})
	if err != nil {
		return nil, classify(err)
	}
	payment := &Payment{Hash: hash, From: from, To: to, Wei: wei}

	step(StepBroadcasting)
	step(StepAwaitingConfirmation)
	if !req.WaitReceipt {
		return payment, nil
	}
	waiter, ok := p.(ReceiptWaiter)
	if !ok {
		return payment, nil
	}
	receipt, err := waiter.WaitReceipt(ctx, hash)
	if err != nil {
		return payment, fmt.Errorf("waiting for receipt of %s: %w", hash.Hex(), err)
	}
	payment.Receipt = receipt
	if receipt.Status == types.ReceiptStatusFailed {
		return payment, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}
	return payment, nil
}
