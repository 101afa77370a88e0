package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/database"
	"github.com/kozaktomas/blinkpay/internal/wallet"
	"github.com/kozaktomas/blinkpay/internal/wizard"
)

// PayStage is a step of the payment wizard.
type PayStage int

const (
	PayPreparing PayStage = iota
	PayConfirming
	PayProcessing
	PayComplete
)

var payStageNames = []string{"preparing", "confirming", "processing", "complete"}

func (s PayStage) String() string { return stageName(payStageNames, s) }

// StepUpdate is published when a processing step starts.
type StepUpdate struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// PaymentState is a snapshot of a payment flow.
type PaymentState struct {
	ID         string    `json:"id"`
	Stage      string    `json:"stage"`
	StageIndex int       `json:"stage_index"`
	Animating  bool      `json:"animating"`
	Recipient  Recipient `json:"recipient"`
	Amount     string    `json:"amount"`
	Symbol     string    `json:"symbol"`
	Network    string    `json:"network"`
	NetworkFee string    `json:"network_fee"`
	Total      string    `json:"total"`
	Connected  bool      `json:"connected"`
	From       string    `json:"from,omitempty"`
	Steps      []string  `json:"steps"`
	Step       int       `json:"step"`
	Processing bool      `json:"processing"`
	Hash       string    `json:"hash,omitempty"`
	TxURL      string    `json:"tx_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	Toast      *Toast    `json:"toast,omitempty"`
}

// Payment sends the native currency to a verified recipient through the wallet.
type Payment struct {
	base

	machine   *wizard.Machine[PayStage]
	provider  wallet.Provider
	recipient Recipient

	mu         sync.Mutex
	amount     string
	connected  bool
	from       string
	processing bool
	step       int
	hash       string
	errMsg     string
	tasks      sync.WaitGroup
}

// NewPayment creates a payment to recipient. provider may be nil when no
// wallet is configured; Continue then fails with a wallet toast.
func NewPayment(provider wallet.Provider, recipient Recipient, log zerolog.Logger, opts ...Option) *Payment {
	f := &Payment{
		base:      newBase(KindPayment, log, opts),
		provider:  provider,
		recipient: recipient,
		amount:    constants.DefaultPaymentAmount,
		step:      -1,
	}
	f.machine = wizard.New(
		[]PayStage{PayPreparing, PayConfirming, PayProcessing, PayComplete},
		wizard.WithDelay[PayStage](f.opts.delay(constants.PaymentAnimationDelay)),
		wizard.WithScheduler[PayStage](f.opts.scheduler),
		wizard.WithStageDelay(PayConfirming, 0),
		wizard.WithStageDelay(PayProcessing, f.opts.delay(constants.PaymentCompletionDelay)),
		wizard.WithGuard(PayPreparing, f.draftGuard),
		wizard.WithGuard(PayProcessing, f.broadcastGuard),
		wizard.WithBack(PayConfirming, PayPreparing),
		wizard.WithHook(f.onStage),
	)
	return f
}

func (f *Payment) draftGuard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := wallet.ParseAmount(f.amount); err != nil {
		return wizard.Invalid("Invalid amount", "Please enter a valid amount to send.")
	}
	if !f.connected {
		return wizard.Invalid("Wallet Not Connected", "Please connect your wallet first")
	}
	return nil
}

// broadcastGuard keeps the processing stage until the wallet returned a hash.
func (f *Payment) broadcastGuard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hash == "" {
		return wizard.Invalid("Payment pending", "The transaction has not been broadcast yet.")
	}
	return nil
}

func (f *Payment) onStage(ev wizard.Event[PayStage]) {
	if ev.Kind == wizard.EventReset || ev.Kind == wizard.EventBack {
		f.mu.Lock()
		f.step = -1
		f.mu.Unlock()
	}
	f.SendEvent(Event{Type: EventState, Data: f.Snapshot()})
}

// SetAmount stores the amount on the preparing stage. It is rejected while
// the draft is already animating towards the confirmation summary.
func (f *Payment) SetAmount(amount string) error {
	if err := ready(f.machine, PayPreparing); err != nil {
		return err
	}
	f.mu.Lock()
	f.amount = strings.TrimSpace(amount)
	f.errMsg = ""
	f.mu.Unlock()
	return nil
}

// Continue checks the amount and the wallet connection and moves to the
// confirmation summary. Nothing is sent to the wallet here.
func (f *Payment) Continue(ctx context.Context) error {
	if err := ready(f.machine, PayPreparing); err != nil {
		return err
	}

	from, err := wallet.Account(ctx, f.provider, f.opts.from)
	f.mu.Lock()
	f.connected = err == nil
	if err == nil {
		f.from = from.Hex()
	}
	f.mu.Unlock()
	if err != nil {
		f.log.Debug().Err(err).Msg("wallet account unavailable")
	}

	if err := f.machine.Advance(); err != nil {
		return f.rejectValidation(err)
	}
	return nil
}

// Back returns from the confirmation summary to the draft.
func (f *Payment) Back() error {
	return f.machine.Back()
}

// Confirm enters processing and broadcasts the transfer in the background.
// Progress is published as step events; the flow completes or returns to
// the preparing stage with the wallet's error.
func (f *Payment) Confirm(ctx context.Context) error {
	tok := f.machine.Token()
	if f.machine.Current() != PayConfirming || f.machine.Animating() {
		return ErrWrongStage
	}

	f.mu.Lock()
	if f.processing {
		f.mu.Unlock()
		return ErrBusy
	}
	f.processing = true
	f.errMsg = ""
	f.hash = ""
	req := wallet.PayRequest{
		From:        f.from,
		To:          f.recipient.WalletAddress,
		Amount:      f.amount,
		ChainID:     f.opts.network.ChainID,
		WaitReceipt: f.opts.waitReceipt,
	}
	f.mu.Unlock()

	if err := f.machine.AdvanceIf(tok); err != nil {
		f.mu.Lock()
		f.processing = false
		f.mu.Unlock()
		return err
	}

	processing := f.machine.Token()
	f.tasks.Add(1)
	go func() {
		defer f.tasks.Done()
		f.broadcast(context.WithoutCancel(ctx), processing, req)
	}()
	return nil
}

func (f *Payment) broadcast(ctx context.Context, tok wizard.Token, req wallet.PayRequest) {
	signed := false
	payment, err := wallet.Pay(ctx, f.provider, req, func(s wallet.Step) {
		if s >= wallet.StepSigning {
			signed = true
		}
		f.mu.Lock()
		f.step = int(s)
		f.mu.Unlock()
		f.SendEvent(Event{Type: EventStep, Message: s.String(), Data: StepUpdate{Index: int(s), Label: s.String()}})
	})

	if payment != nil || (err != nil && signed) {
		f.record(ctx, req, payment, err)
	}

	f.mu.Lock()
	f.processing = false
	f.mu.Unlock()

	if !f.machine.Valid(tok) {
		ev := f.log.Info().Err(err)
		if payment != nil {
			ev = ev.Str("hash", payment.Hash.Hex())
		}
		ev.Msg("discarding payment result for a stale flow")
		return
	}

	// A sent transfer completes even without a receipt; only a revert resets.
	unconfirmed := payment != nil && err != nil && !errors.Is(err, wallet.ErrReverted)
	if err != nil && !unconfirmed {
		if rerr := f.machine.ResetIf(tok, PayPreparing, err); rerr != nil {
			f.log.Info().Err(rerr).Msg("could not return to the draft")
			return
		}
		f.mu.Lock()
		f.errMsg = err.Error()
		f.mu.Unlock()
		f.notify(failure("Transaction Failed", err.Error()))
		f.log.Warn().Err(err).Msg("payment failed")
		return
	}

	f.mu.Lock()
	f.hash = payment.Hash.Hex()
	f.mu.Unlock()

	if err := f.machine.AdvanceIf(tok); err != nil {
		f.log.Info().Err(err).Msg("could not complete payment")
		return
	}
	if unconfirmed {
		f.notify(success("Payment Sent", fmt.Sprintf("Your transfer of %s %s to %s is awaiting confirmation.", displayAmount(req.Amount), f.symbol(), f.recipient.Name)))
		f.log.Warn().Err(err).Str("hash", payment.Hash.Hex()).Msg("payment sent without confirmation")
		return
	}
	f.notify(success("Payment Successful", fmt.Sprintf("You've sent %s %s to %s.", displayAmount(req.Amount), f.symbol(), f.recipient.Name)))
	f.log.Info().Str("hash", payment.Hash.Hex()).Str("to", f.recipient.ShortAddress).Msg("payment sent")
}

// record stores a broadcast attempt in the ledger. Drafts are never recorded.
func (f *Payment) record(ctx context.Context, req wallet.PayRequest, payment *wallet.Payment, payErr error) {
	if f.opts.ledger == nil {
		return
	}
	amount, _ := decimal.NewFromString(req.Amount)
	tx := &database.Transaction{
		ID:               uuid.NewString(),
		SessionID:        f.opts.sessionID,
		RecipientName:    f.recipient.Name,
		RecipientAddress: f.recipient.WalletAddress,
		Amount:           amount,
		Symbol:           f.symbol(),
		Network:          f.opts.network.Name,
		Status:           ledgerStatus(payment, payErr),
		CreatedAt:        time.Now().UTC(),
	}
	if payment != nil {
		tx.Hash = payment.Hash.Hex()
		if payment.Wei != nil {
			tx.Amount = wallet.FromWei(payment.Wei)
		}
	}
	if payErr != nil {
		tx.Error = payErr.Error()
	}
	if err := f.opts.ledger.Record(ctx, tx); err != nil {
		f.log.Error().Err(err).Str("hash", tx.Hash).Msg("could not record transaction")
	}
}

// ledgerStatus is completed once mined, pending while unconfirmed and failed otherwise.
func ledgerStatus(payment *wallet.Payment, err error) database.TxStatus {
	switch {
	case payment == nil:
		return database.TxFailed
	case errors.Is(err, wallet.ErrReverted):
		return database.TxFailed
	case err != nil, payment.Receipt == nil:
		return database.TxPending
	default:
		return database.TxCompleted
	}
}

func (f *Payment) symbol() string {
	if f.opts.network.Symbol == "" {
		return "ETH"
	}
	return f.opts.network.Symbol
}

func displayAmount(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.String()
}

// Wait blocks until a running broadcast has finished.
func (f *Payment) Wait() {
	f.tasks.Wait()
}

// Stage returns the committed stage.
func (f *Payment) Stage() PayStage {
	return f.machine.Current()
}

// Recipient returns who the payment goes to.
func (f *Payment) Recipient() Recipient {
	return f.recipient
}

// Snapshot returns the flow's current state.
func (f *Payment) Snapshot() PaymentState {
	st := f.machine.Snapshot()
	f.mu.Lock()
	defer f.mu.Unlock()

	fee := decimal.RequireFromString(constants.DisplayNetworkFee)
	total := ""
	if amount, err := decimal.NewFromString(f.amount); err == nil {
		total = amount.Add(fee).String()
	}
	return PaymentState{
		ID:         f.id,
		Stage:      st.Stage.String(),
		StageIndex: st.Index,
		Animating:  st.Animating,
		Recipient:  f.recipient,
		Amount:     f.amount,
		Symbol:     f.symbol(),
		Network:    f.opts.network.DisplayName,
		NetworkFee: fee.String(),
		Total:      total,
		Connected:  f.connected,
		From:       f.from,
		Steps:      wallet.Steps(),
		Step:       f.step,
		Processing: f.processing,
		Hash:       f.hash,
		TxURL:      f.opts.network.TxURL(f.hash),
		Error:      f.errMsg,
		Toast:      f.LastToast(),
	}
}

// Close tears the flow down. A broadcast already handed to the wallet runs
// to completion and its result is discarded.
func (f *Payment) Close() {
	f.machine.Close()
	f.shutdown()
}
