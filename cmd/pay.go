package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/flow"
	"github.com/kozaktomas/blinkpay/internal/wallet"
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Send a payment to a wallet or a recognized face",
	Long: `Send a payment through the configured wallet (WALLET_RPC_URL).
The payee is either given by address or identified from a face image.

Examples:
  # Pay the user recognized in a face image
  blinkpay pay --face face.jpg --amount 0.05

  # Pay an address directly and don't wait for the receipt
  blinkpay pay --to 0x71C7656EC7ab88b098defB751B7401B5f6d8976F --name Jane --no-wait`,
	RunE: runPay,
}

func init() {
	rootCmd.AddCommand(payCmd)

	payCmd.Flags().String("to", "", "Recipient wallet address")
	payCmd.Flags().String("name", "", "Recipient name shown in the ledger")
	payCmd.Flags().String("face", "", "Face image identifying the recipient")
	payCmd.Flags().String("amount", constants.DefaultPaymentAmount, "Amount in the network's native currency")
	payCmd.Flags().Bool("no-wait", false, "Don't wait for the transaction receipt")
	payCmd.Flags().Bool("json", false, "Output as JSON")
}

func runPay(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	to := mustGetString(cmd, "to")
	facePath := mustGetString(cmd, "face")

	if (to == "") == (facePath == "") {
		return errors.New("provide exactly one of --to or --face")
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.Wallet == nil {
		return errors.New("WALLET_RPC_URL environment variable is required")
	}

	var recipient flow.Recipient
	if facePath != "" {
		image, err := os.ReadFile(facePath)
		if err != nil {
			return fmt.Errorf("failed to read face image: %w", err)
		}
		found, err := verifyFace(ctx, rt, image, jsonOutput)
		if err != nil {
			return err
		}
		recipient = *found
	} else {
		if !wallet.ValidAddress(to) {
			return fmt.Errorf("%w: %s", wallet.ErrInvalidAddress, to)
		}
		name := mustGetString(cmd, "name")
		if name == "" {
			name = wallet.Shorten(to)
		}
		recipient = flow.Recipient{Name: name, WalletAddress: to, ShortAddress: wallet.Shorten(to)}
	}

	opts := append(rt.FlowOptions(cliSession), flow.WithNotifier(toastPrinter(jsonOutput)))
	if mustGetBool(cmd, "no-wait") {
		opts = append(opts, flow.WithReceiptWait(false))
	}
	f := flow.NewPayment(rt.Wallet, recipient, rt.Log, opts...)
	defer f.Close()

	if err := f.SetAmount(mustGetString(cmd, "amount")); err != nil {
		return err
	}
	if err := f.Continue(ctx); err != nil {
		return err
	}

	events := f.AddListener()
	done := make(chan struct{})
	go func() {
		defer close(done)
		trackSteps(events, jsonOutput)
	}()

	if err := f.Confirm(ctx); err != nil {
		return err
	}
	f.Wait()
	f.RemoveListener(events)
	<-done

	state := f.Snapshot()
	if jsonOutput {
		if err := printJSON(state); err != nil {
			return err
		}
	}
	if state.Stage != flow.PayComplete.String() {
		return fmt.Errorf("payment failed: %s", state.Error)
	}
	if !jsonOutput {
		fmt.Printf("Sent %s %s to %s\n", state.Amount, state.Symbol, recipient.Name)
		fmt.Printf("Transaction: %s\n", state.Hash)
		if state.TxURL != "" {
			fmt.Printf("Explorer:    %s\n", state.TxURL)
		}
	}
	return nil
}

// trackSteps renders processing steps until the listener is closed.
func trackSteps(events <-chan flow.Event, jsonOutput bool) {
	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(wallet.Steps()),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Processing"),
			progressbar.OptionShowCount(),
			progressbar.OptionFullWidth(),
		)
	}
	for ev := range events {
		if ev.Type != flow.EventStep || bar == nil {
			continue
		}
		if step, ok := ev.Data.(flow.StepUpdate); ok {
			bar.Describe(step.Label)
			bar.Set(step.Index + 1)
		}
	}
	if bar != nil {
		fmt.Fprintln(os.Stderr)
	}
}
