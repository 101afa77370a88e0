package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/flow"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <face-image>",
	Short: "Identify the enrolled user in a face image",
	Long: `Submit a face image to the face service and print the recognized
user and wallet.

Examples:
  blinkpay verify face.jpg
  blinkpay verify --json face.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read face image: %w", err)
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	recipient, err := verifyFace(ctx, rt, image, jsonOutput)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(recipient)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", recipient.Name)
	fmt.Fprintf(w, "Wallet:\t%s\n", recipient.WalletAddress)
	if recipient.Confidence != "" {
		fmt.Fprintf(w, "Confidence:\t%s\n", recipient.Confidence)
	}
	if recipient.UserID != "" {
		fmt.Fprintf(w, "User:\t%s\n", recipient.UserID)
	}
	return w.Flush()
}

// verifyFace runs a scan over a single image and returns the recognized payee.
func verifyFace(ctx context.Context, rt *app.Runtime, image []byte, jsonOutput bool) (*flow.Recipient, error) {
	opts := append(rt.FlowOptions(cliSession),
		flow.WithLiveness(false, 0),
		flow.WithNotifier(toastPrinter(jsonOutput)),
	)
	scan := flow.NewScan(rt.Faces, nil, rt.Log, opts...)
	defer scan.Close()

	if err := scan.Start(); err != nil {
		return nil, err
	}
	if err := scan.SubmitFace(ctx, image); err != nil {
		if errors.Is(err, flow.ErrNotRecognized) {
			return nil, errors.New(scan.Snapshot().Error)
		}
		return nil, fmt.Errorf("verification failed: %w", err)
	}

	recipient := scan.Recipient()
	if recipient == nil {
		return nil, errors.New("no recipient recognized")
	}
	return recipient, nil
}
