package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/blinkpay/internal/flow"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <face-image>",
	Short: "Enroll a user with the face service",
	Long: `Enroll a user: their name, email, wallet address and a face image are
registered with the face service, after which the user can be paid by
a face scan.

Examples:
  blinkpay enroll --name "Jane Doe" --email jane@example.com \
    --wallet 0x71C7656EC7ab88b098defB751B7401B5f6d8976F face.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Full name (required)")
	enrollCmd.Flags().String("email", "", "Email address (required)")
	enrollCmd.Flags().String("wallet", "", "Wallet address to receive payments (required)")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
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

	opts := append(rt.FlowOptions(cliSession), flow.WithNotifier(toastPrinter(jsonOutput)))
	f := flow.NewEnrollment(rt.Faces, nil, rt.Log, opts...)
	defer f.Close()

	if err := f.SetInfo(mustGetString(cmd, "name"), mustGetString(cmd, "email")); err != nil {
		return err
	}
	if err := f.Continue(); err != nil {
		return err
	}
	if err := f.ConnectWallet(mustGetString(cmd, "wallet")); err != nil {
		return err
	}
	if err := f.Continue(); err != nil {
		return err
	}
	if err := f.SubmitFace(ctx, image); err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	state := f.Snapshot()
	if state.Stage != flow.EnrollComplete.String() {
		return errors.New("enrollment did not complete")
	}
	if jsonOutput {
		return printJSON(state)
	}
	fmt.Printf("Enrolled %s", state.EnrolledName)
	if state.UserID != "" {
		fmt.Printf(" (user %s)", state.UserID)
	}
	fmt.Println()
	return nil
}
