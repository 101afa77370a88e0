package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/config"
	"github.com/kozaktomas/blinkpay/internal/logging"
)

var (
	captureDir string
	logLevel   string
	logFormat  string
	network    string
)

var rootCmd = &cobra.Command{
	Use:   "blinkpay",
	Short: "Pay with your face",
	Long: `BlinkPay is a pay-by-face client. It enrolls users with a face
recognition service, identifies a payee from a face scan and sends a
crypto payment to the payee's wallet.

Run "blinkpay serve" for the browser client or use the enroll, verify,
liveness and pay commands against the same services from a terminal.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&captureDir, "capture", "", "Directory to save face service responses for debugging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or console (overrides LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&network, "network", "", "Payment network (overrides WALLET_NETWORK)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() (*config.Config, zerolog.Logger) {
	cfg := config.Load()
	if captureDir != "" {
		cfg.FaceAPI.CaptureDir = captureDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if network != "" {
		cfg.Wallet.Network = network
	}
	return cfg, logging.New(cfg.Log, os.Stderr)
}

// newRuntime builds the runtime for one-shot commands. Wizard animations are
// off so every stage commits as soon as it is valid.
func newRuntime(ctx context.Context) (*app.Runtime, error) {
	cfg, log := loadConfig()
	cfg.Wizard.Animate = false
	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return rt, nil
}
