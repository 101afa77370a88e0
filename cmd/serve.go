package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the BlinkPay web server.
The web server provides the browser client: enrollment, scan to pay and
the payment dashboard. Payment history is kept in memory unless
DATABASE_URL points at a PostgreSQL database.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (overrides WEB_SESSION_SECRET)")
	serveCmd.Flags().Bool("no-animate", false, "Commit wizard stages without the animation delay")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log := loadConfig()

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
	if mustGetBool(cmd, "no-animate") {
		cfg.Wizard.Animate = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn().Err(err).Msg("error during shutdown")
		}
	}()

	server, err := web.NewServer(rt)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	fmt.Printf("Starting BlinkPay on http://%s (%s)\n", server.Addr(), rt.Network.DisplayName)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
