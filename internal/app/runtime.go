// Package app holds the runtime shared by the server and the CLI: the
// configuration, the logger and the collaborators built from them.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/kozaktomas/blinkpay/internal/config"
	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/database"
	"github.com/kozaktomas/blinkpay/internal/database/postgres"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/flow"
	"github.com/kozaktomas/blinkpay/internal/wallet"
)

// Runtime is constructed once at start and closed on shutdown.
type Runtime struct {
	Config  *config.Config
	Log     zerolog.Logger
	Faces   *faceapi.Client
	Network config.Network
	Store   database.Store

	// Wallet is nil when no wallet endpoint is configured.
	Wallet wallet.Provider
}

// New builds the runtime. The store is PostgreSQL when DATABASE_URL is set
// and in-memory otherwise.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Runtime, error) {
	faces, err := faceapi.New(cfg.FaceAPI, log)
	if err != nil {
		return nil, fmt.Errorf("creating face API client: %w", err)
	}

	network, err := cfg.ActiveNetwork()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:  cfg,
		Log:     log,
		Faces:   faces,
		Network: network,
	}

	if cfg.Database.URL != "" {
		store, err := postgres.Open(ctx, &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		rt.Store = store
		log.Info().Msg("using PostgreSQL store")
	} else {
		rt.Store = database.NewMemoryStore()
		log.Info().Msg("using in-memory store")
	}

	if cfg.Wallet.RPCURL != "" {
		provider, err := wallet.Dial(ctx, cfg.Wallet.RPCURL, log,
			wallet.WithReceiptPolling(constants.ReceiptPollInterval, cfg.Wallet.ReceiptTimeout))
		if err != nil {
			return nil, multierr.Append(err, rt.Store.Close())
		}
		rt.Wallet = provider
		log.Info().Str("network", network.Name).Msg("wallet provider connected")
	} else {
		log.Warn().Msg("no wallet RPC configured, payments are disabled")
	}

	return rt, nil
}

// FlowOptions returns the flow options for a session.
func (r *Runtime) FlowOptions(sessionID string) []flow.Option {
	opts := []flow.Option{
		flow.WithLiveness(r.Config.Liveness.Enabled, r.Config.Liveness.Interval),
		flow.WithNetwork(r.Network),
		flow.WithSender(r.Config.Wallet.From),
		flow.WithReceiptWait(r.Config.Wallet.WaitReceipt),
		flow.WithLedger(r.Store, sessionID),
	}
	if !r.Config.Wizard.Animate {
		opts = append(opts, flow.WithoutAnimation())
	}
	return opts
}

// Close releases the wallet connection and the store.
func (r *Runtime) Close() error {
	if r.Wallet != nil {
		r.Wallet.Close()
	}
	var err error
	if r.Store != nil {
		err = multierr.Append(err, r.Store.Close())
	}
	return err
}
