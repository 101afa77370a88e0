package handlers

import (
	"net/http"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/config"
	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/wallet"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	rt *app.Runtime
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(rt *app.Runtime) *ConfigHandler {
	return &ConfigHandler{rt: rt}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Networks          []config.Network `json:"networks"`
	Network           config.Network   `json:"network"`
	Liveness          LivenessInfo     `json:"liveness"`
	WalletConfigured  bool             `json:"wallet_configured"`
	WalletConnectID   string           `json:"wallet_connect_project_id"`
	PaymentSteps      []string         `json:"payment_steps"`
	DefaultAmount     string           `json:"default_amount"`
	DisplayNetworkFee string           `json:"network_fee"`
}

// LivenessInfo describes liveness polling during scans
type LivenessInfo struct {
	Enabled    bool  `json:"enabled"`
	IntervalMs int64 `json:"interval_ms"`
}

// Get returns the public configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.response())
}

func (h *ConfigHandler) response() ConfigResponse {
	cfg := h.rt.Config
	return ConfigResponse{
		Networks: cfg.Networks.Networks,
		Network:  h.rt.Network,
		Liveness: LivenessInfo{
			Enabled:    cfg.Liveness.Enabled,
			IntervalMs: cfg.Liveness.Interval.Milliseconds(),
		},
		WalletConfigured:  h.rt.Wallet != nil,
		WalletConnectID:   cfg.Wallet.ProjectID,
		PaymentSteps:      wallet.Steps(),
		DefaultAmount:     constants.DefaultPaymentAmount,
		DisplayNetworkFee: constants.DisplayNetworkFee,
	}
}
