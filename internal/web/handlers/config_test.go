package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigHandler_Get(t *testing.T) {
	rt := testRuntime(t, "http://localhost:1", nil)
	handler := NewConfigHandler(rt)

	req := httptest.NewRequest("GET", "/api/v1/config", nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	expectStatus(t, recorder, http.StatusOK)
	if contentType := recorder.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", contentType)
	}

	resp := decodeBody[ConfigResponse](t, recorder)
	if resp.Network.Name != "sepolia" {
		t.Errorf("expected sepolia, got '%s'", resp.Network.Name)
	}
	if len(resp.Networks) != 3 {
		t.Errorf("expected 3 networks, got %d", len(resp.Networks))
	}
	if resp.WalletConfigured {
		t.Error("expected wallet to be reported as unconfigured")
	}
	if len(resp.PaymentSteps) != 5 {
		t.Errorf("expected 5 payment steps, got %d", len(resp.PaymentSteps))
	}
	if resp.DefaultAmount != "0.05" {
		t.Errorf("expected default amount '0.05', got '%s'", resp.DefaultAmount)
	}
	if resp.Liveness.Enabled {
		t.Error("expected liveness to be disabled in the test runtime")
	}
	if resp.Liveness.IntervalMs != 2000 {
		t.Errorf("expected 2000ms interval, got %d", resp.Liveness.IntervalMs)
	}
}

func TestConfigHandler_WalletConfigured(t *testing.T) {
	rt := testRuntime(t, "http://localhost:1", newMockWallet())
	recorder := httptest.NewRecorder()

	NewConfigHandler(rt).Get(recorder, httptest.NewRequest("GET", "/api/v1/config", nil))

	if !decodeBody[ConfigResponse](t, recorder).WalletConfigured {
		t.Error("expected wallet to be reported as configured")
	}
}
