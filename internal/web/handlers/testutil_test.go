package handlers

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/config"
	"github.com/kozaktomas/blinkpay/internal/database"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/wallet"
	"github.com/kozaktomas/blinkpay/internal/web/middleware"
)

const (
	testSessionID = "test-session"
	testWallet    = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	testSender    = "0x1111111111111111111111111111111111111111"
)

// setupMockFaceServer creates a mock face service for handler tests
func setupMockFaceServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// testRuntime builds a runtime with an in-memory store and synchronous wizards.
func testRuntime(t *testing.T, faceURL string, provider wallet.Provider) *app.Runtime {
	t.Helper()

	cfg := config.Load()
	cfg.FaceAPI.URL = faceURL
	cfg.Liveness.Enabled = false
	cfg.Wizard.Animate = false
	cfg.Wallet.WaitReceipt = false
	cfg.Wallet.From = ""

	faces, err := faceapi.New(cfg.FaceAPI, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create face client: %v", err)
	}
	network, err := cfg.ActiveNetwork()
	if err != nil {
		t.Fatalf("ActiveNetwork() error = %v", err)
	}

	return &app.Runtime{
		Config:  cfg,
		Log:     zerolog.Nop(),
		Faces:   faces,
		Network: network,
		Store:   database.NewMemoryStore(),
		Wallet:  provider,
	}
}

// newTestRouter wires the flow handlers behind a fixed session.
func newTestRouter(t *testing.T, rt *app.Runtime) (*chi.Mux, *FlowRegistry) {
	t.Helper()

	flows := NewFlowRegistry(zerolog.Nop())
	t.Cleanup(flows.CloseAll)

	enroll := NewEnrollHandler(rt, flows)
	scan := NewScanHandler(rt, flows)
	payment := NewPaymentHandler(rt, flows)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, requestWithSession(r, testSessionID))
		})
	})

	r.Post("/enrollments", enroll.Create)
	r.Get("/enrollments/{id}", enroll.Get)
	r.Delete("/enrollments/{id}", enroll.Delete)
	r.Post("/enrollments/{id}/info", enroll.Info)
	r.Post("/enrollments/{id}/wallet", enroll.Wallet)
	r.Post("/enrollments/{id}/frames", enroll.Frame)
	r.Post("/enrollments/{id}/face", enroll.Face)

	r.Post("/scans", scan.Create)
	r.Get("/scans/{id}", scan.Get)
	r.Delete("/scans/{id}", scan.Delete)
	r.Post("/scans/{id}/start", scan.Start)
	r.Post("/scans/{id}/frames", scan.Frame)
	r.Post("/scans/{id}/face", scan.Face)
	r.Post("/scans/{id}/liveness", scan.Liveness)
	r.Post("/scans/{id}/restart", scan.Restart)

	r.Post("/payments", payment.Create)
	r.Get("/payments/{id}", payment.Get)
	r.Delete("/payments/{id}", payment.Delete)
	r.Post("/payments/{id}/continue", payment.Continue)
	r.Post("/payments/{id}/back", payment.Back)
	r.Post("/payments/{id}/confirm", payment.Confirm)

	return r, flows
}

// requestWithSession attaches a session to the request context
func requestWithSession(r *http.Request, id string) *http.Request {
	ctx := middleware.SetSessionInContext(r.Context(), &middleware.Session{ID: id})
	return r.WithContext(ctx)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// postForm sends a urlencoded form through the router
func postForm(t *testing.T, h http.Handler, path string, form string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	return recorder
}

// postImage sends a raw JPEG body through the router
func postImage(t *testing.T, h http.Handler, path string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(image)))
	req.Header.Set("Content-Type", "image/jpeg")
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	return recorder
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(recorder.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}

// mockWallet is an in-process wallet provider on sepolia.
type mockWallet struct {
	mu       sync.Mutex
	accounts []common.Address
	sendErr  error
	sent     int
}

func newMockWallet() *mockWallet {
	return &mockWallet{accounts: []common.Address{common.HexToAddress(testSender)}}
}

func (w *mockWallet) Accounts(context.Context) ([]common.Address, error) { return w.accounts, nil }
func (w *mockWallet) ChainID(context.Context) (*big.Int, error)          { return big.NewInt(11155111), nil }
func (w *mockWallet) Close()                                            {}

func (w *mockWallet) SendTransaction(context.Context, wallet.Transfer) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	w.sent++
	return common.HexToHash("0xbeef"), nil
}
