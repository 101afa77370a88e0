package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kozaktomas/blinkpay/internal/database"
)

func newTestPages(t *testing.T) *PagesHandler {
	t.Helper()
	h, err := NewPagesHandler(testRuntime(t, "http://localhost:1", nil))
	if err != nil {
		t.Fatalf("NewPagesHandler() error = %v", err)
	}
	return h
}

func TestPagesHandler_Render(t *testing.T) {
	h := newTestPages(t)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
		want    string
	}{
		{"index", h.Index, "/", "Pay with a blink"},
		{"enroll", h.Enroll, "/enroll", `data-flow="enrollments"`},
		{"scan", h.Scan, "/scan", `data-flow="scans"`},
		{"payment", h.Payment, "/payment?id=abc", `data-flow="payments"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			tc.handler(recorder, httptest.NewRequest("GET", tc.path, nil))

			expectStatus(t, recorder, http.StatusOK)
			if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("expected HTML, got '%s'", ct)
			}
			body := recorder.Body.String()
			if !strings.Contains(body, tc.want) {
				t.Errorf("expected page to contain %q", tc.want)
			}
			if !strings.Contains(body, "Sepolia") {
				t.Error("expected the active network in the layout")
			}
		})
	}
}

func TestPagesHandler_PaymentWithoutFlow(t *testing.T) {
	recorder := httptest.NewRecorder()
	newTestPages(t).Payment(recorder, httptest.NewRequest("GET", "/payment", nil))

	expectStatus(t, recorder, http.StatusSeeOther)
	if loc := recorder.Header().Get("Location"); loc != "/scan" {
		t.Errorf("expected redirect to /scan, got '%s'", loc)
	}
}

func TestPagesHandler_Dashboard(t *testing.T) {
	h := newTestPages(t)
	err := h.rt.Store.Record(context.Background(), &database.Transaction{
		SessionID:     testSessionID,
		RecipientName: "Jane Doe",
		Amount:        decimal.RequireFromString("0.05"),
		Symbol:        "ETH",
		Status:        database.TxCompleted,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	recorder := httptest.NewRecorder()
	h.Dashboard(recorder, requestWithSession(httptest.NewRequest("GET", "/dashboard", nil), testSessionID))

	expectStatus(t, recorder, http.StatusOK)
	if !strings.Contains(recorder.Body.String(), "Jane Doe") {
		t.Error("expected the recorded payment on the dashboard")
	}
}

func TestPagesHandler_NotFound(t *testing.T) {
	recorder := httptest.NewRecorder()
	newTestPages(t).NotFound(recorder, httptest.NewRequest("GET", "/nope", nil))

	expectStatus(t, recorder, http.StatusNotFound)
}
