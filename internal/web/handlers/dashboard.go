package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/database"
)

// DashboardHandler serves the session's payment history
type DashboardHandler struct {
	rt  *app.Runtime
	now func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(rt *app.Runtime) *DashboardHandler {
	return &DashboardHandler{rt: rt, now: time.Now}
}

type dashboardQuery struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

// DashboardResponse is the dashboard payload.
type DashboardResponse struct {
	Transactions []database.Transaction `json:"transactions"`
	Stats        *database.Stats        `json:"stats"`
	Symbol       string                 `json:"symbol"`
	Limit        int                    `json:"limit"`
	Offset       int                    `json:"offset"`
}

// Get returns recent transactions, totals and per-day spending
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	var q dashboardQuery
	if err := formDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondError(w, http.StatusBadRequest, "invalid query parameters")
		return
	}
	if q.Limit <= 0 {
		q.Limit = constants.DefaultTransactionPageSize
	}
	q.Limit = min(q.Limit, constants.MaxTransactionPageSize)
	q.Offset = max(q.Offset, 0)

	resp, err := h.load(r, q)
	if err != nil {
		h.rt.Log.Error().Err(err).Msg("failed to load dashboard")
		respondError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *DashboardHandler) load(r *http.Request, q dashboardQuery) (*DashboardResponse, error) {
	sid := sessionID(r)
	txs, err := h.rt.Store.List(r.Context(), sid, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	stats, err := h.rt.Store.Stats(r.Context(), sid, constants.SpendingChartDays, h.now())
	if err != nil {
		return nil, err
	}
	return &DashboardResponse{
		Transactions: txs,
		Stats:        stats,
		Symbol:       h.rt.Network.Symbol,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}, nil
}
