package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/flow"
)

// PaymentHandler handles the payment wizard endpoints
type PaymentHandler struct {
	rt    *app.Runtime
	flows *FlowRegistry
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(rt *app.Runtime, flows *FlowRegistry) *PaymentHandler {
	return &PaymentHandler{rt: rt, flows: flows}
}

type createPaymentForm struct {
	ScanID string `schema:"scan_id" json:"scan_id"`
}

type amountForm struct {
	Amount string `schema:"amount" json:"amount"`
}

func (h *PaymentHandler) lookup(w http.ResponseWriter, r *http.Request) (*flow.Payment, bool) {
	f, ok := lookupFlow[*flow.Payment](h.flows, sessionID(r), chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "payment not found")
	}
	return f, ok
}

// Create starts a payment to the recipient verified by a scan
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var form createPaymentForm
	if err := decodeForm(r, &form); err != nil || form.ScanID == "" {
		respondError(w, http.StatusBadRequest, "scan_id is required")
		return
	}

	sid := sessionID(r)
	scan, ok := lookupFlow[*flow.Scan](h.flows, sid, form.ScanID)
	if !ok {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}
	recipient := scan.Recipient()
	if recipient == nil || scan.Stage() != flow.ScanPayment {
		respondError(w, http.StatusConflict, "scan has not verified a recipient")
		return
	}

	f := flow.NewPayment(h.rt.Wallet, *recipient, h.rt.Log, h.rt.FlowOptions(sid)...)
	h.flows.Put(sid, f)
	h.rt.Log.Info().Str("flow_id", f.FlowID()).Str("to", sanitizeForLog(recipient.ShortAddress)).Msg("payment created")
	respondJSON(w, http.StatusCreated, f.Snapshot())
}

// Get returns the payment state
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Continue stores the amount, checks the wallet and shows the summary
func (h *PaymentHandler) Continue(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var form amountForm
	if err := decodeForm(r, &form); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if form.Amount != "" {
		if err := f.SetAmount(form.Amount); err != nil {
			respondFlowError(w, h.rt.Log, err)
			return
		}
	}
	if err := f.Continue(r.Context()); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Back returns to the draft
func (h *PaymentHandler) Back(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := f.Back(); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Confirm starts the broadcast; progress is streamed as flow events
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := f.Confirm(r.Context()); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusAccepted, f.Snapshot())
}

// Delete tears the payment down
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.flows.Remove(sessionID(r), chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "payment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
