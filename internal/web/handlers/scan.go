package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/flow"
)

// ScanHandler handles the pay-by-face scan endpoints
type ScanHandler struct {
	rt    *app.Runtime
	flows *FlowRegistry
}

// NewScanHandler creates a new scan handler
func NewScanHandler(rt *app.Runtime, flows *FlowRegistry) *ScanHandler {
	return &ScanHandler{rt: rt, flows: flows}
}

// LivenessResponse is the liveness view of a scan.
type LivenessResponse struct {
	Liveness *faceapi.LivenessResult `json:"liveness"`
	Passed   bool                    `json:"passed"`
	Progress float64                 `json:"progress"`
}

func (h *ScanHandler) lookup(w http.ResponseWriter, r *http.Request) (*flow.Scan, bool) {
	f, ok := lookupFlow[*flow.Scan](h.flows, sessionID(r), chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "scan not found")
	}
	return f, ok
}

// Create starts a new scan
func (h *ScanHandler) Create(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	f := flow.NewScan(h.rt.Faces, h.rt.Faces, h.rt.Log, h.rt.FlowOptions(sid)...)
	h.flows.Put(sid, f)
	respondJSON(w, http.StatusCreated, f.Snapshot())
}

// Get returns the scan state
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Start opens the scanner
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := f.Start(); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Frame stores a camera frame
func (h *ScanHandler) Frame(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	pushFrame(w, r, h.rt, f.PushFrame)
}

// Face verifies the face. An unrecognized face is not an error: the state
// carries the message and the scan keeps running.
func (h *ScanHandler) Face(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	image, err := readImage(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := f.SubmitFace(r.Context(), image); err != nil && !errors.Is(err, flow.ErrNotRecognized) {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Liveness returns the accumulated liveness checks and the scan progress
func (h *ScanHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	state := f.Snapshot()
	respondJSON(w, http.StatusOK, LivenessResponse{
		Liveness: state.Liveness,
		Passed:   state.Liveness != nil && state.Liveness.Passed(),
		Progress: state.Progress,
	})
}

// Restart returns the scan to its intro
func (h *ScanHandler) Restart(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := f.Restart(); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Delete tears the scan down
func (h *ScanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.flows.Remove(sessionID(r), chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
