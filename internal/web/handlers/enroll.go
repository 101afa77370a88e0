package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/flow"
)

// EnrollHandler handles the enrollment wizard endpoints
type EnrollHandler struct {
	rt    *app.Runtime
	flows *FlowRegistry
}

// NewEnrollHandler creates a new enrollment handler
func NewEnrollHandler(rt *app.Runtime, flows *FlowRegistry) *EnrollHandler {
	return &EnrollHandler{rt: rt, flows: flows}
}

type infoForm struct {
	Name  string `schema:"name" json:"name"`
	Email string `schema:"email" json:"email"`
}

type walletForm struct {
	Address string `schema:"address" json:"address"`
}

func (h *EnrollHandler) lookup(w http.ResponseWriter, r *http.Request) (*flow.Enrollment, bool) {
	f, ok := lookupFlow[*flow.Enrollment](h.flows, sessionID(r), chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "enrollment not found")
	}
	return f, ok
}

// Create starts a new enrollment, replacing any previous one of the session
func (h *EnrollHandler) Create(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	f := flow.NewEnrollment(h.rt.Faces, h.rt.Faces, h.rt.Log, h.rt.FlowOptions(sid)...)
	h.flows.Put(sid, f)
	respondJSON(w, http.StatusCreated, f.Snapshot())
}

// Get returns the enrollment state
func (h *EnrollHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Info stores the name and email and continues to the wallet stage
func (h *EnrollHandler) Info(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var form infoForm
	if err := decodeForm(r, &form); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := f.SetInfo(form.Name, form.Email); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	if err := f.Continue(); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Wallet stores the wallet address and continues to the face scan
func (h *EnrollHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var form walletForm
	if err := decodeForm(r, &form); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := f.ConnectWallet(form.Address); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	if err := f.Continue(); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Frame stores a camera frame
func (h *EnrollHandler) Frame(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	pushFrame(w, r, h.rt, f.PushFrame)
}

// Face uploads the face, either the attached image or the latest frame
func (h *EnrollHandler) Face(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	image, err := readImage(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := f.SubmitFace(r.Context(), image); err != nil {
		respondFlowError(w, h.rt.Log, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// Delete tears the enrollment down
func (h *EnrollHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.flows.Remove(sessionID(r), chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "enrollment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pushFrame reads a frame from the request and hands it to push.
func pushFrame(w http.ResponseWriter, r *http.Request, rt *app.Runtime, push func([]byte) error) {
	image, err := readImage(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if image == nil {
		respondError(w, http.StatusBadRequest, "missing frame")
		return
	}
	if err := push(image); err != nil {
		respondFlowError(w, rt.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
