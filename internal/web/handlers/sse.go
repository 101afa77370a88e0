package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/blinkpay/internal/flow"
)

// EventsHandler streams flow events to the browser.
type EventsHandler struct {
	flows *FlowRegistry
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(flows *FlowRegistry) *EventsHandler {
	return &EventsHandler{flows: flows}
}

// flowSnapshot returns the current state of any flow.
func flowSnapshot(f flow.Flow) any {
	switch f := f.(type) {
	case *flow.Enrollment:
		return f.Snapshot()
	case *flow.Scan:
		return f.Snapshot()
	case *flow.Payment:
		return f.Snapshot()
	default:
		return nil
	}
}

// setupSSEConnection finds the flow and sets up SSE headers.
// On failure it writes an error response and returns false.
func (h *EventsHandler) setupSSEConnection(w http.ResponseWriter, r *http.Request) (flow.Flow, http.Flusher, bool) {
	flowID := chi.URLParam(r, "id")
	if flowID == "" {
		respondError(w, http.StatusBadRequest, "missing flow ID")
		return nil, nil, false
	}

	f := h.flows.Get(sessionID(r), flowID)
	if f == nil {
		respondError(w, http.StatusNotFound, "flow not found")
		return nil, nil, false
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return f, flusher, true
}

// Stream sends the current state and then every flow event until the flow
// is closed or the client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	f, flusher, ok := h.setupSSEConnection(w, r)
	if !ok {
		return
	}

	eventCh := f.AddListener()
	defer f.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, flow.EventState, flow.Event{Type: flow.EventState, Data: flowSnapshot(f)})

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if event.Type == flow.EventClosed {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
