package handlers

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/flow"
)

func newEventsServer(t *testing.T, flows *FlowRegistry) *httptest.Server {
	t.Helper()
	handler := NewEventsHandler(flows)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, requestWithSession(r, testSessionID))
		})
	})
	r.Get("/flows/{id}/events", handler.Stream)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

// readEvent returns the next event type of an SSE stream.
func readEvent(t *testing.T, scanner *bufio.Scanner) string {
	t.Helper()
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			return name
		}
	}
	return ""
}

func TestEventsHandler_StreamsUntilClosed(t *testing.T) {
	flows := NewFlowRegistry(zerolog.Nop())
	f := flow.NewEnrollment(nil, nil, zerolog.Nop(), flow.WithoutAnimation())
	flows.Put(testSessionID, f)
	server := newEventsServer(t, flows)

	resp, err := http.Get(server.URL + "/flows/" + f.FlowID() + "/events")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream, got '%s'", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	if got := readEvent(t, scanner); got != flow.EventState {
		t.Fatalf("expected initial state event, got '%s'", got)
	}

	if err := f.SetInfo("Jane", "jane@example.com"); err != nil {
		t.Fatalf("SetInfo() error = %v", err)
	}
	if err := f.Continue(); err != nil {
		t.Fatalf("Continue() error = %v", err)
	}
	if got := readEvent(t, scanner); got != flow.EventState {
		t.Errorf("expected state event after continue, got '%s'", got)
	}

	flows.CloseAll()

	last := ""
	for name := readEvent(t, scanner); name != ""; name = readEvent(t, scanner) {
		last = name
	}
	if last != flow.EventClosed {
		t.Errorf("expected the stream to end with a closed event, got '%s'", last)
	}
}

func TestEventsHandler_UnknownFlow(t *testing.T) {
	server := newEventsServer(t, NewFlowRegistry(zerolog.Nop()))

	resp, err := http.Get(server.URL + "/flows/missing/events")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
