package handlers

import (
	"net/http"
	"testing"

	"github.com/kozaktomas/blinkpay/internal/flow"
)

func verifyServer(t *testing.T, status int, body string) string {
	t.Helper()
	server := setupMockFaceServer(t, map[string]http.HandlerFunc{
		"/verify-face": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, body)
		},
	})
	return server.URL
}

const verifiedBody = `{"verified":true,"name":"Jane Doe","wallet_address":"` + testWallet + `","confidence":0.97,"user_id":7}`

// startScan creates a scan and opens the scanner.
func startScan(t *testing.T, h http.Handler) string {
	t.Helper()

	recorder := doRequest(t, h, http.MethodPost, "/scans")
	expectStatus(t, recorder, http.StatusCreated)
	state := decodeBody[flow.ScanState](t, recorder)
	if state.Stage != "initial" {
		t.Fatalf("expected initial stage, got '%s'", state.Stage)
	}

	recorder = doRequest(t, h, http.MethodPost, "/scans/"+state.ID+"/start")
	expectStatus(t, recorder, http.StatusOK)
	state = decodeBody[flow.ScanState](t, recorder)
	if state.Stage != "scanning" {
		t.Fatalf("expected scanning stage, got '%s'", state.Stage)
	}
	if !state.CameraOpen {
		t.Error("expected camera to open while scanning")
	}
	return state.ID
}

func TestScanHandler_Verified(t *testing.T) {
	faceURL := verifyServer(t, http.StatusOK, verifiedBody)
	router, _ := newTestRouter(t, testRuntime(t, faceURL, nil))

	id := startScan(t, router)

	recorder := postImage(t, router, "/scans/"+id+"/face", []byte("jpeg"))
	expectStatus(t, recorder, http.StatusOK)
	state := decodeBody[flow.ScanState](t, recorder)
	if state.Stage != "payment" {
		t.Fatalf("expected payment stage, got '%s'", state.Stage)
	}
	if state.Recipient == nil {
		t.Fatal("expected a recipient")
	}
	if state.Recipient.Name != "Jane Doe" {
		t.Errorf("expected 'Jane Doe', got '%s'", state.Recipient.Name)
	}
	if state.Recipient.ShortAddress != "0x71C7...976F" {
		t.Errorf("unexpected short address '%s'", state.Recipient.ShortAddress)
	}
	if state.CameraOpen {
		t.Error("expected camera to be released after verification")
	}
}

func TestScanHandler_NotRecognized(t *testing.T) {
	faceURL := verifyServer(t, http.StatusOK, `{"verified":false}`)
	router, _ := newTestRouter(t, testRuntime(t, faceURL, nil))

	id := startScan(t, router)

	recorder := postImage(t, router, "/scans/"+id+"/face", []byte("jpeg"))
	expectStatus(t, recorder, http.StatusOK)
	state := decodeBody[flow.ScanState](t, recorder)
	if state.Stage != "scanning" {
		t.Errorf("expected to keep scanning, got '%s'", state.Stage)
	}
	if state.Error != "Face not recognized. Please try again." {
		t.Errorf("unexpected error message '%s'", state.Error)
	}
	if state.Recipient != nil {
		t.Error("expected no recipient")
	}
}

func TestScanHandler_ServiceErrorResets(t *testing.T) {
	faceURL := verifyServer(t, http.StatusUnprocessableEntity, `{"detail":"Image could not be decoded"}`)
	router, _ := newTestRouter(t, testRuntime(t, faceURL, nil))

	id := startScan(t, router)

	recorder := postImage(t, router, "/scans/"+id+"/face", []byte("jpeg"))
	expectStatus(t, recorder, http.StatusBadGateway)

	state := decodeBody[flow.ScanState](t, doRequest(t, router, http.MethodGet, "/scans/"+id))
	if state.Stage != "initial" {
		t.Errorf("expected reset to initial, got '%s'", state.Stage)
	}
	if state.CameraOpen {
		t.Error("expected camera to be released after reset")
	}
}

func TestScanHandler_StartTwice(t *testing.T) {
	router, _ := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	id := startScan(t, router)

	expectStatus(t, doRequest(t, router, http.MethodPost, "/scans/"+id+"/start"), http.StatusConflict)
}

func TestScanHandler_FrameBeforeStart(t *testing.T) {
	router, _ := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	state := decodeBody[flow.ScanState](t, doRequest(t, router, http.MethodPost, "/scans"))

	recorder := postImage(t, router, "/scans/"+state.ID+"/frames", []byte("frame"))
	expectStatus(t, recorder, http.StatusConflict)
}

func TestScanHandler_MissingFrame(t *testing.T) {
	router, _ := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	id := startScan(t, router)

	expectStatus(t, doRequest(t, router, http.MethodPost, "/scans/"+id+"/frames"), http.StatusBadRequest)
}

func TestScanHandler_Restart(t *testing.T) {
	router, _ := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	id := startScan(t, router)

	recorder := doRequest(t, router, http.MethodPost, "/scans/"+id+"/restart")
	expectStatus(t, recorder, http.StatusOK)
	state := decodeBody[flow.ScanState](t, recorder)
	if state.Stage != "initial" {
		t.Errorf("expected initial after restart, got '%s'", state.Stage)
	}
	if state.CameraOpen {
		t.Error("expected camera to be released after restart")
	}
}

func TestScanHandler_LivenessWithoutChecks(t *testing.T) {
	router, _ := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	id := startScan(t, router)

	recorder := doRequest(t, router, http.MethodPost, "/scans/"+id+"/liveness")
	expectStatus(t, recorder, http.StatusOK)
	resp := decodeBody[LivenessResponse](t, recorder)
	if resp.Passed {
		t.Error("expected liveness not to pass without any checks")
	}
	if resp.Liveness != nil {
		t.Errorf("expected no liveness result, got %+v", resp.Liveness)
	}
}
