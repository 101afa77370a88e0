package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/blinkpay/internal/flow"
)

func enrollServer(t *testing.T, status int, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var names []string
	server := setupMockFaceServer(t, map[string]http.HandlerFunc{
		"/enroll-user": func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("expected multipart upload: %v", err)
			}
			names = append(names, r.FormValue("name"))
			writeJSON(w, status, body)
		},
	})
	return server, &names
}

// enrollToFaceScan creates an enrollment and fills the first two stages.
func enrollToFaceScan(t *testing.T, h http.Handler) string {
	t.Helper()

	recorder := doRequest(t, h, http.MethodPost, "/enrollments")
	expectStatus(t, recorder, http.StatusCreated)
	state := decodeBody[flow.EnrollmentState](t, recorder)
	if state.Stage != "info" {
		t.Fatalf("expected info stage, got '%s'", state.Stage)
	}

	recorder = postForm(t, h, "/enrollments/"+state.ID+"/info", "name=Jane+Doe&email=jane%40example.com")
	expectStatus(t, recorder, http.StatusOK)
	if got := decodeBody[flow.EnrollmentState](t, recorder).Stage; got != "wallet" {
		t.Fatalf("expected wallet stage, got '%s'", got)
	}

	recorder = postForm(t, h, "/enrollments/"+state.ID+"/wallet", "address="+testWallet)
	expectStatus(t, recorder, http.StatusOK)
	state = decodeBody[flow.EnrollmentState](t, recorder)
	if state.Stage != "face_scan" {
		t.Fatalf("expected face_scan stage, got '%s'", state.Stage)
	}
	if state.WalletShort != "0x71C7...976F" {
		t.Errorf("unexpected short address '%s'", state.WalletShort)
	}
	if !state.CameraOpen {
		t.Error("expected camera to open on the face scan stage")
	}
	return state.ID
}

func TestEnrollHandler_CompleteWithUpload(t *testing.T) {
	server, names := enrollServer(t, http.StatusOK, `{"message":"User enrolled","user_id":42}`)
	router, _ := newTestRouter(t, testRuntime(t, server.URL, nil))

	id := enrollToFaceScan(t, router)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "face.jpg")
	part.Write([]byte("jpeg"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/enrollments/"+id+"/face", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	expectStatus(t, recorder, http.StatusOK)
	state := decodeBody[flow.EnrollmentState](t, recorder)
	if state.Stage != "complete" {
		t.Errorf("expected complete stage, got '%s'", state.Stage)
	}
	if state.UserID != "42" {
		t.Errorf("expected user id '42', got '%s'", state.UserID)
	}
	if state.EnrolledName != "Jane Doe" {
		t.Errorf("expected enrolled name 'Jane Doe', got '%s'", state.EnrolledName)
	}
	if state.Name != "" || state.Email != "" {
		t.Error("expected draft to be cleared after enrollment")
	}
	if state.CameraOpen {
		t.Error("expected camera to be released after the face scan stage")
	}
	if len(*names) != 1 || (*names)[0] != "Jane Doe" {
		t.Errorf("unexpected uploads %v", *names)
	}
}

func TestEnrollHandler_UsesLatestFrame(t *testing.T) {
	server, _ := enrollServer(t, http.StatusOK, `{"user_id":"u-1"}`)
	router, _ := newTestRouter(t, testRuntime(t, server.URL, nil))

	id := enrollToFaceScan(t, router)

	recorder := postImage(t, router, "/enrollments/"+id+"/frames", []byte("frame"))
	expectStatus(t, recorder, http.StatusNoContent)

	recorder = doRequest(t, router, http.MethodPost, "/enrollments/"+id+"/face")
	expectStatus(t, recorder, http.StatusOK)
	if got := decodeBody[flow.EnrollmentState](t, recorder).UserID; got != "u-1" {
		t.Errorf("expected user id 'u-1', got '%s'", got)
	}
}

func TestEnrollHandler_FaceWithoutFrame(t *testing.T) {
	server, names := enrollServer(t, http.StatusOK, `{}`)
	router, _ := newTestRouter(t, testRuntime(t, server.URL, nil))

	id := enrollToFaceScan(t, router)

	recorder := doRequest(t, router, http.MethodPost, "/enrollments/"+id+"/face")
	expectStatus(t, recorder, http.StatusConflict)
	if len(*names) != 0 {
		t.Error("nothing should be uploaded without a frame")
	}
}

func TestEnrollHandler_MissingInfo(t *testing.T) {
	router, _ := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	state := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodPost, "/enrollments"))

	recorder := postForm(t, router, "/enrollments/"+state.ID+"/info", "name=Jane")
	expectStatus(t, recorder, http.StatusUnprocessableEntity)
	resp := decodeBody[ErrorResponse](t, recorder)
	if resp.Title != "Missing information" {
		t.Errorf("expected 'Missing information' title, got '%s'", resp.Title)
	}

	got := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodGet, "/enrollments/"+state.ID))
	if got.Stage != "info" {
		t.Errorf("expected to stay on info, got '%s'", got.Stage)
	}
}

func TestEnrollHandler_InvalidWallet(t *testing.T) {
	router, _ := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	state := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodPost, "/enrollments"))
	postForm(t, router, "/enrollments/"+state.ID+"/info", "name=Jane&email=jane%40example.com")

	recorder := postForm(t, router, "/enrollments/"+state.ID+"/wallet", "address=0x1234")
	expectStatus(t, recorder, http.StatusUnprocessableEntity)
	if resp := decodeBody[ErrorResponse](t, recorder); resp.Title != "Wallet not connected" {
		t.Errorf("unexpected title '%s'", resp.Title)
	}
}

func TestEnrollHandler_WrongStage(t *testing.T) {
	router, _ := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	state := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodPost, "/enrollments"))

	recorder := postForm(t, router, "/enrollments/"+state.ID+"/wallet", "address="+testWallet)
	expectStatus(t, recorder, http.StatusConflict)
}

func TestEnrollHandler_ServiceFailureResets(t *testing.T) {
	server, _ := enrollServer(t, http.StatusBadRequest, `{"detail":"No face detected in image"}`)
	router, _ := newTestRouter(t, testRuntime(t, server.URL, nil))

	id := enrollToFaceScan(t, router)

	recorder := postImage(t, router, "/enrollments/"+id+"/face", []byte("jpeg"))
	expectStatus(t, recorder, http.StatusBadGateway)
	resp := decodeBody[ErrorResponse](t, recorder)
	if resp.Error != "No face detected in image" {
		t.Errorf("expected service detail, got '%s'", resp.Error)
	}

	state := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodGet, "/enrollments/"+id))
	if state.Stage != "info" {
		t.Errorf("expected reset to info, got '%s'", state.Stage)
	}
	if state.Name != "" || state.WalletAddress != "" {
		t.Error("expected draft to be cleared after failure")
	}
	if state.Toast == nil || !strings.Contains(state.Toast.Title, "Failed") {
		t.Errorf("expected failure toast, got %+v", state.Toast)
	}
}

func TestEnrollHandler_NotFoundAndDelete(t *testing.T) {
	router, flows := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	expectStatus(t, doRequest(t, router, http.MethodGet, "/enrollments/missing"), http.StatusNotFound)

	state := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodPost, "/enrollments"))
	if flows.Count() != 1 {
		t.Fatalf("expected 1 flow, got %d", flows.Count())
	}

	expectStatus(t, doRequest(t, router, http.MethodDelete, "/enrollments/"+state.ID), http.StatusNoContent)
	if flows.Count() != 0 {
		t.Errorf("expected flow to be removed, got %d", flows.Count())
	}
	expectStatus(t, doRequest(t, router, http.MethodDelete, "/enrollments/"+state.ID), http.StatusNotFound)
}

func TestEnrollHandler_CreateReplacesPrevious(t *testing.T) {
	router, flows := newTestRouter(t, testRuntime(t, "http://localhost:1", nil))

	first := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodPost, "/enrollments"))
	second := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodPost, "/enrollments"))

	if first.ID == second.ID {
		t.Fatal("expected distinct flow ids")
	}
	if flows.Count() != 1 {
		t.Errorf("expected the new enrollment to replace the old one, got %d flows", flows.Count())
	}
	expectStatus(t, doRequest(t, router, http.MethodGet, "/enrollments/"+first.ID), http.StatusNotFound)
}

func TestEnrollHandler_OtherSessionCannotSee(t *testing.T) {
	rt := testRuntime(t, "http://localhost:1", nil)
	router, flows := newTestRouter(t, rt)

	state := decodeBody[flow.EnrollmentState](t, doRequest(t, router, http.MethodPost, "/enrollments"))

	handler := NewEnrollHandler(rt, flows)
	req := httptest.NewRequest(http.MethodGet, "/enrollments/"+state.ID, nil)
	req = requestWithChiParams(requestWithSession(req, "other-session"), map[string]string{"id": state.ID})
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	expectStatus(t, recorder, http.StatusNotFound)
}
