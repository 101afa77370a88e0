package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/schema"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/camera"
	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/flow"
	"github.com/kozaktomas/blinkpay/internal/wallet"
	"github.com/kozaktomas/blinkpay/internal/web/middleware"
	"github.com/kozaktomas/blinkpay/internal/wizard"
)

// errInvalidRequestBody is a shared error message for undecodable request bodies.
const errInvalidRequestBody = "invalid request body"

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Title string `json:"title,omitempty"`
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondFlowError maps a flow, wizard or collaborator error to a status code.
func respondFlowError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		verr   *wizard.ValidationError
		apiErr *faceapi.APIError
		txErr  *wallet.TxError
		urlErr *url.Error
	)
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: verr.Message, Title: verr.Title})
	case errors.Is(err, wallet.ErrNotConnected):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Title: "Wallet Not Connected"})
	case errors.Is(err, flow.ErrWrongStage), errors.Is(err, flow.ErrBusy),
		errors.Is(err, wizard.ErrAnimating), errors.Is(err, wizard.ErrTerminal), errors.Is(err, wizard.ErrNoBack):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, camera.ErrNotOpen), errors.Is(err, camera.ErrNoFrame):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wizard.ErrClosed), errors.Is(err, wizard.ErrStale), errors.Is(err, camera.ErrClosed):
		respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, camera.ErrTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &apiErr):
		respondJSON(w, http.StatusBadGateway, ErrorResponse{Error: apiErr.Message, Title: "Face service error"})
	case errors.As(err, &txErr):
		respondJSON(w, http.StatusBadGateway, ErrorResponse{Error: txErr.Message, Title: "Transaction Failed"})
	case errors.Is(err, faceapi.ErrMalformedResponse), errors.As(err, &urlErr):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeForm decodes a urlencoded, multipart or JSON body into dst.
// Form fields are matched by their schema tags, JSON by json tags.
func decodeForm(r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w", errInvalidRequestBody, err)
		}
		return nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
			return fmt.Errorf("%s: %w", errInvalidRequestBody, err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("%s: %w", errInvalidRequestBody, err)
		}
	}
	if err := formDecoder.Decode(dst, r.PostForm); err != nil {
		return fmt.Errorf("%s: %w", errInvalidRequestBody, err)
	}
	return nil
}

// readImage returns the uploaded face image: the multipart "file" part or a
// raw image body. It returns nil when the request carries no image.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxFrameBytes+1<<20)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
			return nil, fmt.Errorf("%s: %w", errInvalidRequestBody, err)
		}
		file, _, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errInvalidRequestBody, err)
		}
		defer file.Close()
		return readAll(file)
	}

	if !strings.HasPrefix(mediaType, "image/") && mediaType != "application/octet-stream" {
		return nil, nil
	}
	return readAll(r.Body)
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// sessionID returns the ID of the request's session.
func sessionID(r *http.Request) string {
	if s := middleware.GetSessionFromContext(r.Context()); s != nil {
		return s.ID
	}
	return ""
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
