package faceapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrMalformedResponse is returned when the service answers 2xx with a body
// that cannot be interpreted.
var ErrMalformedResponse = errors.New("malformed face service response")

// APIError is a non-2xx answer from the face service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("face service returned %d: %s", e.StatusCode, e.Message)
}

// ID is an identifier the service may encode as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// VerifyResult is the answer of /verify-face.
type VerifyResult struct {
	Verified      bool     `json:"verified"`
	Name          string   `json:"name,omitempty"`
	WalletAddress string   `json:"wallet_address,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	UserID        ID       `json:"user_id,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// ConfidencePercent formats the confidence score for display, e.g. "97%".
// Returns empty string when the service did not report one.
func (r *VerifyResult) ConfidencePercent() string {
	if r.Confidence == nil {
		return ""
	}
	return strconv.FormatFloat(*r.Confidence*100, 'f', 0, 64) + "%"
}

func (r *VerifyResult) validate() error {
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedResponse, *r.Confidence)
	}
	return nil
}

// EnrollRequest carries the fields uploaded to /enroll-user.
type EnrollRequest struct {
	Name          string
	Email         string
	WalletAddress string
	Image         []byte
}

// EnrollResult is the loosely typed success payload of /enroll-user.
type EnrollResult struct {
	Message string `json:"message,omitempty"`
	UserID  ID     `json:"user_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

// LivenessResult holds the four liveness checks.
type LivenessResult struct {
	BlinkDetected         bool `json:"blinkDetected"`
	HeadMovementDetected  bool `json:"headMovementDetected"`
	DepthAnalysisComplete bool `json:"depthAnalysisComplete"`
	AntiSpoofingVerified  bool `json:"antiSpoofingVerified"`
}

// Passed reports whether all four checks passed.
func (l LivenessResult) Passed() bool {
	return l.BlinkDetected && l.HeadMovementDetected && l.DepthAnalysisComplete && l.AntiSpoofingVerified
}

// Merge returns the union of two results. A check seen once stays passed.
func (l LivenessResult) Merge(other LivenessResult) LivenessResult {
	return LivenessResult{
		BlinkDetected:         l.BlinkDetected || other.BlinkDetected,
		HeadMovementDetected:  l.HeadMovementDetected || other.HeadMovementDetected,
		DepthAnalysisComplete: l.DepthAnalysisComplete || other.DepthAnalysisComplete,
		AntiSpoofingVerified:  l.AntiSpoofingVerified || other.AntiSpoofingVerified,
	}
}

// errorBody is the error shape of the service. detail may be a string or a
// list of validation errors; only the string form is used as a message.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// errorMessage extracts a human readable message from an error response,
// preferring detail, then message, then the HTTP status text.
func errorMessage(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		var detail string
		if len(eb.Detail) > 0 && json.Unmarshal(eb.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}
