// Package faceapi is the client of the external face verification service.
// Every call is a single multipart upload: no retries, no caching, no fallback.
package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/config"
)

const (
	verifyEndpoint = "/verify-face"
	enrollEndpoint = "/enroll-user"
)

// Client talks to the face verification service.
type Client struct {
	URL          string
	parsedURL    *url.URL
	livenessPath string
	httpClient   *http.Client
	captureDir   string
	log          zerolog.Logger
}

// New creates a client for the configured service.
func New(cfg config.FaceAPIConfig, log zerolog.Logger) (*Client, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid face API URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid face API URL %q: scheme must be http or https", cfg.URL)
	}

	livenessPath := cfg.LivenessPath
	if livenessPath == "" {
		livenessPath = "/detect-liveness"
	}

	c := &Client{
		URL:          strings.TrimSuffix(cfg.URL, "/"),
		parsedURL:    parsed,
		livenessPath: livenessPath,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		log:          log.With().Str("component", "faceapi").Logger(),
	}
	if cfg.CaptureDir != "" {
		if err := c.SetCaptureDir(cfg.CaptureDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) resolveURL(endpoint string) string {
	return c.parsedURL.JoinPath(endpoint).String()
}

// Verify submits a face image and returns the recognition result.
func (c *Client) Verify(ctx context.Context, image []byte) (*VerifyResult, error) {
	result, err := doPostMultipart[VerifyResult](ctx, c, verifyEndpoint, image)
	if err != nil {
		return nil, fmt.Errorf("verify face: %w", err)
	}
	if err := result.validate(); err != nil {
		return nil, fmt.Errorf("verify face: %w", err)
	}

	c.log.Debug().Bool("verified", result.Verified).Str("user_id", string(result.UserID)).Msg("face verified")
	return result, nil
}

// Enroll uploads a face image together with the user's identity and wallet.
func (c *Client) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	result, err := doPostMultipart[EnrollResult](ctx, c, enrollEndpoint, req.Image,
		formField{name: "name", value: req.Name},
		formField{name: "email", value: req.Email},
		formField{name: "wallet_address", value: req.WalletAddress},
	)
	if err != nil {
		return nil, fmt.Errorf("enroll user: %w", err)
	}

	c.log.Info().Str("user_id", string(result.UserID)).Msg("user enrolled")
	return result, nil
}

// CheckLiveness submits a single frame to the liveness endpoint.
func (c *Client) CheckLiveness(ctx context.Context, image []byte) (*LivenessResult, error) {
	result, err := doPostMultipart[LivenessResult](ctx, c, c.livenessPath, image)
	if err != nil {
		return nil, fmt.Errorf("check liveness: %w", err)
	}
	return result, nil
}

// SetCaptureDir enables response capturing to the specified directory.
// Pass an empty string to disable capturing.
func (c *Client) SetCaptureDir(dir string) error {
	if dir == "" {
		c.captureDir = ""
		return nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("could not create capture directory: %w", err)
	}
	c.captureDir = dir
	return nil
}

// captureResponse saves the response body to a file if capturing is enabled.
func (c *Client) captureResponse(endpoint string, body []byte) {
	if c.captureDir == "" {
		return
	}

	name := strings.TrimPrefix(strings.ReplaceAll(endpoint, "/", "_"), "_")
	name = fmt.Sprintf("%s_%s.json", name, time.Now().Format("20060102_150405.000000"))
	path := filepath.Join(c.captureDir, name)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		body = pretty.Bytes()
	}

	if err := os.WriteFile(path, body, 0600); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("failed to capture response")
	}
}
