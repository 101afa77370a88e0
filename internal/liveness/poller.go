// Package liveness runs the periodic tasks of the scanning stage: polling the
// face service for liveness checks and advancing the scan progress bar.
// Both are bound to a context and stop when it is cancelled.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/camera"
	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
)

// Checker submits a frame for liveness analysis.
type Checker interface {
	CheckLiveness(ctx context.Context, image []byte) (*faceapi.LivenessResult, error)
}

// FrameSource yields the most recent camera frame.
type FrameSource interface {
	Latest() (camera.Frame, error)
}

// Update is published after every poll.
type Update struct {
	Result  faceapi.LivenessResult `json:"result"`
	Attempt int                    `json:"attempt"`
	Passed  bool                   `json:"passed"`
	Error   string                 `json:"error,omitempty"`
}

// Poller accumulates liveness checks from periodic frame submissions.
type Poller struct {
	checker  Checker
	source   FrameSource
	interval time.Duration
	log      zerolog.Logger
}

// NewPoller creates a poller. A non-positive interval uses the default of 2s.
func NewPoller(checker Checker, source FrameSource, interval time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = constants.LivenessPollInterval
	}
	return &Poller{
		checker:  checker,
		source:   source,
		interval: interval,
		log:      log.With().Str("component", "liveness").Logger(),
	}
}

// Run polls until every check has passed or ctx is done. Failed polls are
// reported and retried on the next tick. The accumulated result is returned
// in both cases; on cancellation the error is ctx.Err().
func (p *Poller) Run(ctx context.Context, onUpdate func(Update)) (faceapi.LivenessResult, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var acc faceapi.LivenessResult
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return acc, ctx.Err()
		case <-ticker.C:
		}

		frame, err := p.source.Latest()
		if errors.Is(err, camera.ErrNoFrame) {
			continue
		}
		if err != nil {
			return acc, fmt.Errorf("could not read frame: %w", err)
		}

		attempt++
		result, err := p.checker.CheckLiveness(ctx, frame.Data)
		if ctx.Err() != nil {
			// Late answer for a stage that is gone.
			return acc, ctx.Err()
		}

		update := Update{Attempt: attempt}
		if err != nil {
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("liveness check failed")
			update.Error = err.Error()
		} else {
			acc = acc.Merge(*result)
		}
		update.Result = acc
		update.Passed = acc.Passed()
		if onUpdate != nil {
			onUpdate(update)
		}

		if update.Passed {
			p.log.Info().Int("attempts", attempt).Msg("liveness confirmed")
			return acc, nil
		}
	}
}
