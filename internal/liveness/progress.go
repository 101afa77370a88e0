package liveness

import (
	"context"
	"time"

	"github.com/kozaktomas/blinkpay/internal/constants"
)

// Progress advances a percentage on a fixed tick until it reaches 100.
type Progress struct {
	interval time.Duration
	step     float64
}

// NewProgress creates a progress ticker. Zero values use 100ms and 3.33%.
func NewProgress(interval time.Duration, step float64) *Progress {
	if interval <= 0 {
		interval = constants.ProgressTickInterval
	}
	if step <= 0 {
		step = constants.ProgressStep
	}
	return &Progress{interval: interval, step: step}
}

// Run calls onTick with the new percentage on every tick. It returns nil once
// 100 is reached and ctx.Err() if cancelled first.
func (p *Progress) Run(ctx context.Context, onTick func(percent float64)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	percent := 0.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		percent = min(percent+p.step, 100)
		if onTick != nil {
			onTick(percent)
		}
		if percent >= 100 {
			return nil
		}
	}
}
