package liveness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/camera"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
)

type scriptedChecker struct {
	mu      sync.Mutex
	results []faceapi.LivenessResult
	errs    []error
	calls   int
}

func (c *scriptedChecker) CheckLiveness(_ context.Context, _ []byte) (*faceapi.LivenessResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.results) {
		r := c.results[i]
		return &r, nil
	}
	return &faceapi.LivenessResult{}, nil
}

type staticSource struct {
	err error
}

func (s staticSource) Latest() (camera.Frame, error) {
	if s.err != nil {
		return camera.Frame{}, s.err
	}
	return camera.Frame{Data: []byte("frame"), At: time.Now()}, nil
}

func TestPoller_AccumulatesUntilPassed(t *testing.T) {
	checker := &scriptedChecker{
		results: []faceapi.LivenessResult{
			{BlinkDetected: true},
			{},
			{HeadMovementDetected: true, DepthAnalysisComplete: true},
			{AntiSpoofingVerified: true},
		},
		errs: []error{nil, errors.New("service hiccup")},
	}
	p := NewPoller(checker, staticSource{}, time.Millisecond, zerolog.Nop())

	var updates []Update
	result, err := p.Run(context.Background(), func(u Update) { updates = append(updates, u) })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.Passed() {
		t.Errorf("expected all checks to pass, got %+v", result)
	}
	if len(updates) != 4 {
		t.Fatalf("expected 4 updates, got %d", len(updates))
	}
	if updates[1].Error == "" {
		t.Error("expected the failed poll to be reported")
	}
	if !updates[1].Result.BlinkDetected {
		t.Error("a passed check must stay passed after a failed poll")
	}
	if !updates[3].Passed || updates[3].Attempt != 4 {
		t.Errorf("unexpected final update %+v", updates[3])
	}
}

func TestPoller_SkipsUntilFrameAvailable(t *testing.T) {
	checker := &scriptedChecker{}
	p := NewPoller(checker, staticSource{err: camera.ErrNoFrame}, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if checker.calls != 0 {
		t.Errorf("no frame means no request, got %d calls", checker.calls)
	}
}

func TestPoller_StopsWhenCameraClosed(t *testing.T) {
	p := NewPoller(&scriptedChecker{}, staticSource{err: camera.ErrNotOpen}, time.Millisecond, zerolog.Nop())

	if _, err := p.Run(context.Background(), nil); !errors.Is(err, camera.ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestPoller_CancelStopsUpdates(t *testing.T) {
	checker := &scriptedChecker{}
	p := NewPoller(checker, staticSource{}, time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	count := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, func(Update) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != after {
		t.Error("updates published after cancellation")
	}
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(&scriptedChecker{}, staticSource{}, 0, zerolog.Nop())
	if p.interval != 2*time.Second {
		t.Errorf("expected 2s default, got %v", p.interval)
	}
}

func TestProgress_ReachesHundred(t *testing.T) {
	p := NewProgress(time.Millisecond, 0)

	var ticks []float64
	if err := p.Run(context.Background(), func(v float64) { ticks = append(ticks, v) }); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(ticks) != 31 {
		t.Errorf("expected 31 ticks of 3.33%%, got %d", len(ticks))
	}
	if ticks[len(ticks)-1] != 100 {
		t.Errorf("expected to end at 100, got %v", ticks[len(ticks)-1])
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] <= ticks[i-1] {
			t.Fatalf("progress must increase, tick %d: %v -> %v", i, ticks[i-1], ticks[i])
		}
	}
}

func TestProgress_Cancelled(t *testing.T) {
	p := NewProgress(time.Hour, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
