package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/liveness"
	"github.com/kozaktomas/blinkpay/internal/wizard"
)

type fakeVerifier struct {
	mu     sync.Mutex
	gate   *gate
	result *faceapi.VerifyResult
	err    error
	images [][]byte
}

func (v *fakeVerifier) Verify(_ context.Context, image []byte) (*faceapi.VerifyResult, error) {
	v.gate.wait()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.images = append(v.images, image)
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

type passingChecker struct{}

func (passingChecker) CheckLiveness(context.Context, []byte) (*faceapi.LivenessResult, error) {
	return &faceapi.LivenessResult{
		BlinkDetected:         true,
		HeadMovementDetected:  true,
		DepthAnalysisComplete: true,
		AntiSpoofingVerified:  true,
	}, nil
}

func verified(name, address string) *faceapi.VerifyResult {
	confidence := 0.97
	return &faceapi.VerifyResult{Verified: true, Name: name, WalletAddress: address, Confidence: &confidence, UserID: "7"}
}

func newTestScan(v Verifier, opts ...Option) (*Scan, *toastRecorder) {
	toasts := &toastRecorder{}
	opts = append([]Option{WithoutAnimation(), WithNotifier(toasts), WithLiveness(false, 0)}, opts...)
	return NewScan(v, nil, zerolog.Nop(), opts...), toasts
}

func startScan(t *testing.T, f *Scan) {
	t.Helper()
	if err := f.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.Stage() != ScanScanning {
		t.Fatalf("expected scanning, got %s", f.Stage())
	}
}

func TestScan_VerifiedMovesToPayment(t *testing.T) {
	v := &fakeVerifier{result: verified("Jane", testWallet)}
	f, toasts := newTestScan(v)
	defer f.Close()
	startScan(t, f)

	if err := f.SubmitFace(context.Background(), []byte("face")); err != nil {
		t.Fatalf("SubmitFace() error = %v", err)
	}

	if f.Stage() != ScanPayment {
		t.Fatalf("expected payment stage, got %s", f.Stage())
	}
	r := f.Recipient()
	if r == nil {
		t.Fatal("expected a recipient")
	}
	if r.Name != "Jane" || r.WalletAddress != testWallet {
		t.Errorf("unexpected recipient %+v", r)
	}
	if r.ShortAddress != "0x71C7...976F" {
		t.Errorf("expected shortened address, got '%s'", r.ShortAddress)
	}
	if r.Confidence != "97%" || r.UserID != "7" {
		t.Errorf("unexpected confidence or id %+v", r)
	}
	if f.ActiveTracks() != 0 {
		t.Errorf("expected camera released on payment stage, got %d", f.ActiveTracks())
	}
	if toast := toasts.last(t); toast.Variant != VariantDefault {
		t.Errorf("expected success toast, got %+v", toast)
	}
}

func TestScan_ShortAddressKept(t *testing.T) {
	v := &fakeVerifier{result: verified("Jane", "0xabc")}
	f, _ := newTestScan(v)
	defer f.Close()
	startScan(t, f)

	if err := f.SubmitFace(context.Background(), []byte("face")); err != nil {
		t.Fatalf("SubmitFace() error = %v", err)
	}
	if f.Stage() != ScanPayment {
		t.Fatalf("expected payment stage, got %s", f.Stage())
	}
	if got := f.Snapshot().Recipient.ShortAddress; got != "0xabc" {
		t.Errorf("expected '0xabc', got '%s'", got)
	}
}

func TestScan_NotRecognized(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"default message", "", "Face not recognized. Please try again."},
		{"service message", "No matching user", "No matching user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{result: &faceapi.VerifyResult{Verified: false, Message: tt.message}}
			f, toasts := newTestScan(v)
			defer f.Close()
			startScan(t, f)

			err := f.SubmitFace(context.Background(), []byte("face"))

			if !errors.Is(err, ErrNotRecognized) {
				t.Fatalf("expected ErrNotRecognized, got %v", err)
			}
			if f.Stage() != ScanScanning {
				t.Errorf("expected to keep scanning, got %s", f.Stage())
			}
			if got := f.Snapshot().Error; got != tt.want {
				t.Errorf("expected error '%s', got '%s'", tt.want, got)
			}
			if f.Recipient() != nil {
				t.Error("expected no recipient")
			}
			if toast := toasts.last(t); toast.Description != tt.want {
				t.Errorf("unexpected toast %+v", toast)
			}
			if f.ActiveTracks() != 1 {
				t.Errorf("expected camera to stay open, got %d", f.ActiveTracks())
			}
		})
	}
}

func TestScan_ServiceErrorResets(t *testing.T) {
	v := &fakeVerifier{err: &faceapi.APIError{StatusCode: 500, Message: "Internal Server Error"}}
	f, toasts := newTestScan(v)
	defer f.Close()
	startScan(t, f)

	if err := f.SubmitFace(context.Background(), []byte("face")); err == nil {
		t.Fatal("expected error")
	}

	if f.Stage() != ScanInitial {
		t.Errorf("expected reset to initial, got %s", f.Stage())
	}
	if f.ActiveTracks() != 0 {
		t.Errorf("expected camera released, got %d", f.ActiveTracks())
	}
	if got := f.Snapshot().Error; got != "Internal Server Error" {
		t.Errorf("unexpected error '%s'", got)
	}
	if toast := toasts.last(t); toast.Variant != VariantDestructive {
		t.Errorf("expected destructive toast, got %+v", toast)
	}

	startScan(t, f)
	if got := f.Snapshot().Error; got != "" {
		t.Errorf("expected error cleared on restart, got '%s'", got)
	}
}

func TestScan_UsesLatestFrame(t *testing.T) {
	v := &fakeVerifier{result: verified("Jane", testWallet)}
	f, _ := newTestScan(v)
	defer f.Close()

	if err := f.PushFrame([]byte("early")); err == nil {
		t.Error("expected frame before scanning to be rejected")
	}
	startScan(t, f)
	if err := f.PushFrame([]byte("frame-1")); err != nil {
		t.Fatalf("PushFrame() error = %v", err)
	}
	if err := f.PushFrame([]byte("frame-2")); err != nil {
		t.Fatalf("PushFrame() error = %v", err)
	}

	if err := f.SubmitFace(context.Background(), nil); err != nil {
		t.Fatalf("SubmitFace() error = %v", err)
	}
	if len(v.images) != 1 || string(v.images[0]) != "frame-2" {
		t.Errorf("expected latest frame to be verified, got %q", v.images)
	}
}

func TestScan_ResultAfterCloseDiscarded(t *testing.T) {
	g := newGate()
	v := &fakeVerifier{gate: g, result: verified("Jane", testWallet)}
	f, toasts := newTestScan(v)
	startScan(t, f)

	errc := make(chan error, 1)
	go func() { errc <- f.SubmitFace(context.Background(), []byte("face")) }()
	g.awaitStarted(t)

	f.Close()
	close(g.release)

	if err := <-errc; !errors.Is(err, wizard.ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
	if f.Recipient() != nil {
		t.Error("expected stale result to be discarded")
	}
	if len(toasts.all()) != 0 {
		t.Errorf("expected no toast, got %+v", toasts.all())
	}
	if f.ActiveTracks() != 0 {
		t.Errorf("expected zero active tracks after teardown, got %d", f.ActiveTracks())
	}
}

func TestScan_ResultAfterRestartDiscarded(t *testing.T) {
	g := newGate()
	v := &fakeVerifier{gate: g, result: verified("Jane", testWallet)}
	f, _ := newTestScan(v)
	defer f.Close()
	startScan(t, f)

	errc := make(chan error, 1)
	go func() { errc <- f.SubmitFace(context.Background(), []byte("face")) }()
	g.awaitStarted(t)

	if err := f.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	close(g.release)

	if err := <-errc; !errors.Is(err, wizard.ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
	if f.Stage() != ScanInitial {
		t.Errorf("expected initial stage, got %s", f.Stage())
	}
}

func TestScan_StaleAcceptDropsRecipient(t *testing.T) {
	f, _ := newTestScan(&fakeVerifier{})
	defer f.Close()
	startScan(t, f)

	tok := f.machine.Token()
	if err := f.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	err := f.acceptRecipient(tok, &Recipient{Name: "Jane", WalletAddress: testWallet})
	if !errors.Is(err, wizard.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if r := f.Recipient(); r != nil {
		t.Errorf("expected recipient to be dropped, got %+v", r)
	}
	if f.Stage() != ScanInitial {
		t.Errorf("expected initial stage, got %s", f.Stage())
	}
}

func TestScan_StartWhileAnimating(t *testing.T) {
	sched := &manualScheduler{}
	f := NewScan(&fakeVerifier{}, nil, zerolog.Nop(), WithScheduler(sched.schedule), WithLiveness(false, 0))
	defer f.Close()

	if err := f.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.Start(); !errors.Is(err, wizard.ErrAnimating) {
		t.Errorf("expected ErrAnimating, got %v", err)
	}
	if n := sched.fire(); n != 1 {
		t.Fatalf("expected one pending commit, got %d", n)
	}
	if f.Stage() != ScanScanning {
		t.Errorf("expected scanning, got %s", f.Stage())
	}
}

func TestScan_CloseDuringBindLeavesNoTasks(t *testing.T) {
	for range 20 {
		f, _ := newTestScan(&fakeVerifier{}, WithProgressInterval(time.Millisecond))
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = f.Start()
		}()
		f.Close()
		<-done

		if f.ActiveTracks() != 0 {
			t.Fatalf("expected zero active tracks, got %d", f.ActiveTracks())
		}
		if f.Snapshot().CameraOpen {
			t.Fatal("expected camera to stay closed after Close")
		}
	}
}

func TestScan_StartTwice(t *testing.T) {
	f, _ := newTestScan(&fakeVerifier{})
	defer f.Close()
	startScan(t, f)

	if err := f.Start(); !errors.Is(err, ErrWrongStage) {
		t.Errorf("expected ErrWrongStage, got %v", err)
	}
}

func TestScan_ProgressEvents(t *testing.T) {
	f, _ := newTestScan(&fakeVerifier{}, WithProgressInterval(time.Millisecond))
	events := f.AddListener()
	startScan(t, f)

	ev := waitEvent(t, events, EventProgress)
	if percent, ok := ev.Data.(float64); !ok || percent <= 0 {
		t.Errorf("unexpected progress %v", ev.Data)
	}

	f.Close()
	if f.ActiveTracks() != 0 {
		t.Errorf("expected zero active tracks, got %d", f.ActiveTracks())
	}
}

func TestScan_LivenessEvents(t *testing.T) {
	toasts := &toastRecorder{}
	f := NewScan(&fakeVerifier{}, passingChecker{}, zerolog.Nop(),
		WithoutAnimation(), WithNotifier(toasts), WithLiveness(true, 5*time.Millisecond))
	events := f.AddListener()
	startScan(t, f)

	if err := f.PushFrame([]byte("frame")); err != nil {
		t.Fatalf("PushFrame() error = %v", err)
	}

	ev := waitEvent(t, events, EventLiveness)
	update, ok := ev.Data.(liveness.Update)
	if !ok {
		t.Fatalf("expected liveness.Update, got %T", ev.Data)
	}
	if !update.Passed {
		t.Errorf("expected liveness to pass, got %+v", update)
	}
	if live := f.Snapshot().Liveness; live == nil || !live.Passed() {
		t.Errorf("expected liveness in snapshot, got %+v", live)
	}

	f.Close()
	if f.ActiveTracks() != 0 {
		t.Errorf("expected zero active tracks, got %d", f.ActiveTracks())
	}
}
