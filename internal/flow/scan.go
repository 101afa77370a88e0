package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/liveness"
	"github.com/kozaktomas/blinkpay/internal/wallet"
	"github.com/kozaktomas/blinkpay/internal/wizard"
)

// ScanStage is a step of the pay-by-face scan wizard.
type ScanStage int

const (
	ScanInitial ScanStage = iota
	ScanScanning
	ScanPayment
)

var scanStageNames = []string{"initial", "scanning", "payment"}

func (s ScanStage) String() string { return stageName(scanStageNames, s) }

// ErrNotRecognized is returned when the service did not match the face.
var ErrNotRecognized = errors.New("face not recognized")

const notRecognizedMessage = "Face not recognized. Please try again."

// Verifier matches a face against enrolled users.
type Verifier interface {
	Verify(ctx context.Context, image []byte) (*faceapi.VerifyResult, error)
}

// Recipient is the verified owner of a scanned face.
type Recipient struct {
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
	ShortAddress  string `json:"short_address"`
	Confidence    string `json:"confidence,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// ScanState is a snapshot of a scan flow.
type ScanState struct {
	ID         string                  `json:"id"`
	Stage      string                  `json:"stage"`
	StageIndex int                     `json:"stage_index"`
	Animating  bool                    `json:"animating"`
	Verifying  bool                    `json:"verifying"`
	CameraOpen bool                    `json:"camera_open"`
	Progress   float64                 `json:"progress"`
	Liveness   *faceapi.LivenessResult `json:"liveness,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Recipient  *Recipient              `json:"recipient,omitempty"`
	Toast      *Toast                  `json:"toast,omitempty"`
}

// Scan captures a face, resolves it to a recipient and hands over to payment.
type Scan struct {
	base

	machine  *wizard.Machine[ScanStage]
	verifier Verifier
	capture  *capture

	mu        sync.Mutex
	verifying bool
	recipient *Recipient
	errMsg    string
}

// NewScan creates a scan flow. checker may be nil to disable liveness polling.
func NewScan(verifier Verifier, checker liveness.Checker, log zerolog.Logger, opts ...Option) *Scan {
	f := &Scan{
		base:     newBase(KindScan, log, opts),
		verifier: verifier,
	}
	f.capture = newCapture(checker, f.opts, f.log, f.SendEvent)

	f.machine = wizard.New(
		[]ScanStage{ScanInitial, ScanScanning, ScanPayment},
		wizard.WithScheduler[ScanStage](f.opts.scheduler),
		wizard.WithStageDelay(ScanInitial, f.opts.delay(constants.ScanStartDelay)),
		wizard.WithStageDelay(ScanScanning, f.opts.delay(constants.ScanVerifiedDelay)),
		wizard.WithGuard(ScanScanning, f.recipientGuard),
		wizard.WithHook(f.onStage),
	)
	return f
}

func (f *Scan) recipientGuard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recipient == nil {
		return wizard.Invalid("Face scan required", notRecognizedMessage)
	}
	return nil
}

// onStage binds the camera, liveness polling and progress ticks to the scanning stage.
func (f *Scan) onStage(ev wizard.Event[ScanStage]) {
	if ev.Kind == wizard.EventAnimating {
		f.SendEvent(Event{Type: EventState, Data: f.Snapshot()})
		return
	}
	f.capture.bind(f.ctx, ev.Kind != wizard.EventClosed && ev.To == ScanScanning)
	f.SendEvent(Event{Type: EventState, Data: f.Snapshot()})
}

// Start begins scanning.
func (f *Scan) Start() error {
	if err := ready(f.machine, ScanInitial); err != nil {
		return err
	}
	f.mu.Lock()
	f.errMsg = ""
	f.recipient = nil
	f.mu.Unlock()

	if err := f.machine.Advance(); err != nil {
		return f.rejectValidation(err)
	}
	return nil
}

// PushFrame stores a camera frame from the browser.
func (f *Scan) PushFrame(data []byte) error {
	return f.capture.frames.Push(data)
}

// SubmitFace verifies a face. A nil image uses the latest camera frame.
// A recognized face moves the flow to the payment stage. An unrecognized face
// keeps scanning and returns ErrNotRecognized. A failing service resets the
// flow to the initial stage. Results arriving after the flow moved on or was
// closed are discarded.
func (f *Scan) SubmitFace(ctx context.Context, image []byte) error {
	tok := f.machine.Token()
	if f.machine.Current() != ScanScanning || f.machine.Animating() {
		return ErrWrongStage
	}

	if image == nil {
		frame, err := f.capture.latest()
		if err != nil {
			return fmt.Errorf("no face captured: %w", err)
		}
		image = frame.Data
	}

	f.mu.Lock()
	if f.verifying {
		f.mu.Unlock()
		return ErrBusy
	}
	f.verifying = true
	f.errMsg = ""
	f.mu.Unlock()
	f.SendEvent(Event{Type: EventState, Data: f.Snapshot()})

	result, err := f.verifier.Verify(context.WithoutCancel(ctx), image)

	f.mu.Lock()
	f.verifying = false
	f.mu.Unlock()

	if !f.machine.Valid(tok) {
		f.log.Info().Err(err).Msg("discarding verification result for a stale flow")
		return wizard.ErrStale
	}

	if err != nil {
		msg := enrollErrorMessage(err)
		if rerr := f.machine.ResetIf(tok, ScanInitial, err); rerr != nil {
			return rerr
		}
		f.setError(msg)
		f.notify(failure("Verification Failed", msg))
		return err
	}

	if !result.Verified {
		msg := result.Message
		if msg == "" {
			msg = notRecognizedMessage
		}
		f.setError(msg)
		f.notify(failure("Face not recognized", msg))
		f.SendEvent(Event{Type: EventState, Data: f.Snapshot()})
		return ErrNotRecognized
	}

	recipient := &Recipient{
		Name:          result.Name,
		WalletAddress: result.WalletAddress,
		ShortAddress:  wallet.Shorten(result.WalletAddress),
		Confidence:    result.ConfidencePercent(),
		UserID:        string(result.UserID),
	}
	if err := f.acceptRecipient(tok, recipient); err != nil {
		return err
	}
	f.notify(success("Face Verified", fmt.Sprintf("Identity confirmed: %s", recipient.Name)))
	f.log.Info().Str("user_id", recipient.UserID).Str("wallet", recipient.ShortAddress).Msg("face verified")
	return nil
}

// acceptRecipient records a verified recipient and moves on to payment. The
// recipient is dropped again when the flow changed since tok was taken.
func (f *Scan) acceptRecipient(tok wizard.Token, r *Recipient) error {
	f.mu.Lock()
	f.recipient = r
	f.mu.Unlock()

	if err := f.machine.AdvanceIf(tok); err != nil {
		f.mu.Lock()
		if f.recipient == r {
			f.recipient = nil
		}
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *Scan) setError(msg string) {
	f.mu.Lock()
	f.errMsg = msg
	f.mu.Unlock()
}

// Restart returns to the initial stage and forgets the recipient.
func (f *Scan) Restart() error {
	if err := f.machine.Reset(ScanInitial, nil); err != nil {
		return err
	}
	f.mu.Lock()
	f.recipient = nil
	f.errMsg = ""
	f.mu.Unlock()
	return nil
}

// Recipient returns the verified recipient, or nil before verification.
func (f *Scan) Recipient() *Recipient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recipient == nil {
		return nil
	}
	r := *f.recipient
	return &r
}

// Stage returns the committed stage.
func (f *Scan) Stage() ScanStage {
	return f.machine.Current()
}

// ActiveTracks reports open camera streams.
func (f *Scan) ActiveTracks() int {
	return f.capture.camera.ActiveTracks()
}

// Snapshot returns the flow's current state.
func (f *Scan) Snapshot() ScanState {
	st := f.machine.Snapshot()
	progress, live := f.capture.state()
	f.mu.Lock()
	defer f.mu.Unlock()
	state := ScanState{
		ID:         f.id,
		Stage:      st.Stage.String(),
		StageIndex: st.Index,
		Animating:  st.Animating,
		Verifying:  f.verifying,
		CameraOpen: f.capture.camera.Open(),
		Progress:   progress,
		Liveness:   live,
		Error:      f.errMsg,
		Toast:      f.LastToast(),
	}
	if f.recipient != nil {
		r := *f.recipient
		state.Recipient = &r
	}
	return state
}

// Close tears the flow down. Background tasks are stopped and the camera is
// released before Close returns.
func (f *Scan) Close() {
	f.machine.Close()
	f.capture.close()
	f.shutdown()
}
