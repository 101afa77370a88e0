package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/liveness"
	"github.com/kozaktomas/blinkpay/internal/wallet"
	"github.com/kozaktomas/blinkpay/internal/wizard"
)

// EnrollStage is a step of the enrollment wizard.
type EnrollStage int

const (
	EnrollInfo EnrollStage = iota
	EnrollWalletConnect
	EnrollFaceScan
	EnrollComplete
)

var enrollStageNames = []string{"info", "wallet", "face_scan", "complete"}

func (s EnrollStage) String() string { return stageName(enrollStageNames, s) }

// Enroller registers a user with the face service.
type Enroller interface {
	Enroll(ctx context.Context, req faceapi.EnrollRequest) (*faceapi.EnrollResult, error)
}

// EnrollmentState is a snapshot of an enrollment flow.
type EnrollmentState struct {
	ID            string                  `json:"id"`
	Stage         string                  `json:"stage"`
	StageIndex    int                     `json:"stage_index"`
	Animating     bool                    `json:"animating"`
	Name          string                  `json:"name"`
	Email         string                  `json:"email"`
	WalletAddress string                  `json:"wallet_address,omitempty"`
	WalletShort   string                  `json:"wallet_short,omitempty"`
	Submitting    bool                    `json:"submitting"`
	CameraOpen    bool                    `json:"camera_open"`
	Progress      float64                 `json:"progress"`
	Liveness      *faceapi.LivenessResult `json:"liveness,omitempty"`
	EnrolledName  string                  `json:"enrolled_name,omitempty"`
	UserID        string                  `json:"user_id,omitempty"`
	Toast         *Toast                  `json:"toast,omitempty"`
}

// Enrollment collects a user's identity, wallet and face and registers them.
type Enrollment struct {
	base

	machine  *wizard.Machine[EnrollStage]
	enroller Enroller
	capture  *capture

	mu           sync.Mutex
	name         string
	email        string
	address      string
	submitting   bool
	enrolledName string
	userID       string
}

// NewEnrollment creates an enrollment flow positioned at the info stage.
// checker may be nil to disable liveness polling during the face scan.
func NewEnrollment(enroller Enroller, checker liveness.Checker, log zerolog.Logger, opts ...Option) *Enrollment {
	f := &Enrollment{
		base:     newBase(KindEnrollment, log, opts),
		enroller: enroller,
	}
	f.capture = newCapture(checker, f.opts, f.log, f.SendEvent)

	f.machine = wizard.New(
		[]EnrollStage{EnrollInfo, EnrollWalletConnect, EnrollFaceScan, EnrollComplete},
		wizard.WithDelay[EnrollStage](f.opts.delay(constants.EnrollmentAnimationDelay)),
		wizard.WithScheduler[EnrollStage](f.opts.scheduler),
		wizard.WithGuard(EnrollInfo, f.infoGuard),
		wizard.WithGuard(EnrollWalletConnect, f.walletGuard),
		wizard.WithGuard(EnrollFaceScan, f.faceGuard),
		wizard.WithHook(f.onStage),
	)
	return f
}

func (f *Enrollment) infoGuard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.name == "" || f.email == "" {
		return wizard.Invalid("Missing information", "Please provide your name and email to continue.")
	}
	return nil
}

func (f *Enrollment) walletGuard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !wallet.ValidAddress(f.address) {
		return wizard.Invalid("Wallet not connected", "Please connect a valid wallet address to continue.")
	}
	return nil
}

// faceGuard keeps the face stage until the upload succeeded.
func (f *Enrollment) faceGuard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userID == "" && f.enrolledName == "" {
		return wizard.Invalid("Face scan required", "Please complete the face scan to finish enrollment.")
	}
	return nil
}

// onStage binds the camera, liveness polling and progress ticks to the face scan stage.
func (f *Enrollment) onStage(ev wizard.Event[EnrollStage]) {
	if ev.Kind == wizard.EventAnimating {
		f.SendEvent(Event{Type: EventState, Data: f.Snapshot()})
		return
	}
	f.capture.bind(f.ctx, ev.Kind != wizard.EventClosed && ev.To == EnrollFaceScan)
	f.SendEvent(Event{Type: EventState, Data: f.Snapshot()})
}

// SetInfo stores the name and email entered on the info stage. It is
// rejected while the stage is already animating towards the next one.
func (f *Enrollment) SetInfo(name, email string) error {
	if err := ready(f.machine, EnrollInfo); err != nil {
		return err
	}
	f.mu.Lock()
	f.name = strings.TrimSpace(name)
	f.email = strings.TrimSpace(email)
	f.mu.Unlock()
	return nil
}

// ConnectWallet stores the wallet address on the wallet stage.
func (f *Enrollment) ConnectWallet(address string) error {
	if err := ready(f.machine, EnrollWalletConnect); err != nil {
		return err
	}
	f.mu.Lock()
	f.address = strings.TrimSpace(address)
	f.mu.Unlock()
	return nil
}

// Continue validates the current stage and moves to the next one.
// A guard failure raises exactly one toast and leaves the state unchanged.
func (f *Enrollment) Continue() error {
	if err := f.machine.Advance(); err != nil {
		return f.rejectValidation(err)
	}
	return nil
}

// PushFrame stores a camera frame from the browser.
func (f *Enrollment) PushFrame(data []byte) error {
	return f.capture.frames.Push(data)
}

// SubmitFace uploads the face together with the collected identity. A nil
// image uses the latest camera frame. On failure the flow returns to the info
// stage with an empty draft. A result that arrives after the flow moved on or
// was closed is discarded.
func (f *Enrollment) SubmitFace(ctx context.Context, image []byte) error {
	tok := f.machine.Token()
	if f.machine.Current() != EnrollFaceScan || f.machine.Animating() {
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
	if f.submitting {
		f.mu.Unlock()
		return ErrBusy
	}
	f.submitting = true
	req := faceapi.EnrollRequest{Name: f.name, Email: f.email, WalletAddress: f.address, Image: image}
	f.mu.Unlock()
	f.SendEvent(Event{Type: EventState, Data: f.Snapshot()})

	result, err := f.enroller.Enroll(context.WithoutCancel(ctx), req)

	f.mu.Lock()
	f.submitting = false
	f.mu.Unlock()

	if !f.machine.Valid(tok) {
		f.log.Info().Err(err).Msg("discarding enrollment result for a stale flow")
		return wizard.ErrStale
	}

	if err != nil {
		if rerr := f.machine.ResetIf(tok, EnrollInfo, err); rerr != nil {
			return rerr
		}
		f.clearDraft(false)
		f.notify(failure("Enrollment Failed", enrollErrorMessage(err)))
		return err
	}

	f.mu.Lock()
	f.enrolledName = req.Name
	f.userID = string(result.UserID)
	f.mu.Unlock()

	if err := f.machine.AdvanceIf(tok); err != nil {
		return err
	}
	f.clearDraft(true)
	f.notify(success("Enrollment Complete", "Your face biometrics have been securely registered."))
	f.log.Info().Str("user_id", string(result.UserID)).Msg("enrollment complete")
	return nil
}

func enrollErrorMessage(err error) string {
	var apiErr *faceapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// clearDraft discards the collected identity. keepResult preserves what the
// service returned for the completion page.
func (f *Enrollment) clearDraft(keepResult bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name, f.email, f.address = "", "", ""
	if !keepResult {
		f.enrolledName, f.userID = "", ""
	}
}

// Stage returns the committed stage.
func (f *Enrollment) Stage() EnrollStage {
	return f.machine.Current()
}

// ActiveTracks reports open camera streams.
func (f *Enrollment) ActiveTracks() int {
	return f.capture.camera.ActiveTracks()
}

// Snapshot returns the flow's current state.
func (f *Enrollment) Snapshot() EnrollmentState {
	st := f.machine.Snapshot()
	progress, live := f.capture.state()
	f.mu.Lock()
	defer f.mu.Unlock()
	return EnrollmentState{
		ID:            f.id,
		Stage:         st.Stage.String(),
		StageIndex:    st.Index,
		Animating:     st.Animating,
		Name:          f.name,
		Email:         f.email,
		WalletAddress: f.address,
		WalletShort:   wallet.Shorten(f.address),
		Submitting:    f.submitting,
		CameraOpen:    f.capture.camera.Open(),
		Progress:      progress,
		Liveness:      live,
		EnrolledName:  f.enrolledName,
		UserID:        f.userID,
		Toast:         f.LastToast(),
	}
}

// Close tears the flow down and releases the camera.
func (f *Enrollment) Close() {
	f.machine.Close()
	f.capture.close()
	f.shutdown()
}
