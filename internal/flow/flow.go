// Package flow implements the enrollment, scan and payment wizards on top of
// the wizard state machine and the face, wallet and camera collaborators.
//
// Flow methods never hold the flow lock while calling into the machine:
// guards and hooks take that lock themselves.
package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/wizard"
)

// ErrBusy is returned when a collaborator call for the flow is already running.
var ErrBusy = errors.New("a request for this flow is already in progress")

// ErrWrongStage is returned when an operation is not available at the current stage.
var ErrWrongStage = errors.New("operation not available at this stage")

// Kind names a flow type.
type Kind string

const (
	KindEnrollment Kind = "enrollment"
	KindScan       Kind = "scan"
	KindPayment    Kind = "payment"
)

// Flow is the lifecycle shared by all flows.
type Flow interface {
	FlowID() string
	FlowKind() Kind
	AddListener() chan Event
	RemoveListener(ch chan Event)
	Close()
}

// base carries what every flow has: an id, an event stream, toasts and a lifetime.
type base struct {
	EventBroadcaster

	id   string
	kind Kind
	opts options
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	toastMu   sync.Mutex
	lastToast *Toast
}

func newBase(kind Kind, log zerolog.Logger, opts []Option) base {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return base{
		id:     id,
		kind:   kind,
		opts:   buildOptions(opts),
		log:    log.With().Str("flow", string(kind)).Str("flow_id", id).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// FlowID returns the flow's identifier.
func (b *base) FlowID() string { return b.id }

// FlowKind returns the flow's kind.
func (b *base) FlowKind() Kind { return b.kind }

func (b *base) notify(t Toast) {
	b.toastMu.Lock()
	b.lastToast = &t
	b.toastMu.Unlock()

	if b.opts.notifier != nil {
		b.opts.notifier.Notify(t)
	}
	b.SendEvent(Event{Type: EventToast, Message: t.Title, Data: t})
}

// LastToast returns the most recent toast, if any.
func (b *base) LastToast() *Toast {
	b.toastMu.Lock()
	defer b.toastMu.Unlock()
	if b.lastToast == nil {
		return nil
	}
	t := *b.lastToast
	return &t
}

// rejectValidation turns a guard failure into exactly one toast.
func (b *base) rejectValidation(err error) error {
	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		b.notify(failure(verr.Title, verr.Message))
	}
	return err
}

// shutdown ends the flow's lifetime and closes the event stream.
func (b *base) shutdown() {
	b.cancel()
	b.closeListeners()
}

// stageName returns the API name of a stage.
func stageName[S ~int](names []string, s S) string {
	if int(s) < 0 || int(s) >= len(names) {
		return "unknown"
	}
	return names[s]
}

// ready reports whether m rests at stage s. While a transition away from s is
// animating the stage's draft is already validated and must not change.
func ready[S ~int](m *wizard.Machine[S], s S) error {
	st := m.Snapshot()
	switch {
	case st.Closed:
		return wizard.ErrClosed
	case st.Stage != s:
		return ErrWrongStage
	case st.Animating:
		return wizard.ErrAnimating
	}
	return nil
}
