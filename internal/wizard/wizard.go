// Package wizard implements the forward-only, multi-stage state machine behind
// the enrollment, scan and payment flows.
//
// A Machine walks an ordered list of stages. Advancing runs the current stage's
// guard, then holds an "animating" sub-state for the stage's delay before the
// next stage is committed. While animating, further transitions are rejected,
// so duplicate triggers can neither skip nor repeat a stage. The last stage is
// terminal. Back and Reset jump to designated earlier stages.
//
// Every committed change bumps an epoch. Callers that start slow work take a
// Token first and apply the outcome with AdvanceIf or ResetIf, which fail with
// ErrStale when the machine moved on in the meantime.
package wizard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/blinkpay/internal/constants"
)

var (
	ErrTerminal  = errors.New("wizard is at its final stage")
	ErrAnimating = errors.New("stage transition already in progress")
	ErrClosed    = errors.New("wizard is closed")
	ErrStale     = errors.New("wizard state changed since the operation started")
	ErrNoBack    = errors.New("cannot go back from this stage")
	ErrNoStage   = errors.New("stage is not part of this wizard")
)

// ValidationError is returned when a stage guard rejects a transition.
// Title and Message are shown to the user as a single notification.
type ValidationError struct {
	Title   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Title + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(title, message string) *ValidationError {
	return &ValidationError{Title: title, Message: message}
}

// Guard validates the fields a stage requires before it may be left.
type Guard func() error

// Scheduler runs fn once after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fn func()) (stop func() bool)

// TimerScheduler schedules with time.AfterFunc.
func TimerScheduler(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// EventKind describes what happened to a machine.
type EventKind string

const (
	EventAnimating EventKind = "animating"
	EventAdvanced  EventKind = "advanced"
	EventBack      EventKind = "back"
	EventReset     EventKind = "reset"
	EventClosed    EventKind = "closed"
)

// Event is published on every state change.
type Event[S ~int] struct {
	Kind  EventKind
	From  S
	To    S
	Index int
	Epoch uint64
	Err   error
}

// Token identifies a machine state for conditional transitions.
type Token struct {
	epoch uint64
	index int
}

// State is a point-in-time view of a machine.
type State[S ~int] struct {
	Stage     S
	Index     int
	Animating bool
	Terminal  bool
	Closed    bool
}

// Option configures a Machine.
type Option[S ~int] func(*Machine[S])

// WithGuard registers the validation guard for leaving a stage.
func WithGuard[S ~int](stage S, g Guard) Option[S] {
	return func(m *Machine[S]) { m.guards[stage] = g }
}

// WithBack allows an unconditional backward transition from one stage to another.
func WithBack[S ~int](from, to S) Option[S] {
	return func(m *Machine[S]) { m.back[from] = to }
}

// WithDelay sets the default animating delay. Zero commits immediately.
func WithDelay[S ~int](d time.Duration) Option[S] {
	return func(m *Machine[S]) { m.delay = d }
}

// WithStageDelay overrides the animating delay used when leaving a stage.
func WithStageDelay[S ~int](stage S, d time.Duration) Option[S] {
	return func(m *Machine[S]) { m.stageDelay[stage] = d }
}

// WithScheduler replaces the timer used for delayed commits.
func WithScheduler[S ~int](s Scheduler) Option[S] {
	return func(m *Machine[S]) { m.schedule = s }
}

// WithHook registers a callback invoked after every state change, outside the
// machine lock, in the goroutine that caused the change.
func WithHook[S ~int](fn func(Event[S])) Option[S] {
	return func(m *Machine[S]) { m.hooks = append(m.hooks, fn) }
}

// Machine is a forward-only stage machine. It is safe for concurrent use.
type Machine[S ~int] struct {
	stages     []S
	guards     map[S]Guard
	back       map[S]S
	delay      time.Duration
	stageDelay map[S]time.Duration
	schedule   Scheduler
	hooks      []func(Event[S])

	mu        sync.Mutex
	index     int
	animating bool
	stopTimer func() bool
	epoch     uint64
	closed    bool
	listeners []chan Event[S]
}

// New creates a machine positioned at the first stage.
func New[S ~int](stages []S, opts ...Option[S]) *Machine[S] {
	if len(stages) == 0 {
		panic("wizard: at least one stage is required")
	}
	m := &Machine[S]{
		stages:     stages,
		guards:     make(map[S]Guard),
		back:       make(map[S]S),
		stageDelay: make(map[S]time.Duration),
		schedule:   TimerScheduler,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the committed stage.
func (m *Machine[S]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stages[m.index]
}

// Index returns the position of the committed stage.
func (m *Machine[S]) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Animating reports whether a forward transition is pending.
func (m *Machine[S]) Animating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.animating
}

// Snapshot returns the current state.
func (m *Machine[S]) Snapshot() State[S] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State[S]{
		Stage:     m.stages[m.index],
		Index:     m.index,
		Animating: m.animating,
		Terminal:  m.index == len(m.stages)-1,
		Closed:    m.closed,
	}
}

// Token captures the current state for a later AdvanceIf or ResetIf.
func (m *Machine[S]) Token() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Token{epoch: m.epoch, index: m.index}
}

// Valid reports whether nothing was committed since tok was taken.
func (m *Machine[S]) Valid(tok Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.epoch == tok.epoch && m.index == tok.index
}

// Advance validates the current stage and starts the transition to the next one.
func (m *Machine[S]) Advance() error {
	return m.advance(nil)
}

// AdvanceIf is Advance, applied only if the machine is still in the state tok captured.
func (m *Machine[S]) AdvanceIf(tok Token) error {
	return m.advance(&tok)
}

func (m *Machine[S]) advance(tok *Token) error {
	m.mu.Lock()
	if err := m.checkLocked(tok); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.index == len(m.stages)-1 {
		m.mu.Unlock()
		return ErrTerminal
	}
	if m.animating {
		m.mu.Unlock()
		return ErrAnimating
	}

	from := m.stages[m.index]
	if guard := m.guards[from]; guard != nil {
		if err := guard(); err != nil {
			m.mu.Unlock()
			return err
		}
	}

	d, ok := m.stageDelay[from]
	if !ok {
		d = m.delay
	}
	if d <= 0 {
		ev := m.commitLocked()
		m.mu.Unlock()
		m.runHooks(ev)
		return nil
	}

	m.animating = true
	epoch := m.epoch
	m.stopTimer = m.schedule(d, func() { m.commit(epoch) })
	ev := Event[S]{Kind: EventAnimating, From: from, To: m.stages[m.index+1], Index: m.index, Epoch: m.epoch}
	m.publishLocked(ev)
	m.mu.Unlock()
	m.runHooks(ev)
	return nil
}

func (m *Machine[S]) commit(epoch uint64) {
	m.mu.Lock()
	if m.closed || !m.animating || m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	ev := m.commitLocked()
	m.mu.Unlock()
	m.runHooks(ev)
}

func (m *Machine[S]) commitLocked() Event[S] {
	from := m.stages[m.index]
	m.index++
	m.animating = false
	m.stopTimer = nil
	m.epoch++
	ev := Event[S]{Kind: EventAdvanced, From: from, To: m.stages[m.index], Index: m.index, Epoch: m.epoch}
	m.publishLocked(ev)
	return ev
}

// Back performs the configured backward transition from the current stage.
// It has no guard and cancels a pending forward transition.
func (m *Machine[S]) Back() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	from := m.stages[m.index]
	to, ok := m.back[from]
	if !ok {
		m.mu.Unlock()
		return ErrNoBack
	}
	idx, err := m.indexOf(to)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	ev := m.jumpLocked(EventBack, idx, nil)
	m.mu.Unlock()
	m.runHooks(ev)
	return nil
}

// Reset jumps to an earlier stage after a failure. cause is published with the event.
func (m *Machine[S]) Reset(to S, cause error) error {
	return m.reset(nil, to, cause)
}

// ResetIf is Reset, applied only if the machine is still in the state tok captured.
func (m *Machine[S]) ResetIf(tok Token, to S, cause error) error {
	return m.reset(&tok, to, cause)
}

func (m *Machine[S]) reset(tok *Token, to S, cause error) error {
	m.mu.Lock()
	if err := m.checkLocked(tok); err != nil {
		m.mu.Unlock()
		return err
	}
	idx, err := m.indexOf(to)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if idx > m.index {
		m.mu.Unlock()
		return fmt.Errorf("reset to a later stage %d from %d: %w", idx, m.index, ErrNoStage)
	}
	ev := m.jumpLocked(EventReset, idx, cause)
	m.mu.Unlock()
	m.runHooks(ev)
	return nil
}

func (m *Machine[S]) jumpLocked(kind EventKind, idx int, cause error) Event[S] {
	m.cancelTimerLocked()
	from := m.stages[m.index]
	m.index = idx
	m.epoch++
	ev := Event[S]{Kind: kind, From: from, To: m.stages[idx], Index: idx, Epoch: m.epoch, Err: cause}
	m.publishLocked(ev)
	return ev
}

// Close tears the machine down. Pending transitions are cancelled, listeners
// are closed and every later operation fails with ErrClosed.
func (m *Machine[S]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.cancelTimerLocked()
	m.closed = true
	m.epoch++
	stage := m.stages[m.index]
	ev := Event[S]{Kind: EventClosed, From: stage, To: stage, Index: m.index, Epoch: m.epoch}
	m.publishLocked(ev)
	for _, ch := range m.listeners {
		close(ch)
	}
	m.listeners = nil
	m.mu.Unlock()
	m.runHooks(ev)
}

// Subscribe returns a channel receiving every state change. Events are dropped
// when the channel buffer is full. The channel is closed by Close or Unsubscribe.
func (m *Machine[S]) Subscribe() <-chan Event[S] {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event[S], constants.EventChannelBuffer)
	if m.closed {
		close(ch)
		return ch
	}
	m.listeners = append(m.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (m *Machine[S]) Unsubscribe(ch <-chan Event[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, listener := range m.listeners {
		if listener == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(listener)
			return
		}
	}
}

func (m *Machine[S]) checkLocked(tok *Token) error {
	if m.closed {
		return ErrClosed
	}
	if tok != nil && (tok.epoch != m.epoch || tok.index != m.index) {
		return ErrStale
	}
	return nil
}

func (m *Machine[S]) cancelTimerLocked() {
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
	m.animating = false
}

func (m *Machine[S]) indexOf(stage S) (int, error) {
	for i, s := range m.stages {
		if s == stage {
			return i, nil
		}
	}
	return 0, ErrNoStage
}

func (m *Machine[S]) publishLocked(ev Event[S]) {
	for _, listener := range m.listeners {
		select {
		case listener <- ev:
		default:
			// Listener buffer full, skip.
		}
	}
}

func (m *Machine[S]) runHooks(ev Event[S]) {
	for _, hook := range m.hooks {
		hook(ev)
	}
}
