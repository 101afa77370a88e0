package flow

import (
	"time"

	"github.com/kozaktomas/blinkpay/internal/config"
	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/database"
	"github.com/kozaktomas/blinkpay/internal/wizard"
)

type options struct {
	notifier         Notifier
	scheduler        wizard.Scheduler
	animate          bool
	livenessEnabled  bool
	livenessInterval time.Duration
	progressInterval time.Duration
	maxFrameBytes    int
	ledger           database.TransactionStore
	sessionID        string
	network          config.Network
	from             string
	waitReceipt      bool
}

func defaultOptions() options {
	return options{
		scheduler:        wizard.TimerScheduler,
		animate:          true,
		livenessEnabled:  true,
		livenessInterval: constants.LivenessPollInterval,
		progressInterval: constants.ProgressTickInterval,
		maxFrameBytes:    constants.MaxFrameBytes,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// delay returns d, or zero when animations are disabled.
func (o options) delay(d time.Duration) time.Duration {
	if !o.animate {
		return 0
	}
	return d
}

// Option configures a flow.
type Option func(*options)

// WithNotifier delivers toasts to n in addition to the event stream.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithScheduler replaces the timer used for stage animations.
func WithScheduler(s wizard.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithoutAnimation commits stage transitions immediately.
func WithoutAnimation() Option {
	return func(o *options) { o.animate = false }
}

// WithLiveness enables or disables liveness polling during scanning.
func WithLiveness(enabled bool, interval time.Duration) Option {
	return func(o *options) {
		o.livenessEnabled = enabled
		if interval > 0 {
			o.livenessInterval = interval
		}
	}
}

// WithProgressInterval sets the scan progress tick.
func WithProgressInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.progressInterval = d
		}
	}
}

// WithLedger records broadcast payments for a session.
func WithLedger(store database.TransactionStore, sessionID string) Option {
	return func(o *options) {
		o.ledger = store
		o.sessionID = sessionID
	}
}

// WithNetwork sets the chain payments are sent on.
func WithNetwork(n config.Network) Option {
	return func(o *options) { o.network = n }
}

// WithSender selects the wallet account payments are sent from.
func WithSender(from string) Option {
	return func(o *options) { o.from = from }
}

// WithReceiptWait makes payments wait for the transaction to be mined.
func WithReceiptWait(wait bool) Option {
	return func(o *options) { o.waitReceipt = wait }
}
