// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Wizard transition constants
const (
	// EnrollmentAnimationDelay is how long an enrollment stage change stays in the animating sub-state
	EnrollmentAnimationDelay = 600 * time.Millisecond

	// ScanStartDelay is the animating delay when a scan moves from the intro to the scanner
	ScanStartDelay = 300 * time.Millisecond

	// ScanVerifiedDelay is the pause between a positive match and the payment stage
	ScanVerifiedDelay = 1000 * time.Millisecond

	// PaymentAnimationDelay is the animating delay between payment stages
	PaymentAnimationDelay = 300 * time.Millisecond

	// PaymentCompletionDelay is the pause after the last processing step before completion
	PaymentCompletionDelay = 1500 * time.Millisecond
)

// Scanning constants
const (
	// LivenessPollInterval is the period of the liveness check loop
	LivenessPollInterval = 2 * time.Second

	// ProgressTickInterval is the period of the scan progress bar ticker
	ProgressTickInterval = 100 * time.Millisecond

	// ProgressStep is the percentage added on every progress tick (3s to reach 100%)
	ProgressStep = 3.33

	// MaxFrameBytes is the largest face image accepted from a browser upload
	MaxFrameBytes = 10 << 20

	// FaceScanFileName is the multipart file name used when uploading a captured face
	FaceScanFileName = "face_scan.jpg"
)

// Payment constants
const (
	// DefaultPaymentAmount is the amount pre-filled in a new payment draft
	DefaultPaymentAmount = "0.05"

	// DisplayNetworkFee is the fee shown on the confirmation summary (native unit)
	DisplayNetworkFee = "0.0005"

	// NativeDecimals is the number of decimals of the native chain unit (wei per ether)
	NativeDecimals = 18

	// ReceiptPollInterval is the period used when waiting for a transaction receipt
	ReceiptPollInterval = 2 * time.Second

	// DefaultReceiptTimeout bounds how long a payment waits for its receipt
	DefaultReceiptTimeout = 2 * time.Minute
)

// Event constants
const (
	// EventChannelBuffer is the buffer size for event listener channels
	EventChannelBuffer = 100
)

// Dashboard constants
const (
	// DefaultTransactionPageSize is the default number of transactions per dashboard page
	DefaultTransactionPageSize = 5

	// SpendingChartDays is the number of days shown in the spending chart
	SpendingChartDays = 7
)
