// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Handler constants
const (
	// MaxMultipartMemory is the memory budget for parsing multipart uploads
	MaxMultipartMemory = 12 << 20

	// MaxTransactionPageSize caps the dashboard page size query parameter
	MaxTransactionPageSize = 100

	// SessionDuration is how long an anonymous browser session stays valid
	SessionDuration = 24 * time.Hour

	// SessionCleanupInterval is the period of the expired session reaper
	SessionCleanupInterval = 10 * time.Minute
)
