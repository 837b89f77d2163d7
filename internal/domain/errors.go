package domain

import "errors"

// Sentinel errors used throughout the application.
// The HTTP layer translates these to status codes via a single mapError function.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidKind         = errors.New("invalid kind")
	ErrInvalidPriority     = errors.New("invalid priority: must be low, medium, high, or critical")
	ErrInvalidEvent        = errors.New("event failed sanity checks")
	ErrImplausibleDuration = errors.New("event duration is negative or implausibly long")
	ErrRemoteUnreachable   = errors.New("remote store is unreachable")
	ErrSyncInProgress      = errors.New("a sync pass is already running")
)
