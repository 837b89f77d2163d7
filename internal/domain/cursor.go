package domain

import "time"

// SyncCursor marks how far an incremental fetch has progressed on one
// logical event stream. The token is opaque to everything but the event
// source; Represents is the wall-clock position it encodes, used for
// monotonicity checks and diagnostics.
//
// A cursor is replaced atomically after a fetch batch is fully handled.
// It never moves partway through a batch.
type SyncCursor struct {
	Stream     string    `json:"stream"`
	Token      string    `json:"token"`
	Represents time.Time `json:"represents"`
}
