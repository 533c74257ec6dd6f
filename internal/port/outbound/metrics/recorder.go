package metrics

import (
	"time"
)

// Recorder receives revocation registry measurements.
type Recorder interface {
	// Revoked counts a stored entry, kind is "token" or "barrier".
	Revoked(backend, kind string)

	// Dropped counts a revocation rejected because the store was full.
	Dropped(backend string)

	// Swept counts entries reclaimed by the background sweep.
	Swept(backend string, n int)

	// Checked observes a revocation lookup and its outcome.
	Checked(backend string, revoked bool, d time.Duration)

	// BackendError counts a failed backend operation.
	BackendError(backend, op string)

	// Size reports the current number of entries.
	Size(backend string, n int)
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) Revoked(string, string)              {}
func (Nop) Dropped(string)                      {}
func (Nop) Swept(string, int)                   {}
func (Nop) Checked(string, bool, time.Duration) {}
func (Nop) BackendError(string, string)         {}
func (Nop) Size(string, int)                    {}
