package mocks

import (
	"sync"
	"time"
)

// Recorder is a mock implementation of metrics.Recorder.
type Recorder struct {
	mu sync.Mutex

	// Call tracking
	Calls struct {
		Revoked      int
		Dropped      int
		Swept        int
		Checked      int
		BackendError int
		Size         int
	}

	// Last observed values
	SweptTotal    int
	LastSize      int
	RevokedKinds  map[string]int
	BackendErrors map[string]int
	RevokedChecks int
}

// NewRecorder creates a new mock Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		RevokedKinds:  make(map[string]int),
		BackendErrors: make(map[string]int),
	}
}

func (m *Recorder) Revoked(backend, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Revoked++
	m.RevokedKinds[kind]++
}

func (m *Recorder) Dropped(backend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Dropped++
}

func (m *Recorder) Swept(backend string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Swept++
	m.SweptTotal += n
}

func (m *Recorder) Checked(backend string, revoked bool, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Checked++
	if revoked {
		m.RevokedChecks++
	}
}

func (m *Recorder) BackendError(backend, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.BackendError++
	m.BackendErrors[op]++
}

func (m *Recorder) Size(backend string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Size++
	m.LastSize = n
}

// DroppedCount returns the number of Dropped calls.
func (m *Recorder) DroppedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls.Dropped
}

// BackendErrorCount returns the number of BackendError calls for op.
func (m *Recorder) BackendErrorCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BackendErrors[op]
}
