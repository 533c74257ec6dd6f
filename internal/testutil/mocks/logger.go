package mocks

import (
	"sync"

	"github.com/0xsj/overwatch-pkg/log"
)

// LogEntry is a single captured log call.
type LogEntry struct {
	Level   string
	Message string
	Fields  []log.Field
}

// Logger is a capturing mock of log.Logger. Levels other than Info, Warn
// and Error fall through to the embedded logger, which is nil unless set.
type Logger struct {
	log.Logger

	mu      sync.Mutex
	entries []LogEntry
}

// NewLogger creates a new mock Logger.
func NewLogger() *Logger {
	return &Logger{}
}

func (m *Logger) Info(msg string, fields ...log.Field) {
	m.record("info", msg, fields)
}

func (m *Logger) Warn(msg string, fields ...log.Field) {
	m.record("warn", msg, fields)
}

func (m *Logger) Error(msg string, fields ...log.Field) {
	m.record("error", msg, fields)
}

func (m *Logger) record(level, msg string, fields []log.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, LogEntry{Level: level, Message: msg, Fields: fields})
}

// Entries returns the captured entries at the given level.
func (m *Logger) Entries(level string) []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []LogEntry
	for _, e := range m.entries {
		if e.Level == level {
			result = append(result, e)
		}
	}
	return result
}

// WarnCount returns the number of captured warnings.
func (m *Logger) WarnCount() int {
	return len(m.Entries("warn"))
}
