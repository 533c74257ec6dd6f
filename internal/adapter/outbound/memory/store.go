package memory

import (
	"context"
	"sync"
	"time"

	"github.com/0xsj/overwatch-pkg/log"

	"github.com/0xsj/overwatch-revocation/internal/domain/model"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/metrics"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/store"
)

const (
	// MaxEntries is the default capacity of the store.
	MaxEntries = 10000

	// DefaultSweepInterval is how often expired entries are reclaimed.
	DefaultSweepInterval = time.Minute

	// cleanupRatio sets the size, as a fraction of capacity, above which a
	// write sweeps expired entries before inserting.
	cleanupRatio = 0.9
)

// Option configures a Store.
type Option func(*Store)

// WithMaxEntries sets the store capacity. Non-positive values are ignored.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithSweepInterval sets the background sweep period. Non-positive values are ignored.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for capacity and sweep reports.
func WithLogger(logger log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Store is a fixed-capacity, in-process revocation store.
//
// Reads always compare ExpiresAt against the current time, so the
// background sweep only reclaims memory. When the store is full after a
// sweep, new identifiers are dropped rather than evicting live entries.
type Store struct {
	mu      sync.Mutex
	entries map[string]model.Entry
	sweeper *sweeper
	closed  bool

	maxEntries       int
	cleanupThreshold int
	sweepInterval    time.Duration
	now              func() time.Time
	logger           log.Logger
	recorder         metrics.Recorder
}

var _ store.Store = (*Store)(nil)

// New creates a new in-process Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:       make(map[string]model.Entry),
		maxEntries:    MaxEntries,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		recorder:      metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cleanupThreshold = int(float64(s.maxEntries) * cleanupRatio)
	if s.cleanupThreshold < 1 {
		s.cleanupThreshold = 1
	}

	return s
}

func (s *Store) Backend() store.Backend {
	return store.BackendMemory
}

func (s *Store) RevokeToken(ctx context.Context, identifier string, expiresAt time.Time, reason string) error {
	if identifier == "" {
		return nil
	}

	now := s.now()
	if !now.Before(expiresAt) {
		return nil
	}

	s.put(model.NewTokenEntry(identifier, expiresAt, reason), now)
	return nil
}

func (s *Store) RevokeAllUserTokens(ctx context.Context, userID string, maxTokenLifetime time.Duration, reason string) error {
	if userID == "" || maxTokenLifetime <= 0 {
		return nil
	}

	now := s.now()
	s.put(model.NewBarrierEntry(userID, now, maxTokenLifetime, reason), now)
	return nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, userID string, issuedAt int64) (bool, error) {
	if userID == "" {
		return false, nil
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.liveLocked(model.Identifier(userID, issuedAt), now); ok && !entry.IsBarrier() {
		return true, nil
	}

	if barrier, ok := s.liveLocked(model.BarrierIdentifier(userID), now); ok {
		return barrier.Revokes(issuedAt), nil
	}

	return false, nil
}

func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var stats model.Stats
	for _, entry := range s.entries {
		if entry.IsExpired(now) {
			continue
		}
		stats.Observe(entry.ExpiresAt)
	}
	return stats, nil
}

// Clear removes every entry and stops the background sweep. The sweep
// starts again with the next write.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]model.Entry)
	sw := s.sweeper
	s.sweeper = nil
	s.mu.Unlock()

	sw.stop()
	s.recorder.Size(string(store.BackendMemory), 0)
	return nil
}

// Close stops the background sweep. Entries stay readable.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	sw := s.sweeper
	s.sweeper = nil
	s.mu.Unlock()

	sw.stop()
	return nil
}

// Len returns the number of physically stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	removed := s.purgeExpiredLocked(now)
	size := len(s.entries)
	s.mu.Unlock()

	if removed > 0 {
		s.recorder.Swept(string(store.BackendMemory), removed)
	}
	s.recorder.Size(string(store.BackendMemory), size)
	return removed
}

func (s *Store) put(entry model.Entry, now time.Time) {
	s.mu.Lock()
	stored, swept := s.insertLocked(entry, now)
	size := len(s.entries)
	s.mu.Unlock()

	backend := string(store.BackendMemory)
	if swept > 0 {
		s.recorder.Swept(backend, swept)
	}
	s.recorder.Size(backend, size)

	if !stored {
		s.recorder.Dropped(backend)
		if s.logger != nil {
			s.logger.Warn("revocation store at capacity, dropping revocation",
				log.String("identifier", entry.Identifier),
				log.Any("max_entries", s.maxEntries),
				log.Any("expires_at", entry.ExpiresAt),
			)
		}
		return
	}

	kind := "token"
	if entry.IsBarrier() {
		kind = "barrier"
	}
	s.recorder.Revoked(backend, kind)
}

// insertLocked stores entry unless the store is full. Existing identifiers
// are always overwritten; a live barrier is merged rather than shortened.
// Must hold s.mu.
func (s *Store) insertLocked(entry model.Entry, now time.Time) (stored bool, swept int) {
	if prev, exists := s.entries[entry.Identifier]; exists {
		entry = entry.MergeBarrier(prev, now)
	} else {
		if len(s.entries) >= s.cleanupThreshold {
			swept = s.purgeExpiredLocked(now)
		}
		if len(s.entries) >= s.maxEntries {
			return false, swept
		}
	}

	s.entries[entry.Identifier] = entry
	s.ensureSweeperLocked()
	return true, swept
}

// liveLocked returns the entry for identifier if it has not expired.
// Expired entries found on the way are deleted. Must hold s.mu.
func (s *Store) liveLocked(identifier string, now time.Time) (model.Entry, bool) {
	entry, ok := s.entries[identifier]
	if !ok {
		return model.Entry{}, false
	}
	if entry.IsExpired(now) {
		delete(s.entries, identifier)
		return model.Entry{}, false
	}
	return entry, true
}

// Must hold s.mu.
func (s *Store) purgeExpiredLocked(now time.Time) int {
	removed := 0
	for id, entry := range s.entries {
		if entry.IsExpired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Must hold s.mu.
func (s *Store) ensureSweeperLocked() {
	if s.sweeper != nil || s.closed {
		return
	}
	s.sweeper = startSweeper(s.sweepInterval, func() {
		if n := s.Sweep(); n > 0 && s.logger != nil {
			s.logger.Info("swept expired revocations", log.Any("removed", n))
		}
	})
}

// sweeper runs fn every interval until stopped.
type sweeper struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func startSweeper(interval time.Duration, fn func()) *sweeper {
	sw := &sweeper{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go func() {
		defer close(sw.doneCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-sw.stopCh:
				return
			}
		}
	}()

	return sw
}

// stop signals the goroutine and waits for it to exit. Safe on nil.
func (sw *sweeper) stop() {
	if sw == nil {
		return
	}
	close(sw.stopCh)
	<-sw.doneCh
}

func (s *Store) sweeping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeper != nil
}
