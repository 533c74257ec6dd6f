package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xsj/overwatch-revocation/internal/domain/model"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/metrics"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/store"
)

const (
	defaultKeyPrefix = "revocation:"
	defaultScanCount = 100

	// maxBarrierRetries bounds optimistic retries when concurrent writers
	// touch the same barrier key.
	maxBarrierRetries = 5
)

var (
	errMalformedEntry   = errors.New("malformed revocation entry")
	errBarrierContended = errors.New("revocation barrier update contended")
)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the key namespace. Empty values are ignored.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithScanCount sets the COUNT hint used by SCAN. Non-positive values are ignored.
func WithScanCount(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.scanCount = int64(n)
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

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Store implements store.Store on a shared Redis-compatible service.
// Entries expire through native key TTL; there is no local sweep.
type Store struct {
	client    *redis.Client
	prefix    string
	pattern   string
	scanCount int64
	now       func() time.Time
	recorder  metrics.Recorder
}

var _ store.Store = (*Store)(nil)

// NewStore creates a new Redis-backed Store.
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    defaultKeyPrefix,
		scanCount: defaultScanCount,
		now:       time.Now,
		recorder:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pattern = escapeGlob(s.prefix) + "*"
	return s
}

func (s *Store) Backend() store.Backend {
	return store.BackendRedis
}

func (s *Store) RevokeToken(ctx context.Context, identifier string, expiresAt time.Time, reason string) error {
	if identifier == "" {
		return nil
	}
	return s.set(ctx, model.NewTokenEntry(identifier, expiresAt, reason))
}

func (s *Store) RevokeAllUserTokens(ctx context.Context, userID string, maxTokenLifetime time.Duration, reason string) error {
	if userID == "" || maxTokenLifetime <= 0 {
		return nil
	}
	return s.setBarrier(ctx, model.NewBarrierEntry(userID, s.now(), maxTokenLifetime, reason))
}

func (s *Store) IsTokenRevoked(ctx context.Context, userID string, issuedAt int64) (bool, error) {
	if userID == "" {
		return false, nil
	}

	now := s.now()

	entry, found, err := s.get(ctx, model.Identifier(userID, issuedAt))
	if err != nil {
		return false, err
	}
	if found && !entry.IsBarrier() && !entry.IsExpired(now) {
		return true, nil
	}

	barrier, found, err := s.get(ctx, model.BarrierIdentifier(userID))
	if err != nil {
		return false, err
	}
	if !found || barrier.IsExpired(now) {
		return false, nil
	}

	return barrier.Revokes(issuedAt), nil
}

// Stats walks the namespace with SCAN and reads values in batches.
// Expired or malformed values are skipped.
func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	now := s.now()

	var stats model.Stats
	err := s.scan(ctx, func(keys []string) error {
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to read revocation batch: %w", err)
		}

		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			entry, err := decodeEntry([]byte(raw))
			if err != nil || entry.IsExpired(now) {
				continue
			}
			stats.Observe(entry.ExpiresAt)
		}
		return nil
	})
	if err != nil {
		return model.Stats{}, err
	}

	s.recorder.Size(string(store.BackendRedis), stats.Size)
	return stats, nil
}

// Clear deletes every key of the namespace, one SCAN batch at a time,
// until the cursor returns to zero.
func (s *Store) Clear(ctx context.Context) error {
	return s.scan(ctx, func(keys []string) error {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete revocation batch: %w", err)
		}
		return nil
	})
}

// Close is a no-op: the client is owned by the caller.
func (s *Store) Close() error {
	return nil
}

func (s *Store) set(ctx context.Context, entry model.Entry) error {
	data, ttl, err := s.encode(entry)
	if err != nil || ttl <= 0 {
		return err
	}

	if err := s.client.Set(ctx, s.key(entry.Identifier), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revocation: %w", err)
	}

	s.recordRevoked(entry)
	return nil
}

// setBarrier writes a barrier under WATCH so a live barrier written by
// another instance is merged, never shortened.
func (s *Store) setBarrier(ctx context.Context, entry model.Entry) error {
	key := s.key(entry.Identifier)

	txf := func(tx *redis.Tx) error {
		merged := entry

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if prev, err := decodeEntry(data); err == nil {
				merged = entry.MergeBarrier(prev, s.now())
			}
		case !errors.Is(err, redis.Nil):
			return fmt.Errorf("failed to get revocation: %w", err)
		}

		payload, ttl, err := s.encode(merged)
		if err != nil || ttl <= 0 {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxBarrierRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to store revocation: %w", err)
		}

		s.recordRevoked(entry)
		return nil
	}

	return errBarrierContended
}

// encode returns the stored value and its TTL rounded up to whole seconds.
// A zero TTL means the entry is already expired.
func (s *Store) encode(entry model.Entry) ([]byte, time.Duration, error) {
	ttl := ttlSeconds(entry.TTL(s.now()))
	if ttl <= 0 {
		return nil, 0, nil
	}

	data, err := json.Marshal(newCachedEntry(entry))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal revocation: %w", err)
	}
	return data, ttl, nil
}

func (s *Store) recordRevoked(entry model.Entry) {
	kind := "token"
	if entry.IsBarrier() {
		kind = "barrier"
	}
	s.recorder.Revoked(string(store.BackendRedis), kind)
}

func (s *Store) get(ctx context.Context, identifier string) (model.Entry, bool, error) {
	data, err := s.client.Get(ctx, s.key(identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Entry{}, false, nil
		}
		return model.Entry{}, false, fmt.Errorf("failed to get revocation: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return model.Entry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.pattern, s.scanCount).Result()
		if err != nil {
			return fmt.Errorf("failed to scan revocations: %w", err)
		}

		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Key helper

func (s *Store) key(identifier string) string {
	return s.prefix + identifier
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards so a
// prefix only ever matches itself.
func escapeGlob(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ttlSeconds rounds d up to whole seconds so SET uses EX.
func ttlSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// Cached entry structure for JSON serialization

type cachedEntry struct {
	Identifier   string `json:"identifier"`
	ExpiresAt    int64  `json:"expires_at"`
	IssuedBefore int64  `json:"issued_before,omitempty"`
	Barrier      bool   `json:"barrier,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func newCachedEntry(e model.Entry) cachedEntry {
	return cachedEntry{
		Identifier:   e.Identifier,
		ExpiresAt:    e.ExpiresAt.UnixMilli(),
		IssuedBefore: e.IssuedBefore,
		Barrier:      e.Barrier,
		Reason:       e.Reason,
	}
}

func (c cachedEntry) toModel() model.Entry {
	return model.Entry{
		Identifier:   c.Identifier,
		ExpiresAt:    time.UnixMilli(c.ExpiresAt),
		IssuedBefore: c.IssuedBefore,
		Barrier:      c.Barrier,
		Reason:       c.Reason,
	}
}

func decodeEntry(data []byte) (model.Entry, error) {
	var cached cachedEntry
	if err := json.Unmarshal(data, &cached); err != nil {
		return model.Entry{}, fmt.Errorf("failed to unmarshal revocation: %w", err)
	}
	if cached.Identifier == "" || cached.ExpiresAt == 0 {
		return model.Entry{}, errMalformedEntry
	}
	return cached.toModel(), nil
}
