package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/0xsj/overwatch-revocation/internal/adapter/outbound/memory"
	"github.com/0xsj/overwatch-revocation/internal/app/registry"
	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
	"github.com/0xsj/overwatch-revocation/internal/domain/event"
	"github.com/0xsj/overwatch-revocation/internal/domain/model"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/messaging"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/store"
	"github.com/0xsj/overwatch-revocation/internal/testutil"
	"github.com/0xsj/overwatch-revocation/internal/testutil/mocks"
)

var baseTime = time.Unix(1700000000, 0)

var errBackendDown = errors.New("backend down")

// failingStore reports itself as a remote backend and fails every call.
// With block set, calls wait for the context instead.
type failingStore struct {
	block bool

	mu       sync.Mutex
	deadline bool
	closed   bool
}

func (s *failingStore) Backend() store.Backend { return store.BackendRedis }

func (s *failingStore) fail(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		s.mu.Lock()
		s.deadline = true
		s.mu.Unlock()
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return errBackendDown
}

func (s *failingStore) RevokeToken(ctx context.Context, _ string, _ time.Time, _ string) error {
	return s.fail(ctx)
}

func (s *failingStore) RevokeAllUserTokens(ctx context.Context, _ string, _ time.Duration, _ string) error {
	return s.fail(ctx)
}

func (s *failingStore) IsTokenRevoked(ctx context.Context, _ string, _ int64) (bool, error) {
	return false, s.fail(ctx)
}

func (s *failingStore) Stats(ctx context.Context) (model.Stats, error) {
	return model.Stats{}, s.fail(ctx)
}

func (s *failingStore) Clear(ctx context.Context) error { return s.fail(ctx) }

func (s *failingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *failingStore) sawDeadline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

func memoryOpts(maxEntries int) []memory.Option {
	if maxEntries > 0 {
		return []memory.Option{memory.WithMaxEntries(maxEntries)}
	}
	return nil
}

func newMemoryRegistry(t *testing.T, maxEntries int) (*registry.Registry, *testutil.Clock, *mocks.EventPublisher) {
	t.Helper()

	clock := testutil.NewClock(baseTime)
	publisher := mocks.NewEventPublisher()
	r := registry.NewMemoryRegistry(registry.Options{
		Publisher: publisher,
		Now:       clock.Now,
	}, memoryOpts(maxEntries)...)
	t.Cleanup(func() { _ = r.Close() })

	return r, clock, publisher
}

func TestRegistry_RevokeToken(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes only the exact token", func(t *testing.T) {
		r, clock, _ := newMemoryRegistry(t, 0)

		id := model.Identifier("user-123", 1700000000)
		if err := r.RevokeToken(ctx, id, clock.Now().Add(900*time.Second), "logout"); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}

		if !r.IsTokenRevoked(ctx, "user-123", 1700000000) {
			t.Error("token should be revoked")
		}
		if r.IsTokenRevoked(ctx, "user-123", 1700000001) {
			t.Error("token with a different issued-at should not be revoked")
		}
	})

	t.Run("entry lapses at expiry", func(t *testing.T) {
		r, clock, _ := newMemoryRegistry(t, 0)

		if err := r.RevokeToken(ctx, model.Identifier("user-123", 1), clock.Now().Add(time.Minute), ""); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}

		clock.Advance(time.Minute)
		if r.IsTokenRevoked(ctx, "user-123", 1) {
			t.Error("revocation should lapse when the token expires")
		}
	})

	t.Run("publishes token event", func(t *testing.T) {
		r, clock, publisher := newMemoryRegistry(t, 0)
		expiresAt := clock.Now().Add(900 * time.Second)

		if err := r.RevokeToken(ctx, model.Identifier("user-123", 1700000000), expiresAt, "logout"); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}

		events := publisher.TokenRevokedEvents()
		if len(events) != 1 {
			t.Fatalf("TokenRevoked events = %d, want 1", len(events))
		}
		evt := events[0]
		if evt.UserID != "user-123" {
			t.Errorf("UserID = %q, want %q", evt.UserID, "user-123")
		}
		if evt.AggregateID() != "user-123" {
			t.Errorf("AggregateID() = %q, want %q", evt.AggregateID(), "user-123")
		}
		if !evt.ExpiresAt.Equal(expiresAt) {
			t.Errorf("ExpiresAt = %v, want %v", evt.ExpiresAt, expiresAt)
		}
		if evt.Reason != "logout" {
			t.Errorf("Reason = %q, want %q", evt.Reason, "logout")
		}
		if got := len(publisher.EventsByTopic(messaging.TopicTokenEvents)); got != 1 {
			t.Errorf("events on %s = %d, want 1", messaging.TopicTokenEvents, got)
		}
	})

	t.Run("expired or empty input is ignored", func(t *testing.T) {
		r, clock, publisher := newMemoryRegistry(t, 0)

		if err := r.RevokeToken(ctx, model.Identifier("user-123", 1), clock.Now(), ""); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if err := r.RevokeToken(ctx, "", clock.Now().Add(time.Minute), ""); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}

		if r.IsTokenRevoked(ctx, "user-123", 1) {
			t.Error("expired revocation should not be stored")
		}
		if publisher.EventCount() != 0 {
			t.Errorf("EventCount() = %d, want 0", publisher.EventCount())
		}
	})

	t.Run("publish failure does not fail the revocation", func(t *testing.T) {
		r, clock, publisher := newMemoryRegistry(t, 0)
		publisher.Errors.Publish = errors.New("broker down")

		if err := r.RevokeToken(ctx, model.Identifier("user-123", 1), clock.Now().Add(time.Minute), ""); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if !r.IsTokenRevoked(ctx, "user-123", 1) {
			t.Error("token should be revoked")
		}
	})
}

func TestRegistry_RevokeAllUserTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("barrier cutoff", func(t *testing.T) {
		r, clock, _ := newMemoryRegistry(t, 0)
		now := clock.Now().Unix()

		if err := r.RevokeAllUserTokens(ctx, "user-789", 900*time.Second, "password_change"); err != nil {
			t.Fatalf("RevokeAllUserTokens() error = %v", err)
		}

		if !r.IsTokenRevoked(ctx, "user-789", now-300) {
			t.Error("token issued before the barrier should be revoked")
		}
		if r.IsTokenRevoked(ctx, "user-789", now+1) {
			t.Error("token issued after the barrier should not be revoked")
		}
		if r.IsTokenRevoked(ctx, "user-000", now-300) {
			t.Error("other users should be unaffected")
		}
	})

	t.Run("barrier lapses after lifetime", func(t *testing.T) {
		r, clock, _ := newMemoryRegistry(t, 0)
		now := clock.Now().Unix()

		if err := r.RevokeAllUserTokens(ctx, "user-789", 900*time.Second, ""); err != nil {
			t.Fatalf("RevokeAllUserTokens() error = %v", err)
		}

		clock.Advance(900 * time.Second)
		if r.IsTokenRevoked(ctx, "user-789", now-300) {
			t.Error("barrier should lapse after its lifetime")
		}
	})

	t.Run("publishes user event", func(t *testing.T) {
		r, clock, publisher := newMemoryRegistry(t, 0)

		if err := r.RevokeAllUserTokens(ctx, "user-789", 900*time.Second, "password_change"); err != nil {
			t.Fatalf("RevokeAllUserTokens() error = %v", err)
		}

		events := publisher.UserTokensRevokedEvents()
		if len(events) != 1 {
			t.Fatalf("UserTokensRevoked events = %d, want 1", len(events))
		}
		if events[0].IssuedBefore != clock.Now().Unix() {
			t.Errorf("IssuedBefore = %d, want %d", events[0].IssuedBefore, clock.Now().Unix())
		}
		if !events[0].ExpiresAt.Equal(clock.Now().Add(900 * time.Second)) {
			t.Errorf("ExpiresAt = %v, want %v", events[0].ExpiresAt, clock.Now().Add(900*time.Second))
		}
	})

	t.Run("non-positive lifetime is a no-op", func(t *testing.T) {
		r, clock, publisher := newMemoryRegistry(t, 0)

		if err := r.RevokeAllUserTokens(ctx, "user-789", 0, ""); err != nil {
			t.Fatalf("RevokeAllUserTokens() error = %v", err)
		}
		if r.IsTokenRevoked(ctx, "user-789", clock.Now().Unix()-1) {
			t.Error("zero lifetime should not create a barrier")
		}
		if publisher.EventCount() != 0 {
			t.Errorf("EventCount() = %d, want 0", publisher.EventCount())
		}
	})
}

func TestRegistry_Capacity(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newMemoryRegistry(t, 100)

	for i := 0; i < 101; i++ {
		id := model.Identifier(fmt.Sprintf("user-%d", i), 1)
		if err := r.RevokeToken(ctx, id, clock.Now().Add(time.Hour), ""); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Size != 100 {
		t.Errorf("Size = %d, want 100", stats.Size)
	}
}

func TestRegistry_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	r, clock, publisher := newMemoryRegistry(t, 0)

	_ = r.RevokeToken(ctx, model.Identifier("a", 1), clock.Now().Add(time.Minute), "")
	_ = r.RevokeAllUserTokens(ctx, "b", time.Hour, "")

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Size != 2 {
		t.Errorf("Size = %d, want 2", stats.Size)
	}
	if stats.OldestExpiresAt == nil || !stats.OldestExpiresAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("OldestExpiresAt = %v, want %v", stats.OldestExpiresAt, clock.Now().Add(time.Minute))
	}

	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	stats, err = r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Size != 0 {
		t.Errorf("Size after Clear() = %d, want 0", stats.Size)
	}
	if !publisher.HasEvent(event.EventTypeRegistryCleared) {
		t.Error("Clear() should publish a registry event")
	}
}

func TestRegistry_BackendFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("check fails open by default", func(t *testing.T) {
		r := registry.New(&failingStore{}, registry.Options{})

		if r.IsTokenRevoked(ctx, "user-123", 1) {
			t.Error("IsTokenRevoked() should fail open without options")
		}
	})

	t.Run("check failure is recorded", func(t *testing.T) {
		recorder := mocks.NewRecorder()
		r := registry.New(&failingStore{}, registry.Options{Recorder: recorder})

		if r.IsTokenRevoked(ctx, "user-123", 1) {
			t.Error("IsTokenRevoked() should fail open")
		}
		if recorder.BackendErrorCount("check") != 1 {
			t.Errorf("check errors = %d, want 1", recorder.BackendErrorCount("check"))
		}
	})

	t.Run("check fails closed", func(t *testing.T) {
		r := registry.New(&failingStore{}, registry.Options{FailClosed: true})

		if !r.IsTokenRevoked(ctx, "user-123", 1) {
			t.Error("IsTokenRevoked() should fail closed")
		}
	})

	t.Run("writes return the error without publishing", func(t *testing.T) {
		publisher := mocks.NewEventPublisher()
		r := registry.New(&failingStore{}, registry.Options{Publisher: publisher})

		if err := r.RevokeToken(ctx, "user-123:1", time.Now().Add(time.Minute), ""); !errors.Is(err, errBackendDown) {
			t.Errorf("RevokeToken() error = %v, want %v", err, errBackendDown)
		}
		if err := r.RevokeAllUserTokens(ctx, "user-123", time.Minute, ""); !errors.Is(err, errBackendDown) {
			t.Errorf("RevokeAllUserTokens() error = %v, want %v", err, errBackendDown)
		}
		if err := r.Clear(ctx); !errors.Is(err, errBackendDown) {
			t.Errorf("Clear() error = %v, want %v", err, errBackendDown)
		}
		if _, err := r.Stats(ctx); !errors.Is(err, errBackendDown) {
			t.Errorf("Stats() error = %v, want %v", err, errBackendDown)
		}
		if publisher.EventCount() != 0 {
			t.Errorf("EventCount() = %d, want 0", publisher.EventCount())
		}
	})
}

func TestRegistry_OperationTimeout(t *testing.T) {
	s := &failingStore{block: true}
	r := registry.New(s, registry.Options{OperationTimeout: 20 * time.Millisecond})

	start := time.Now()
	if r.IsTokenRevoked(context.Background(), "user-123", 1) {
		t.Error("timed out check should fail open")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("IsTokenRevoked() took %v, want it bounded by the operation timeout", elapsed)
	}
	if !s.sawDeadline() {
		t.Error("remote call should carry a deadline")
	}
}

func TestRegistry_Close(t *testing.T) {
	s := &failingStore{}
	r := registry.New(s, registry.Options{})

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !s.closed {
		t.Error("Close() should close the store")
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRegistry_UseAfterClose(t *testing.T) {
	ctx := context.Background()

	r, clock, publisher := newMemoryRegistry(t, 0)
	if err := r.RevokeAllUserTokens(ctx, "user-789", time.Hour, ""); err != nil {
		t.Fatalf("RevokeAllUserTokens() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	events := publisher.EventCount()

	if err := r.RevokeToken(ctx, "user-123:1", clock.Now().Add(time.Minute), ""); !errors.Is(err, domainerror.ErrRegistryClosed) {
		t.Errorf("RevokeToken() error = %v, want %v", err, domainerror.ErrRegistryClosed)
	}
	if err := r.RevokeAllUserTokens(ctx, "user-123", time.Minute, ""); !errors.Is(err, domainerror.ErrRegistryClosed) {
		t.Errorf("RevokeAllUserTokens() error = %v, want %v", err, domainerror.ErrRegistryClosed)
	}
	if err := r.Clear(ctx); !errors.Is(err, domainerror.ErrRegistryClosed) {
		t.Errorf("Clear() error = %v, want %v", err, domainerror.ErrRegistryClosed)
	}
	if _, err := r.Stats(ctx); !errors.Is(err, domainerror.ErrRegistryClosed) {
		t.Errorf("Stats() error = %v, want %v", err, domainerror.ErrRegistryClosed)
	}
	if r.IsTokenRevoked(ctx, "user-789", clock.Now().Unix()-60) {
		t.Error("IsTokenRevoked() after Close() should fail open")
	}
	if publisher.EventCount() != events {
		t.Errorf("EventCount() = %d, want %d", publisher.EventCount(), events)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newMemoryRegistry(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			for j := int64(0); j < 50; j++ {
				_ = r.RevokeToken(ctx, model.Identifier("user", n*100+j), clock.Now().Add(time.Minute), "")
				_ = r.IsTokenRevoked(ctx, "user", n*100+j)
			}
		}(int64(i))
	}
	wg.Wait()

	for i := int64(0); i < 16; i++ {
		if !r.IsTokenRevoked(ctx, "user", i*100) {
			t.Errorf("token %d should be revoked", i*100)
		}
	}
}
