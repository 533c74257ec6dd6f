package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/0xsj/overwatch-revocation/internal/domain/model"
	"github.com/0xsj/overwatch-revocation/internal/testutil"
	"github.com/0xsj/overwatch-revocation/internal/testutil/mocks"
)

var baseTime = time.Unix(1700000000, 0)

func newTestStore(t *testing.T, opts ...Option) (*Store, *testutil.Clock) {
	t.Helper()

	clock := testutil.NewClock(baseTime)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s := New(opts...)
	t.Cleanup(func() { _ = s.Close() })

	return s, clock
}

func TestStore_RevokeToken(t *testing.T) {
	ctx := context.Background()

	t.Run("revoked until expiry", func(t *testing.T) {
		s, clock := newTestStore(t)
		expiresAt := clock.Now().Add(900 * time.Second)

		if err := s.RevokeToken(ctx, model.Identifier("user-123", 1700000000), expiresAt, "logout"); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}

		revoked, err := s.IsTokenRevoked(ctx, "user-123", 1700000000)
		if err != nil {
			t.Fatalf("IsTokenRevoked() error = %v", err)
		}
		if !revoked {
			t.Error("token should be revoked")
		}

		revoked, _ = s.IsTokenRevoked(ctx, "user-123", 1700000001)
		if revoked {
			t.Error("token with different issuedAt should not be revoked")
		}

		clock.Advance(899 * time.Second)
		revoked, _ = s.IsTokenRevoked(ctx, "user-123", 1700000000)
		if !revoked {
			t.Error("token should still be revoked just before expiry")
		}

		clock.Advance(time.Second)
		revoked, _ = s.IsTokenRevoked(ctx, "user-123", 1700000000)
		if revoked {
			t.Error("token should not be revoked after expiry")
		}
	})

	t.Run("past expiry is a no-op", func(t *testing.T) {
		s, clock := newTestStore(t)

		if err := s.RevokeToken(ctx, model.Identifier("user-1", 1), clock.Now().Add(-time.Second), ""); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if err := s.RevokeToken(ctx, model.Identifier("user-1", 2), clock.Now(), ""); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}

		if s.Len() != 0 {
			t.Errorf("Len() = %d, want 0", s.Len())
		}
		revoked, _ := s.IsTokenRevoked(ctx, "user-1", 1)
		if revoked {
			t.Error("expired revocation should not revoke")
		}
	})

	t.Run("empty identifier is a no-op", func(t *testing.T) {
		s, clock := newTestStore(t)

		if err := s.RevokeToken(ctx, "", clock.Now().Add(time.Minute), ""); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if s.Len() != 0 {
			t.Errorf("Len() = %d, want 0", s.Len())
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		s, clock := newTestStore(t)
		id := model.Identifier("user-1", 1700000000)
		expiresAt := clock.Now().Add(time.Minute)

		_ = s.RevokeToken(ctx, id, expiresAt, "logout")
		once, _ := s.Stats(ctx)

		_ = s.RevokeToken(ctx, id, expiresAt, "logout")
		twice, _ := s.Stats(ctx)

		if once.Size != 1 || twice.Size != 1 {
			t.Errorf("Size = %d then %d, want 1 both times", once.Size, twice.Size)
		}
		if !twice.NewestExpiresAt.Equal(expiresAt) {
			t.Errorf("NewestExpiresAt = %v, want %v", twice.NewestExpiresAt, expiresAt)
		}
	})
}

func TestStore_RevokeAllUserTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("barrier cutoff", func(t *testing.T) {
		s, clock := newTestStore(t)
		now := clock.Now().Unix()

		if err := s.RevokeAllUserTokens(ctx, "user-789", 900*time.Second, "password_change"); err != nil {
			t.Fatalf("RevokeAllUserTokens() error = %v", err)
		}

		tests := []struct {
			name     string
			issuedAt int64
			want     bool
		}{
			{name: "issued long before", issuedAt: now - 300, want: true},
			{name: "issued one second before", issuedAt: now - 1, want: true},
			{name: "issued at barrier", issuedAt: now, want: false},
			{name: "issued after barrier", issuedAt: now + 1, want: false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.IsTokenRevoked(ctx, "user-789", tt.issuedAt)
				if err != nil {
					t.Fatalf("IsTokenRevoked() error = %v", err)
				}
				if got != tt.want {
					t.Errorf("IsTokenRevoked(%d) = %v, want %v", tt.issuedAt, got, tt.want)
				}
			})
		}
	})

	t.Run("barrier expires", func(t *testing.T) {
		s, clock := newTestStore(t)
		now := clock.Now().Unix()

		_ = s.RevokeAllUserTokens(ctx, "user-789", 900*time.Second, "")

		clock.Advance(900 * time.Second)
		revoked, _ := s.IsTokenRevoked(ctx, "user-789", now-300)
		if revoked {
			t.Error("barrier should not apply after its lifetime")
		}
	})

	t.Run("non-positive lifetime is a no-op", func(t *testing.T) {
		s, clock := newTestStore(t)
		now := clock.Now().Unix()

		_ = s.RevokeAllUserTokens(ctx, "user-789", 0, "")
		_ = s.RevokeAllUserTokens(ctx, "user-789", -time.Second, "")

		if s.Len() != 0 {
			t.Errorf("Len() = %d, want 0", s.Len())
		}
		revoked, _ := s.IsTokenRevoked(ctx, "user-789", now-1)
		if revoked {
			t.Error("no barrier should exist")
		}
	})

	t.Run("later barrier moves the cutoff", func(t *testing.T) {
		s, clock := newTestStore(t)

		_ = s.RevokeAllUserTokens(ctx, "user-789", 900*time.Second, "")
		clock.Advance(60 * time.Second)
		_ = s.RevokeAllUserTokens(ctx, "user-789", 900*time.Second, "")

		revoked, _ := s.IsTokenRevoked(ctx, "user-789", clock.Now().Unix()-30)
		if !revoked {
			t.Error("token issued between barriers should be revoked")
		}
		if s.Len() != 1 {
			t.Errorf("Len() = %d, want 1", s.Len())
		}
	})

	t.Run("shorter barrier does not shorten a live one", func(t *testing.T) {
		s, clock := newTestStore(t)
		issuedAt := clock.Now().Unix() - 300

		_ = s.RevokeAllUserTokens(ctx, "user-789", time.Hour, "password_change")
		clock.Advance(time.Minute)
		_ = s.RevokeAllUserTokens(ctx, "user-789", time.Minute, "logout_everywhere")

		clock.Advance(10 * time.Minute)
		revoked, _ := s.IsTokenRevoked(ctx, "user-789", issuedAt)
		if !revoked {
			t.Error("token covered by the earlier barrier should stay revoked")
		}
		revoked, _ = s.IsTokenRevoked(ctx, "user-789", baseTime.Unix()+30)
		if !revoked {
			t.Error("token issued before the later cutoff should be revoked")
		}
	})
}

func TestStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now().Unix()

	_ = s.RevokeToken(ctx, model.Identifier("user-a", now-10), clock.Now().Add(time.Minute), "")
	_ = s.RevokeAllUserTokens(ctx, "user-a", 900*time.Second, "")

	revoked, _ := s.IsTokenRevoked(ctx, "user-b", now-10)
	if revoked {
		t.Error("revocations for user-a must not affect user-b")
	}
	revoked, _ = s.IsTokenRevoked(ctx, "user-b", now-300)
	if revoked {
		t.Error("barrier for user-a must not affect user-b")
	}
}

func TestStore_Capacity(t *testing.T) {
	ctx := context.Background()

	t.Run("drops new identifiers when full", func(t *testing.T) {
		recorder := mocks.NewRecorder()
		s, clock := newTestStore(t, WithMaxEntries(100), WithRecorder(recorder))
		expiresAt := clock.Now().Add(900 * time.Second)

		for i := 0; i < 100; i++ {
			_ = s.RevokeToken(ctx, model.Identifier(fmt.Sprintf("user-%d", i), 1700000000), expiresAt, "")
		}

		stats, _ := s.Stats(ctx)
		if stats.Size != 100 {
			t.Fatalf("Size = %d, want 100", stats.Size)
		}

		if err := s.RevokeToken(ctx, model.Identifier("user-100", 1700000000), expiresAt, ""); err != nil {
			t.Fatalf("RevokeToken() at capacity error = %v, want nil", err)
		}

		stats, _ = s.Stats(ctx)
		if stats.Size != 100 {
			t.Errorf("Size = %d, want 100", stats.Size)
		}
		revoked, _ := s.IsTokenRevoked(ctx, "user-100", 1700000000)
		if revoked {
			t.Error("dropped revocation should not be visible")
		}
		revoked, _ = s.IsTokenRevoked(ctx, "user-0", 1700000000)
		if !revoked {
			t.Error("existing entries must not be evicted")
		}
		if recorder.DroppedCount() != 1 {
			t.Errorf("Dropped calls = %d, want 1", recorder.DroppedCount())
		}
	})

	t.Run("existing identifier can be rewritten when full", func(t *testing.T) {
		s, clock := newTestStore(t, WithMaxEntries(2))
		expiresAt := clock.Now().Add(time.Minute)

		_ = s.RevokeToken(ctx, "a:1", expiresAt, "")
		_ = s.RevokeToken(ctx, "b:1", expiresAt, "")
		_ = s.RevokeToken(ctx, "a:1", expiresAt.Add(time.Minute), "")

		stats, _ := s.Stats(ctx)
		if stats.Size != 2 {
			t.Errorf("Size = %d, want 2", stats.Size)
		}
		if !stats.NewestExpiresAt.Equal(expiresAt.Add(time.Minute)) {
			t.Errorf("NewestExpiresAt = %v, want %v", stats.NewestExpiresAt, expiresAt.Add(time.Minute))
		}
	})

	t.Run("sweeps expired entries before dropping", func(t *testing.T) {
		s, clock := newTestStore(t, WithMaxEntries(10))

		for i := 0; i < 10; i++ {
			_ = s.RevokeToken(ctx, model.Identifier("old", int64(i)), clock.Now().Add(time.Second), "")
		}
		clock.Advance(2 * time.Second)

		_ = s.RevokeToken(ctx, model.Identifier("new", 1), clock.Now().Add(time.Minute), "")

		if s.Len() != 1 {
			t.Errorf("Len() = %d, want 1", s.Len())
		}
		revoked, _ := s.IsTokenRevoked(ctx, "new", 1)
		if !revoked {
			t.Error("new entry should be stored after sweeping expired ones")
		}
	})

	t.Run("never exceeds capacity", func(t *testing.T) {
		s, clock := newTestStore(t, WithMaxEntries(50))

		for i := 0; i < 500; i++ {
			_ = s.RevokeToken(ctx, model.Identifier("flood", int64(i)), clock.Now().Add(time.Hour), "")
			_ = s.RevokeAllUserTokens(ctx, fmt.Sprintf("flood-%d", i), time.Hour, "")
		}

		if s.Len() > 50 {
			t.Errorf("Len() = %d, want <= 50", s.Len())
		}
	})
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Size != 0 || stats.OldestExpiresAt != nil || stats.NewestExpiresAt != nil {
		t.Errorf("Stats() on empty store = %+v", stats)
	}

	now := clock.Now()
	_ = s.RevokeToken(ctx, "a:1", now.Add(10*time.Second), "")
	_ = s.RevokeToken(ctx, "b:1", now.Add(30*time.Second), "")
	_ = s.RevokeAllUserTokens(ctx, "c", 20*time.Second, "")

	stats, _ = s.Stats(ctx)
	if stats.Size != 3 {
		t.Errorf("Size = %d, want 3", stats.Size)
	}
	if !stats.OldestExpiresAt.Equal(now.Add(10 * time.Second)) {
		t.Errorf("OldestExpiresAt = %v, want %v", stats.OldestExpiresAt, now.Add(10*time.Second))
	}
	if !stats.NewestExpiresAt.Equal(now.Add(30 * time.Second)) {
		t.Errorf("NewestExpiresAt = %v, want %v", stats.NewestExpiresAt, now.Add(30*time.Second))
	}

	clock.Advance(15 * time.Second)
	stats, _ = s.Stats(ctx)
	if stats.Size != 2 {
		t.Errorf("Size after expiry = %d, want 2", stats.Size)
	}
	if !stats.OldestExpiresAt.Equal(now.Add(20 * time.Second)) {
		t.Errorf("OldestExpiresAt = %v, want %v", stats.OldestExpiresAt, now.Add(20*time.Second))
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_ = s.RevokeToken(ctx, "a:1", clock.Now().Add(time.Minute), "")
	if !s.sweeping() {
		t.Fatal("sweeper should run after the first write")
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if s.sweeping() {
		t.Error("sweeper should stop on Clear")
	}

	_ = s.RevokeToken(ctx, "a:1", clock.Now().Add(time.Minute), "")
	if !s.sweeping() {
		t.Error("sweeper should restart on the next write")
	}
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_ = s.RevokeToken(ctx, "a:1", clock.Now().Add(time.Minute), "")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.sweeping() {
		t.Error("sweeper should stop on Close")
	}

	_ = s.RevokeToken(ctx, "b:1", clock.Now().Add(time.Minute), "")
	if s.sweeping() {
		t.Error("sweeper should not restart after Close")
	}

	revoked, _ := s.IsTokenRevoked(ctx, "a", 1)
	if !revoked {
		t.Error("entries should stay readable after Close")
	}
}

func TestStore_BackgroundSweep(t *testing.T) {
	ctx := context.Background()
	recorder := mocks.NewRecorder()
	s := New(WithSweepInterval(10*time.Millisecond), WithRecorder(recorder))
	defer s.Close()

	_ = s.RevokeToken(ctx, "a:1", time.Now().Add(20*time.Millisecond), "")

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after background sweep", s.Len())
	}
}

func TestStore_ReadsDoNotDependOnSweep(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t, WithSweepInterval(time.Hour))

	_ = s.RevokeToken(ctx, "a:1", clock.Now().Add(time.Second), "")
	clock.Advance(time.Second)

	revoked, _ := s.IsTokenRevoked(ctx, "a", 1)
	if revoked {
		t.Error("expired entry should read as absent without a sweep")
	}
}

func TestStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t, WithMaxEntries(1000))
	expiresAt := clock.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", w)
			for i := 0; i < 200; i++ {
				_ = s.RevokeToken(ctx, model.Identifier(user, int64(i)), expiresAt, "")
				_, _ = s.IsTokenRevoked(ctx, user, int64(i))
				if i%50 == 0 {
					_ = s.RevokeAllUserTokens(ctx, user, time.Hour, "")
					_, _ = s.Stats(ctx)
				}
			}
		}(w)
	}
	wg.Wait()

	if s.Len() > 1000 {
		t.Errorf("Len() = %d, want <= 1000", s.Len())
	}
}
