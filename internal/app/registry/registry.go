package registry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/0xsj/overwatch-pkg/log"

	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
	"github.com/0xsj/overwatch-revocation/internal/domain/event"
	"github.com/0xsj/overwatch-revocation/internal/domain/model"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/messaging"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/metrics"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/store"
)

// DefaultOperationTimeout bounds a single call to a remote backend.
const DefaultOperationTimeout = 250 * time.Millisecond

// Options configures a Registry.
type Options struct {
	Logger    log.Logger
	Recorder  metrics.Recorder
	Publisher messaging.EventPublisher

	// OperationTimeout bounds each call to a remote backend. Zero uses
	// DefaultOperationTimeout; a negative value disables the bound.
	OperationTimeout time.Duration

	// FailClosed makes IsTokenRevoked report true when the backend fails.
	// By default a backend failure is treated as not revoked.
	FailClosed bool

	// Now overrides the clock used for published events.
	Now func() time.Time
}

// Registry is the revocation facade used by the rest of the service. It
// wraps a store with timeouts, failure policy, metrics and events.
//
// Write errors are returned to the caller. Check errors are never returned:
// the failure policy decides the answer and the error is logged. After Close
// writes and stats return ErrRegistryClosed and checks follow the failure
// policy.
type Registry struct {
	store      store.Store
	logger     log.Logger
	recorder   metrics.Recorder
	publisher  messaging.EventPublisher
	timeout    time.Duration
	failClosed bool
	now        func() time.Time

	closed atomic.Bool
}

// New creates a Registry over the given store.
func New(s store.Store, opts Options) *Registry {
	r := &Registry{
		store:      s,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
		timeout:    opts.OperationTimeout,
		failClosed: opts.FailClosed,
		now:        opts.Now,
	}

	if r.recorder == nil {
		r.recorder = metrics.Nop{}
	}
	if r.publisher == nil {
		r.publisher = messaging.NopPublisher{}
	}
	if r.timeout == 0 {
		r.timeout = DefaultOperationTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}

	return r
}

// Backend returns the backend serving this registry.
func (r *Registry) Backend() store.Backend {
	return r.store.Backend()
}

// RevokeToken revokes the token identified by identifier until expiresAt.
// Empty identifiers and entries that are already expired are ignored.
func (r *Registry) RevokeToken(ctx context.Context, identifier string, expiresAt time.Time, reason string) error {
	if r.closed.Load() {
		return domainerror.ErrRegistryClosed
	}
	if identifier == "" || !r.now().Before(expiresAt) {
		return nil
	}

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.RevokeToken(opCtx, identifier, expiresAt, reason); err != nil {
		r.backendError("revoke_token", err, log.String("identifier", identifier))
		return err
	}

	userID, _, ok := model.ParseIdentifier(identifier)
	if !ok {
		userID = identifier
	}
	r.publish(ctx, event.NewTokenRevoked(userID, identifier, expiresAt, reason))

	return nil
}

// RevokeAllUserTokens revokes every token of userID issued before now.
// Tokens issued from now on are unaffected. The barrier is kept for
// maxTokenLifetime, after which every token it covers has expired anyway.
// An empty userID or a non-positive lifetime is a no-op.
func (r *Registry) RevokeAllUserTokens(ctx context.Context, userID string, maxTokenLifetime time.Duration, reason string) error {
	if r.closed.Load() {
		return domainerror.ErrRegistryClosed
	}
	if userID == "" || maxTokenLifetime <= 0 {
		return nil
	}

	now := r.now()

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.RevokeAllUserTokens(opCtx, userID, maxTokenLifetime, reason); err != nil {
		r.backendError("revoke_all", err, log.String("user_id", userID))
		return err
	}

	r.publish(ctx, event.NewUserTokensRevoked(userID, now.Unix(), now.Add(maxTokenLifetime), reason))

	return nil
}

// IsTokenRevoked reports whether the token issued to userID at issuedAt
// has been revoked, either individually or by a user-wide barrier.
func (r *Registry) IsTokenRevoked(ctx context.Context, userID string, issuedAt int64) bool {
	if r.closed.Load() {
		return r.failClosed
	}

	backend := string(r.store.Backend())
	start := time.Now()

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	revoked, err := r.store.IsTokenRevoked(opCtx, userID, issuedAt)
	if err != nil {
		r.backendError("check", err,
			log.String("user_id", userID),
			log.Any("issued_at", issuedAt),
			log.Any("fail_closed", r.failClosed),
		)
		revoked = r.failClosed
	}

	r.recorder.Checked(backend, revoked, time.Since(start))
	return revoked
}

// Stats reports the number of live entries and their expiry bounds.
func (r *Registry) Stats(ctx context.Context) (model.Stats, error) {
	if r.closed.Load() {
		return model.Stats{}, domainerror.ErrRegistryClosed
	}

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	stats, err := r.store.Stats(opCtx)
	if err != nil {
		r.backendError("stats", err)
		return model.Stats{}, err
	}

	r.recorder.Size(string(r.store.Backend()), stats.Size)
	return stats, nil
}

// Clear drops every revocation entry.
func (r *Registry) Clear(ctx context.Context) error {
	if r.closed.Load() {
		return domainerror.ErrRegistryClosed
	}

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.Clear(opCtx); err != nil {
		r.backendError("clear", err)
		return err
	}

	r.recorder.Size(string(r.store.Backend()), 0)
	r.publish(ctx, event.NewRegistryCleared(string(r.store.Backend())))

	return nil
}

// Close releases the underlying store. Closing twice is a no-op.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.store.Close()
}

// withTimeout bounds remote calls. The in-process store never blocks.
func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout < 0 || r.store.Backend() == store.BackendMemory {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Registry) backendError(op string, err error, fields ...log.Field) {
	backend := string(r.store.Backend())
	r.recorder.BackendError(backend, op)

	if r.logger == nil {
		return
	}
	fields = append(fields,
		log.String("backend", backend),
		log.String("op", op),
		log.String("error", err.Error()),
	)
	r.logger.Error("revocation backend operation failed", fields...)
}

// publish emits evt. Event delivery never fails a revocation.
func (r *Registry) publish(ctx context.Context, evt event.Event) {
	if err := r.publisher.Publish(ctx, evt); err != nil && r.logger != nil {
		r.logger.Warn("failed to publish revocation event",
			log.String("event_type", evt.EventType()),
			log.String("error", err.Error()),
		)
	}
}
