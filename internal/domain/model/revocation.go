package model

import (
	"strconv"
	"strings"
	"time"
)

// BarrierPrefix marks identifiers that revoke every token of a user
// issued before a cutoff.
const BarrierPrefix = "all:"

// Entry is a single revocation record.
//
// ExpiresAt is the token's natural expiry for token entries and the
// barrier's own lifetime for barrier entries. It is never the time of the
// revocation event. IssuedBefore is only set on barrier entries and holds
// the cutoff in Unix seconds: tokens with issuedAt < IssuedBefore are revoked.
type Entry struct {
	Identifier   string
	ExpiresAt    time.Time
	IssuedBefore int64
	Barrier      bool
	Reason       string
}

// NewTokenEntry creates a per-token revocation entry.
func NewTokenEntry(identifier string, expiresAt time.Time, reason string) Entry {
	return Entry{
		Identifier: identifier,
		ExpiresAt:  expiresAt,
		Reason:     reason,
	}
}

// NewBarrierEntry creates a per-user barrier that revokes every token issued
// before now and stays alive for lifetime.
func NewBarrierEntry(userID string, now time.Time, lifetime time.Duration, reason string) Entry {
	return Entry{
		Identifier:   BarrierIdentifier(userID),
		ExpiresAt:    now.Add(lifetime),
		IssuedBefore: now.Unix(),
		Barrier:      true,
		Reason:       reason,
	}
}

// MergeBarrier combines a new barrier with the live barrier it replaces.
// The cutoff only moves forward and the lifetime never shrinks, so tokens
// covered by prev stay revoked for as long as prev promised.
func (e Entry) MergeBarrier(prev Entry, now time.Time) Entry {
	if !e.IsBarrier() || !prev.IsBarrier() || prev.IsExpired(now) {
		return e
	}
	if prev.ExpiresAt.After(e.ExpiresAt) {
		e.ExpiresAt = prev.ExpiresAt
	}
	if prev.IssuedBefore > e.IssuedBefore {
		e.IssuedBefore = prev.IssuedBefore
	}
	return e
}

// IsExpired reports whether the entry is logically absent at now.
func (e Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// IsBarrier reports whether the entry is a per-user barrier.
func (e Entry) IsBarrier() bool {
	return e.Barrier
}

// Revokes reports whether a live barrier covers a token issued at issuedAt.
func (e Entry) Revokes(issuedAt int64) bool {
	return e.IsBarrier() && issuedAt < e.IssuedBefore
}

// TTL returns the remaining lifetime at now, or zero when expired.
func (e Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Identifier derives the per-token key from a user ID and the token's
// issued-at time in Unix seconds.
func Identifier(userID string, issuedAt int64) string {
	return userID + ":" + strconv.FormatInt(issuedAt, 10)
}

// ParseIdentifier splits a per-token identifier back into its user ID and
// issued-at parts. User IDs may themselves contain colons.
func ParseIdentifier(identifier string) (userID string, issuedAt int64, ok bool) {
	i := strings.LastIndexByte(identifier, ':')
	if i <= 0 || i == len(identifier)-1 {
		return "", 0, false
	}
	issuedAt, err := strconv.ParseInt(identifier[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return identifier[:i], issuedAt, true
}

// BarrierIdentifier derives the per-user barrier key.
func BarrierIdentifier(userID string) string {
	return BarrierPrefix + userID
}

// Stats summarises the live entries of a store.
type Stats struct {
	Size            int
	OldestExpiresAt *time.Time
	NewestExpiresAt *time.Time
}

// Observe folds a live entry's expiry into the stats.
func (s *Stats) Observe(expiresAt time.Time) {
	s.Size++
	if s.OldestExpiresAt == nil || expiresAt.Before(*s.OldestExpiresAt) {
		t := expiresAt
		s.OldestExpiresAt = &t
	}
	if s.NewestExpiresAt == nil || expiresAt.After(*s.NewestExpiresAt) {
		t := expiresAt
		s.NewestExpiresAt = &t
	}
}
