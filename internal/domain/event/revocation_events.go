package event

import (
	"time"
)

// TokenRevoked is emitted when a single access token is revoked.
type TokenRevoked struct {
	BaseEvent
	UserID     string    `json:"user_id"`
	Identifier string    `json:"identifier"`
	ExpiresAt  time.Time `json:"expires_at"`
	Reason     string    `json:"reason,omitempty"`
}

// NewTokenRevoked creates a new TokenRevoked event.
func NewTokenRevoked(userID, identifier string, expiresAt time.Time, reason string) TokenRevoked {
	return TokenRevoked{
		BaseEvent:  NewBaseEvent(EventTypeTokenRevoked, userID, AggregateTypeUser),
		UserID:     userID,
		Identifier: identifier,
		ExpiresAt:  expiresAt,
		Reason:     reason,
	}
}

// UserTokensRevoked is emitted when every token of a user issued before a
// cutoff is revoked.
type UserTokensRevoked struct {
	BaseEvent
	UserID       string    `json:"user_id"`
	IssuedBefore int64     `json:"issued_before"`
	ExpiresAt    time.Time `json:"expires_at"`
	Reason       string    `json:"reason,omitempty"`
}

// NewUserTokensRevoked creates a new UserTokensRevoked event.
func NewUserTokensRevoked(userID string, issuedBefore int64, expiresAt time.Time, reason string) UserTokensRevoked {
	return UserTokensRevoked{
		BaseEvent:    NewBaseEvent(EventTypeUserTokensRevoked, userID, AggregateTypeUser),
		UserID:       userID,
		IssuedBefore: issuedBefore,
		ExpiresAt:    expiresAt,
		Reason:       reason,
	}
}

// RegistryCleared is emitted when every entry of the registry is dropped.
type RegistryCleared struct {
	BaseEvent
	Backend string `json:"backend"`
}

// NewRegistryCleared creates a new RegistryCleared event.
func NewRegistryCleared(backend string) RegistryCleared {
	return RegistryCleared{
		BaseEvent: NewBaseEvent(EventTypeRegistryCleared, backend, "registry"),
		Backend:   backend,
	}
}
