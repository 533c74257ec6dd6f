package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
)

// TokenVerifier validates access tokens and extracts the claims the
// revocation check needs.
type TokenVerifier interface {
	// VerifyAccessToken checks signature, expiry, issuer and audience.
	VerifyAccessToken(token string) (*AccessTokenClaims, error)
}

// AccessTokenClaims contains the verified claims of an access token.
type AccessTokenClaims struct {
	UserID    string
	IssuedAt  int64
	ExpiresAt time.Time
	Claims    map[string]any
}

// TokenConfig holds configuration for token verification.
type TokenConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
}

// DefaultTokenConfig returns default token configuration.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:   "overwatch-identity",
		Audience: "overwatch",
	}
}

// tokenVerifier implements TokenVerifier for HS256 tokens.
type tokenVerifier struct {
	config TokenConfig
	parser *jwt.Parser
}

// NewTokenVerifier creates a new TokenVerifier.
func NewTokenVerifier(config TokenConfig) (TokenVerifier, error) {
	if len(config.SigningKey) == 0 {
		return nil, errors.New("token signing key is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}

	return &tokenVerifier{
		config: config,
		parser: jwt.NewParser(opts...),
	}, nil
}

func (v *tokenVerifier) VerifyAccessToken(token string) (*AccessTokenClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.config.SigningKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerror.ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, domainerror.ErrTokenInvalid
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domainerror.ErrTokenInvalid)
	}

	// Revocation is keyed on iat, so it is mandatory
	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat claim", domainerror.ErrTokenInvalid)
	}

	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", domainerror.ErrTokenInvalid)
	}

	return &AccessTokenClaims{
		UserID:    subject,
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: expiresAt.Time,
		Claims:    claims,
	}, nil
}
