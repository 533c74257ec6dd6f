package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/0xsj/overwatch-pkg/grpc/middleware"
	"github.com/0xsj/overwatch-pkg/log"

	"github.com/0xsj/overwatch-revocation/internal/app/service"
	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
	"github.com/0xsj/overwatch-revocation/internal/port/inbound/query"
)

// PublicMethods defines methods that don't require authentication.
var PublicMethods = map[string]bool{
	"/grpc.health.v1.Health/Check":                                   true,
	"/grpc.health.v1.Health/Watch":                                   true,
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo":      true,
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo": true,
}

// Claim keys for auth context.
const (
	ClaimKeyUserID    = "user_id"
	ClaimKeyIssuedAt  = "iat"
	ClaimKeyExpiresAt = "exp"
)

// NewAuthenticator creates an Authenticator that verifies the token and
// then rejects it if it has been revoked.
func NewAuthenticator(verifier service.TokenVerifier, revocations query.IsTokenRevokedHandler) middleware.AuthenticatorFunc {
	return func(ctx context.Context, token string) (*middleware.AuthInfo, error) {
		// Signature and expiry first; the registry is only consulted for valid tokens
		claims, err := verifier.VerifyAccessToken(token)
		if err != nil {
			return nil, toGRPCError(domainerror.ErrTokenInvalid)
		}

		result, err := revocations.Handle(ctx, query.IsTokenRevoked{
			UserID:   claims.UserID,
			IssuedAt: claims.IssuedAt,
		})
		if err != nil {
			return nil, toGRPCError(err)
		}
		if result.Revoked {
			return nil, toGRPCError(domainerror.ErrTokenRevoked)
		}

		authInfo := &middleware.AuthInfo{
			Token:   token,
			Scheme:  middleware.BearerScheme,
			Subject: claims.UserID,
			Claims:  make(map[string]any, len(claims.Claims)+3),
		}
		for k, v := range claims.Claims {
			authInfo.Claims[k] = v
		}
		authInfo.Claims[ClaimKeyUserID] = claims.UserID
		authInfo.Claims[ClaimKeyIssuedAt] = claims.IssuedAt
		authInfo.Claims[ClaimKeyExpiresAt] = claims.ExpiresAt

		return authInfo, nil
	}
}

// NewAuthInterceptors creates unary and stream auth interceptors.
func NewAuthInterceptors(verifier service.TokenVerifier, revocations query.IsTokenRevokedHandler) (grpc.UnaryServerInterceptor, grpc.StreamServerInterceptor) {
	cfg := middleware.AuthConfig{
		Header:          middleware.AuthorizationHeader,
		Scheme:          middleware.BearerScheme,
		Authenticator:   NewAuthenticator(verifier, revocations),
		SkipMethods:     PublicMethods,
		SkipHealthCheck: true,
		Optional:        false,
	}

	return middleware.UnaryServerAuthWithConfig(cfg), middleware.StreamServerAuthWithConfig(cfg)
}

// BuildUnaryInterceptors builds the complete unary interceptor chain with correct order.
func BuildUnaryInterceptors(logger log.Logger, verifier service.TokenVerifier, revocations query.IsTokenRevokedHandler) []grpc.UnaryServerInterceptor {
	unaryAuth, _ := NewAuthInterceptors(verifier, revocations)

	return []grpc.UnaryServerInterceptor{
		middleware.UnaryServerRecoveryWithLogger(logger), // 1. Outermost - catch panics
		middleware.UnaryServerRequestID(),                // 2. Generate/extract request ID
		middleware.UnaryServerLogging(logger),            // 3. Log with request ID
		unaryAuth,                                        // 4. Authentication and revocation
	}
}

// BuildStreamInterceptors builds the complete stream interceptor chain with correct order.
func BuildStreamInterceptors(logger log.Logger, verifier service.TokenVerifier, revocations query.IsTokenRevokedHandler) []grpc.StreamServerInterceptor {
	_, streamAuth := NewAuthInterceptors(verifier, revocations)

	return []grpc.StreamServerInterceptor{
		middleware.StreamServerRecoveryWithLogger(logger), // 1. Outermost - catch panics
		middleware.StreamServerRequestID(),                // 2. Generate/extract request ID
		middleware.StreamServerLogging(logger),            // 3. Log with request ID
		streamAuth,                                        // 4. Authentication and revocation
	}
}
