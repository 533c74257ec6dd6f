package error

import (
	"github.com/0xsj/overwatch-pkg/errors"
)

// Domain error codes
const (
	// Configuration errors
	CodeBackendUnknown           errors.Code = "REVOCATION_BACKEND_UNKNOWN"
	CodeRemoteCredentialsMissing errors.Code = "REVOCATION_REMOTE_CREDENTIALS_MISSING"
	CodeRemoteCredentialsPartial errors.Code = "REVOCATION_REMOTE_CREDENTIALS_PARTIAL"

	// Registry errors
	CodeLegacyRequiresMemory errors.Code = "REVOCATION_LEGACY_REQUIRES_MEMORY"
	CodeRegistryClosed       errors.Code = "REVOCATION_REGISTRY_CLOSED"

	// Input errors
	CodeUserIDRequired errors.Code = "USER_ID_REQUIRED"

	// Token errors
	CodeTokenInvalid errors.Code = "TOKEN_INVALID"
	CodeTokenRevoked errors.Code = "TOKEN_REVOKED"
)

// Configuration errors
var (
	ErrBackendUnknown = errors.New(errors.KindValidation, CodeBackendUnknown, "unknown revocation backend")

	ErrRemoteCredentialsMissing = errors.New(errors.KindValidation, CodeRemoteCredentialsMissing, "remote revocation backend requires both URL and token")

	ErrRemoteCredentialsPartial = errors.New(errors.KindValidation, CodeRemoteCredentialsPartial, "remote revocation backend URL and token must be set together")
)

// Registry errors
var (
	ErrLegacyRequiresMemory = errors.New(errors.KindDomain, CodeLegacyRequiresMemory, "legacy synchronous registry is only available for the in-process backend")

	ErrRegistryClosed = errors.New(errors.KindDomain, CodeRegistryClosed, "revocation registry is closed")
)

// Input errors
var (
	ErrUserIDRequired = errors.New(errors.KindValidation, CodeUserIDRequired, "user ID is required")
)

// Token errors
var (
	ErrTokenInvalid = errors.New(errors.KindUnauthorized, CodeTokenInvalid, "token is invalid")

	ErrTokenRevoked = errors.New(errors.KindUnauthorized, CodeTokenRevoked, "token has been revoked")
)
