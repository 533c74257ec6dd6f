package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/0xsj/overwatch-revocation/internal/port/inbound/command"
	"github.com/0xsj/overwatch-revocation/internal/port/inbound/query"
)

// RevocationServiceName is the fully qualified gRPC service name.
const RevocationServiceName = "overwatch.revocation.v1.RevocationService"

// Full method names of the revocation service.
const (
	MethodRevokeToken         = "/" + RevocationServiceName + "/RevokeToken"
	MethodRevokeAllUserTokens = "/" + RevocationServiceName + "/RevokeAllUserTokens"
	MethodIsTokenRevoked      = "/" + RevocationServiceName + "/IsTokenRevoked"
	MethodGetStats            = "/" + RevocationServiceName + "/GetStats"
)

// Request and response field names. Times are Unix seconds.
const (
	FieldUserID           = "user_id"
	FieldIssuedAt         = "issued_at"
	FieldExpiresAt        = "expires_at"
	FieldReason           = "reason"
	FieldMaxTokenLifetime = "max_token_lifetime_seconds"
	FieldIdentifier       = "identifier"
	FieldRevoked          = "revoked"
	FieldBackend          = "backend"
	FieldSize             = "size"
	FieldOldestExpiresAt  = "oldest_expires_at"
	FieldNewestExpiresAt  = "newest_expires_at"
)

// RevocationServiceServer is the server API of the revocation service.
// Messages are google.protobuf.Struct so no generated contracts are needed.
type RevocationServiceServer interface {
	RevokeToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RevokeAllUserTokens(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	IsTokenRevoked(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Handler implements RevocationServiceServer.
type Handler struct {
	revokeTokenHandler         command.RevokeTokenHandler
	revokeAllUserTokensHandler command.RevokeAllUserTokensHandler
	isTokenRevokedHandler      query.IsTokenRevokedHandler
	getRevocationStatsHandler  query.GetRevocationStatsHandler
}

// HandlerConfig holds all the handlers needed by the gRPC handler.
type HandlerConfig struct {
	RevokeTokenHandler         command.RevokeTokenHandler
	RevokeAllUserTokensHandler command.RevokeAllUserTokensHandler
	IsTokenRevokedHandler      query.IsTokenRevokedHandler
	GetRevocationStatsHandler  query.GetRevocationStatsHandler
}

// NewHandler creates a new gRPC handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		revokeTokenHandler:         cfg.RevokeTokenHandler,
		revokeAllUserTokensHandler: cfg.RevokeAllUserTokensHandler,
		isTokenRevokedHandler:      cfg.IsTokenRevokedHandler,
		getRevocationStatsHandler:  cfg.GetRevocationStatsHandler,
	}
}

// Service returns the handler as a Service for NewServer.
func (h *Handler) Service() Service {
	return Service{Desc: &RevocationServiceDesc, Impl: h}
}

func (h *Handler) RevokeToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd := command.RevokeToken{
		UserID:    stringField(req, FieldUserID),
		IssuedAt:  int64Field(req, FieldIssuedAt),
		ExpiresAt: time.Unix(int64Field(req, FieldExpiresAt), 0),
		Reason:    stringField(req, FieldReason),
	}

	result, err := h.revokeTokenHandler.Handle(ctx, cmd)
	if err != nil {
		return nil, toGRPCError(err)
	}

	return newStruct(map[string]any{
		FieldIdentifier: result.Identifier,
	})
}

func (h *Handler) RevokeAllUserTokens(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd := command.RevokeAllUserTokens{
		UserID:           stringField(req, FieldUserID),
		MaxTokenLifetime: time.Duration(int64Field(req, FieldMaxTokenLifetime)) * time.Second,
		Reason:           stringField(req, FieldReason),
	}

	result, err := h.revokeAllUserTokensHandler.Handle(ctx, cmd)
	if err != nil {
		return nil, toGRPCError(err)
	}

	return newStruct(map[string]any{
		FieldMaxTokenLifetime: result.MaxTokenLifetime.Seconds(),
	})
}

func (h *Handler) IsTokenRevoked(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	qry := query.IsTokenRevoked{
		UserID:   stringField(req, FieldUserID),
		IssuedAt: int64Field(req, FieldIssuedAt),
	}

	result, err := h.isTokenRevokedHandler.Handle(ctx, qry)
	if err != nil {
		return nil, toGRPCError(err)
	}

	return newStruct(map[string]any{
		FieldRevoked: result.Revoked,
	})
}

func (h *Handler) GetStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	result, err := h.getRevocationStatsHandler.Handle(ctx, query.GetRevocationStats{})
	if err != nil {
		return nil, toGRPCError(err)
	}

	resp := map[string]any{
		FieldBackend: result.Backend,
		FieldSize:    result.Stats.Size,
	}
	if result.Stats.OldestExpiresAt != nil {
		resp[FieldOldestExpiresAt] = result.Stats.OldestExpiresAt.Unix()
	}
	if result.Stats.NewestExpiresAt != nil {
		resp[FieldNewestExpiresAt] = result.Stats.NewestExpiresAt.Unix()
	}

	return newStruct(resp)
}

// RevocationServiceDesc describes the revocation service for grpc.Server.
var RevocationServiceDesc = grpc.ServiceDesc{
	ServiceName: RevocationServiceName,
	HandlerType: (*RevocationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RevokeToken",
			Handler:    unaryHandler(MethodRevokeToken, RevocationServiceServer.RevokeToken),
		},
		{
			MethodName: "RevokeAllUserTokens",
			Handler:    unaryHandler(MethodRevokeAllUserTokens, RevocationServiceServer.RevokeAllUserTokens),
		},
		{
			MethodName: "IsTokenRevoked",
			Handler:    unaryHandler(MethodIsTokenRevoked, RevocationServiceServer.IsTokenRevoked),
		},
		{
			MethodName: "GetStats",
			Handler:    unaryHandler(MethodGetStats, RevocationServiceServer.GetStats),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "overwatch/revocation/v1/revocation.proto",
}

type structMethod func(RevocationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a server method to grpc.MethodDesc, running it
// through the server's interceptor chain.
func unaryHandler(fullMethod string, call structMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		server := srv.(RevocationServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func int64Field(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}
