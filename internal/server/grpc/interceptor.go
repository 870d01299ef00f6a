package grpc

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/minmer/recreatio-sub002/internal/api"
	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const callerKey ctxKey = "caller"

func methodName(fullMethod string) string {
	return strings.TrimPrefix(fullMethod, "/"+api.ServiceName+"/")
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) > 0 {
		return values[0]
	}
	return ""
}

// accessTokenInterceptor resolves the session of every non-public call. An
// optional h3 header supplies the secret for secure-mode sessions.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if api.Public(methodName(info.FullMethod)) {
		return handler(ctx, req)
	}

	var accessToken, encodedSecret string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		accessToken = firstValue(md, common.AccessTokenHeaderName)
		encodedSecret = firstValue(md, common.SecretHeaderName)
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	var h3 []byte
	if encodedSecret != "" {
		b, err := base64.StdEncoding.DecodeString(encodedSecret)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "malformed secret header")
		}
		h3 = b
	}

	c, err := s.svc.Accounts.Authenticate(ctx, accessToken, h3)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	ctx = context.WithValue(ctx, callerKey, c)
	return handler(ctx, req)
}

func callerFrom(ctx context.Context) (*services.Caller, error) {
	c, ok := ctx.Value(callerKey).(*services.Caller)
	if !ok || c == nil {
		return nil, status.Error(codes.Unauthenticated, "missing session")
	}
	return c, nil
}
