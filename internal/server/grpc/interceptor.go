package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
)

type ctxKey string

const identityKey ctxKey = "identity"

// metadata keys are lower case
var authorizationKey = strings.ToLower(common.AuthorizationHeaderName)

func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// healthListMethod enumerates every registered service, so it is kept for admins.
var healthListMethod = "/" + healthpb.Health_ServiceDesc.ServiceName + "/List"

// public reports whether fullMethod may be called without a token.
func public(fullMethod string) bool {
	return fullMethod == healthpb.Health_Check_FullMethodName
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if public(info.FullMethod) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(authorizationKey)
		if len(values) > 0 {
			accessToken = common.StripBearer(values[0])
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	res := s.tokens.Verify(accessToken)
	if err := res.Err(); err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	id := res.Claims.Identity()
	if !access.Allow(id.Role, s.policy[info.FullMethod]...) {
		s.logger.Warn(ctx, "grpc access denied", "method", info.FullMethod, "user_id", id.ID, "role", string(id.Role))
		return nil, status.Error(codes.PermissionDenied, "access denied")
	}

	ctx = context.WithValue(ctx, identityKey, id)
	ctx = logging.WithUserID(ctx, id.ID)
	return handler(ctx, req)
}
