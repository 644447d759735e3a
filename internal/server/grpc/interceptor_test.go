package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/timex"
)

const restrictedMethod = "/blog.admin.AdminService/ReindexPosts"

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// helper to build server
func newTestServer(t *testing.T) (*GRPCServer, *auth.TokenService, *timex.FixedClock) {
	t.Helper()
	clock := timex.NewFixedClock(t0)
	tokens := auth.NewTokenService([]byte("secret"), clock)
	s := NewGRPCServer("127.0.0.1:0", nil, tokens)
	s.Restrict(restrictedMethod, access.RoleAuthor)
	return s, tokens, clock
}

func withToken(t *testing.T, tokens *auth.TokenService, role access.Role, ttl time.Duration) context.Context {
	t.Helper()
	tok, err := tokens.Issue("u1", "alice", role, ttl)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	md := metadata.New(map[string]string{"authorization": "Bearer " + tok})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_HealthAllowsWithoutToken(t *testing.T) {
	s, _, _ := newTestServer(t)

	info := &grpc.UnaryServerInfo{FullMethod: healthpb.Health_Check_FullMethodName}
	handlerCalled := false

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	s, _, _ := newTestServer(t)
	info := &grpc.UnaryServerInfo{FullMethod: restrictedMethod}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "missing token" {
		t.Fatalf("expected 'missing token', got %q", status.Convert(err).Message())
	}
}

func TestInterceptor_InvalidAndExpiredToken(t *testing.T) {
	s, tokens, clock := newTestServer(t)
	info := &grpc.UnaryServerInfo{FullMethod: restrictedMethod}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	md := metadata.New(map[string]string{"authorization": "not-a-valid-jwt"})
	_, err := s.accessTokenInterceptor(metadata.NewIncomingContext(context.Background(), md), nil, info, h)
	if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != "invalid token" {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := withToken(t, tokens, access.RoleAuthor, time.Minute)
	clock.Advance(time.Minute)
	_, err = s.accessTokenInterceptor(ctx, nil, info, h)
	if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != "token expired" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInterceptor_RoleWhitelist(t *testing.T) {
	s, tokens, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		role   access.Role
		want   codes.Code
	}{
		{"listed role", restrictedMethod, access.RoleAuthor, codes.OK},
		{"admin bypass", restrictedMethod, access.RoleAdmin, codes.OK},
		{"unlisted role", restrictedMethod, access.RoleUser, codes.PermissionDenied},
		{"unrestricted method", "/blog.posts.PostService/List", access.RoleUser, codes.OK},
		{"health list as user", healthListMethod, access.RoleUser, codes.PermissionDenied},
		{"health list as admin", healthListMethod, access.RoleAdmin, codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got auth.Identity
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				got, _ = IdentityFrom(ctx)
				return "ok", nil
			}

			_, err := s.accessTokenInterceptor(withToken(t, tokens, tt.role, time.Hour), nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, h)
			if status.Code(err) != tt.want {
				t.Fatalf("code = %v, want %v", status.Code(err), tt.want)
			}
			if tt.want == codes.OK && (got.ID != "u1" || got.Role != tt.role) {
				t.Fatalf("identity not propagated: %+v", got)
			}
		})
	}
}

func TestInterceptor_HealthListNeedsToken(t *testing.T) {
	s, _, _ := newTestServer(t)
	info := &grpc.UnaryServerInfo{FullMethod: healthListMethod}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called without a token")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
}
