package rest

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/ratelimit"
)

const (
	MsgAccessTokenMissing = "access token not found in authorization header"
	MsgAccessTokenInvalid = "invalid access token"
	MsgAccessTokenExpired = "access token expired"
	MsgNotAuthenticated   = "user not authenticated"
	MsgAccessDenied       = "access denied: insufficient permissions"
	MsgTooManyRequests    = "too many requests, please try again later"
)

type identityKey struct{}

func withIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller resolved by Authenticate.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// requestLog tags the context with the chi request id and logs one line per
// request once it completes.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Info(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

// Authenticate resolves the bearer access token into an Identity. Requests
// without a valid token are rejected with 401.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		if header == "" {
			s.writeError(w, r, common.Unauthorized("authorization header not found"))
			return
		}

		raw := common.StripBearer(header)
		if raw == "" {
			s.writeError(w, r, common.Unauthorized(MsgAccessTokenMissing))
			return
		}

		res := s.tokens.Verify(raw)
		if err := res.Err(); err != nil {
			msg := MsgAccessTokenInvalid
			if errors.Is(err, common.ErrTokenExpired) {
				msg = MsgAccessTokenExpired
			}
			s.writeError(w, r, common.Unauthorized(msg))
			return
		}

		id := res.Claims.Identity()
		ctx := withIdentity(r.Context(), id)
		ctx = logging.WithUserID(ctx, id.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles lets admins and whitelisted roles through. An empty whitelist
// lets every authenticated caller through.
func (s *Server) RequireRoles(roles ...access.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				s.writeError(w, r, common.Forbidden(MsgNotAuthenticated))
				return
			}
			if !access.Allow(id.Role, roles...) {
				s.writeError(w, r, common.Forbidden(MsgAccessDenied))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) RequirePermission(perm access.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				s.writeError(w, r, common.Forbidden(MsgNotAuthenticated))
				return
			}
			if !access.HasPermission(id.Role, perm) {
				s.writeError(w, r, common.Forbidden(MsgAccessDenied))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit throttles per client address. Without a limiter it is a no-op.
func (s *Server) RateLimit(rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s.limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := s.limiter.Allow(r.Context(), rule, clientIP(r))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				s.fail(w, http.StatusTooManyRequests, StatusTooManyRequests, MsgTooManyRequests)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the peer address, or the forwarded one when RealIP ran.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
