// Package rest is the HTTP boundary of the blog API. Routes live under /api
// and every response uses the Envelope format.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/oauth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/ratelimit"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/services"
	"github.com/Chanzhaoyu/nest-blog-api/internal/timex"
)

var (
	registerRule = ratelimit.Rule{Route: "register", Limit: 50, Window: 5 * time.Minute}
	loginRule    = ratelimit.Rule{Route: "login", Limit: 50, Window: 5 * time.Minute}
	forgotRule   = ratelimit.Rule{Route: "forgot-password", Limit: 1, Window: time.Minute}
)

// AuthAPI is the part of services.AuthService the handlers use.
type AuthAPI interface {
	Register(ctx context.Context, in services.RegisterInput) (models.PublicUser, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	OAuthLogin(ctx context.Context, p *oauth.Profile) (*services.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) (auth.TokenPair, error)
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, token string) (services.ResetTokenStatus, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	Refresh(ctx context.Context, authorization string) (auth.TokenPair, error)
	VerifyToken(token string) services.TokenCheck
	Me(ctx context.Context, id auth.Identity) (models.PublicUser, error)
}

// UserAPI is the part of services.UserService the handlers use.
type UserAPI interface {
	List(ctx context.Context) ([]models.PublicUser, error)
	GetByUsername(ctx context.Context, username string) (models.PublicUser, error)
	UpdateProfile(ctx context.Context, actor auth.Identity, username string, in services.UpdateInput) (models.PublicUser, error)
	ChangeRole(ctx context.Context, actor auth.Identity, username, role string) (models.PublicUser, error)
	AvatarUploadURL(ctx context.Context, actor auth.Identity) (*services.AvatarUpload, error)
}

type TokenVerifier interface {
	Verify(token string) auth.VerifyResult
}

type Config struct {
	// ClientURL is the front-end origin OAuth logins are redirected to.
	ClientURL string
	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Without it rate limits key on the socket peer.
	TrustProxy bool
}

type Server struct {
	auth     AuthAPI
	users    UserAPI
	tokens   TokenVerifier
	google   oauth.Provider
	limiter  *ratelimit.Limiter
	cfg      Config
	clock    timex.Clock
	logger   logging.Logger
	validate *validator.Validate
}

type Deps struct {
	Auth    AuthAPI
	Users   UserAPI
	Tokens  TokenVerifier
	Google  oauth.Provider     // optional
	Limiter *ratelimit.Limiter // optional
	Clock   timex.Clock
	Logger  logging.Logger
}

func NewServer(cfg Config, d Deps) *Server {
	s := &Server{
		auth:     d.Auth,
		users:    d.Users,
		tokens:   d.Tokens,
		google:   d.Google,
		limiter:  d.Limiter,
		cfg:      cfg,
		clock:    d.Clock,
		logger:   d.Logger,
		validate: newValidator(),
	}
	if s.clock == nil {
		s.clock = timex.SystemClock{}
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	return s
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, http.StatusNotFound, StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, http.StatusMethodNotAllowed, StatusBadRequest, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.ok(w, map[string]string{"status": "ok"}, "ok")
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", s.authRoutes)
		api.Route("/users", s.userRoutes)
	})

	return r
}

func (s *Server) authRoutes(r chi.Router) {
	r.With(s.RateLimit(registerRule)).Post("/register", s.handleRegister)
	r.With(s.RateLimit(loginRule)).Post("/login", s.handleLogin)
	r.Get("/google", s.handleGoogleLogin)
	r.Get("/callback/google", s.handleGoogleCallback)
	r.Get("/verify-email", s.handleVerifyEmail)
	r.With(s.RateLimit(forgotRule)).Post("/forgot-password", s.handleForgotPassword)
	r.Get("/verify-password", s.handleVerifyResetToken)
	r.Post("/reset-password", s.handleResetPassword)
	r.Post("/refresh-token", s.handleRefresh)
	r.Post("/verify-token", s.handleVerifyToken)

	r.Group(func(r chi.Router) {
		r.Use(s.Authenticate)
		r.Get("/me", s.handleMe)
		r.Post("/logout", s.handleLogout)
	})
}

func (s *Server) userRoutes(r chi.Router) {
	r.Use(s.Authenticate)

	r.With(s.RequirePermission(access.ManageUsers)).Get("/", s.handleListUsers)
	r.Post("/me/avatar", s.handleAvatarUpload)
	r.Get("/{username}", s.handleGetUser)
	r.Patch("/{username}", s.handleUpdateUser)
	r.With(s.RequireRoles(access.RoleAdmin)).Patch("/{username}/role", s.handleChangeRole)
}
