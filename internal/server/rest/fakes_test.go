package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/oauth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/ratelimit"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/services"
	"github.com/Chanzhaoyu/nest-blog-api/internal/timex"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeAuth struct {
	register         func(services.RegisterInput) (models.PublicUser, error)
	login            func(email, password string) (*services.LoginResult, error)
	oauthLogin       func(*oauth.Profile) (*services.LoginResult, error)
	verifyEmail      func(token string) (auth.TokenPair, error)
	forgotPassword   func(email string) error
	verifyResetToken func(token string) (services.ResetTokenStatus, error)
	resetPassword    func(token, pw string) error
	refresh          func(header string) (auth.TokenPair, error)
	verifyToken      func(token string) services.TokenCheck
	me               func(auth.Identity) (models.PublicUser, error)
}

func (f *fakeAuth) Register(_ context.Context, in services.RegisterInput) (models.PublicUser, error) {
	return f.register(in)
}
func (f *fakeAuth) Login(_ context.Context, email, password string) (*services.LoginResult, error) {
	return f.login(email, password)
}
func (f *fakeAuth) OAuthLogin(_ context.Context, p *oauth.Profile) (*services.LoginResult, error) {
	return f.oauthLogin(p)
}
func (f *fakeAuth) VerifyEmail(_ context.Context, token string) (auth.TokenPair, error) {
	return f.verifyEmail(token)
}
func (f *fakeAuth) ForgotPassword(_ context.Context, email string) error {
	return f.forgotPassword(email)
}
func (f *fakeAuth) VerifyResetToken(_ context.Context, token string) (services.ResetTokenStatus, error) {
	return f.verifyResetToken(token)
}
func (f *fakeAuth) ResetPassword(_ context.Context, token, pw string) error {
	return f.resetPassword(token, pw)
}
func (f *fakeAuth) Refresh(_ context.Context, header string) (auth.TokenPair, error) {
	return f.refresh(header)
}
func (f *fakeAuth) VerifyToken(token string) services.TokenCheck { return f.verifyToken(token) }
func (f *fakeAuth) Me(_ context.Context, id auth.Identity) (models.PublicUser, error) {
	return f.me(id)
}

type fakeUsers struct {
	list       func() ([]models.PublicUser, error)
	get        func(username string) (models.PublicUser, error)
	update     func(actor auth.Identity, username string, in services.UpdateInput) (models.PublicUser, error)
	changeRole func(actor auth.Identity, username, role string) (models.PublicUser, error)
	avatar     func(actor auth.Identity) (*services.AvatarUpload, error)
}

func (f *fakeUsers) List(context.Context) ([]models.PublicUser, error) { return f.list() }
func (f *fakeUsers) GetByUsername(_ context.Context, username string) (models.PublicUser, error) {
	return f.get(username)
}
func (f *fakeUsers) UpdateProfile(_ context.Context, actor auth.Identity, username string, in services.UpdateInput) (models.PublicUser, error) {
	return f.update(actor, username, in)
}
func (f *fakeUsers) ChangeRole(_ context.Context, actor auth.Identity, username, role string) (models.PublicUser, error) {
	return f.changeRole(actor, username, role)
}
func (f *fakeUsers) AvatarUploadURL(_ context.Context, actor auth.Identity) (*services.AvatarUpload, error) {
	return f.avatar(actor)
}

type fakeGoogle struct {
	profile *oauth.Profile
	err     error
	code    string
}

func (g *fakeGoogle) AuthURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (g *fakeGoogle) Profile(_ context.Context, code string) (*oauth.Profile, error) {
	g.code = code
	return g.profile, g.err
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	auth    *fakeAuth
	users   *fakeUsers
	google  *fakeGoogle
	tokens  *auth.TokenService
	clock   *timex.FixedClock
}

func newTestEnv(t *testing.T, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, limiter, Config{ClientURL: "http://localhost:5173/"})
}

func newTestEnvWithConfig(t *testing.T, limiter *ratelimit.Limiter, cfg Config) *testEnv {
	t.Helper()
	e := &testEnv{
		auth:   &fakeAuth{},
		users:  &fakeUsers{},
		google: &fakeGoogle{},
		clock:  timex.NewFixedClock(t0),
	}
	e.tokens = auth.NewTokenService([]byte("test-secret"), e.clock)
	e.srv = NewServer(cfg, Deps{
		Auth:    e.auth,
		Users:   e.users,
		Tokens:  e.tokens,
		Google:  e.google,
		Limiter: limiter,
		Clock:   e.clock,
	})
	e.handler = e.srv.Router()
	return e
}

func (e *testEnv) bearer(t *testing.T, id string, role access.Role) string {
	t.Helper()
	tok, err := e.tokens.Issue(id, "user-"+id, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

type result struct {
	Code   int
	Header http.Header
	Body   Envelope
	Raw    string
}

func (e *testEnv) do(t *testing.T, method, target, body string, header map[string]string) result {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	res := result{Code: rec.Code, Header: rec.Header(), Raw: rec.Body.String()}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res.Body), rec.Body.String())
	}
	return res
}

// dataMap decodes the envelope payload as a JSON object.
func dataMap(t *testing.T, r result) map[string]any {
	t.Helper()
	m, ok := r.Body.Data.(map[string]any)
	require.True(t, ok, "data is %T: %s", r.Body.Data, r.Raw)
	return m
}
