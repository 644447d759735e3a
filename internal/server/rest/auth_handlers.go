package rest

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/services"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateBytes  = 16
	oauthStateMaxAge = 600

	msgGoogleAuthFailed = "google authentication failed"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.auth.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.created(w, u, "registration successful, please verify your email")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, loginResponse{User: res.User, TokenPair: res.Tokens}, "login successful")
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.google == nil {
		s.writeError(w, r, common.NotFound("google login is not configured"))
		return
	}

	state, err := common.MakeRandHexString(oauthStateBytes)
	if err != nil {
		s.writeError(w, r, common.Internal(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.google.AuthURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.google == nil {
		s.writeError(w, r, common.NotFound("google login is not configured"))
		return
	}

	// the state cookie is single use
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/api/auth", MaxAge: -1, HttpOnly: true})

	q := r.URL.Query()
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || q.Get("state") == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		s.writeError(w, r, common.Unauthorized("invalid oauth state"))
		return
	}

	if e := q.Get("error"); e != "" {
		s.logger.Warn(r.Context(), "google denied authorization", "error", e)
		s.writeError(w, r, common.Unauthorized(msgGoogleAuthFailed))
		return
	}

	profile, err := s.google.Profile(r.Context(), q.Get("code"))
	if err != nil {
		s.writeError(w, r, common.WithCause(common.Unauthorized(msgGoogleAuthFailed), err))
		return
	}

	res, err := s.auth.OAuthLogin(r.Context(), profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, oauthRedirect(s.cfg.ClientURL, res.Tokens.AccessToken, res.Tokens.RefreshToken), http.StatusFound)
}

func oauthRedirect(clientURL, accessToken, refreshToken string) string {
	return strings.TrimRight(clientURL, "/") + "/auth/callback?accessToken=" +
		url.QueryEscape(accessToken) + "&refreshToken=" + url.QueryEscape(refreshToken)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	pair, err := s.auth.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, pair, "email verified")
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, nil, "password reset email sent")
}

func (s *Server) handleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
	st, err := s.auth.VerifyResetToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, resetTokenResponse{Valid: st.Valid, Email: st.Email}, "reset token is valid")
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.ResetPassword(r.Context(), r.URL.Query().Get("token"), req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, nil, "password has been reset")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	pair, err := s.auth.Refresh(r.Context(), r.Header.Get(common.AuthorizationHeaderName))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, pair, "token refreshed")
}

// handleVerifyToken never fails; an unreadable body counts as an invalid token.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyTokenRequest
	_ = s.decode(r, &req)

	res := s.auth.VerifyToken(req.Token)
	if !res.Valid {
		s.ok(w, verifyTokenResponse{}, "token is invalid")
		return
	}
	s.ok(w, verifyTokenResponse{Valid: true, UserID: &res.UserID}, "token is valid")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	u, err := s.auth.Me(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, u, "ok")
}

// handleLogout acknowledges the request. Tokens are stateless, so the client
// discards them.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.ok(w, nil, "logged out")
}
