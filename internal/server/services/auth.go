// Package services contains server-side business logic. AuthService runs the
// account flows (registration, login, Google login, email verification,
// password reset, refresh) and UserService the profile management on top of
// the same credential store.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/dbx"
	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/mail"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/oauth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/repomanager"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/users"
	"github.com/Chanzhaoyu/nest-blog-api/internal/timex"
)

// Caller-visible messages.
const (
	MsgUsernameTaken       = "username already taken"
	MsgEmailRegistered     = "email already registered"
	MsgInvalidCredentials  = "invalid credentials"
	MsgEmailNotVerified    = "email not verified"
	MsgInvalidToken        = "invalid token"
	MsgUserNotFound        = "user not found"
	MsgResetFailed         = "failed to process password reset"
	MsgInvalidResetToken   = "invalid or expired reset token"
	MsgNoAuthHeader        = "authorization header not found"
	MsgNoRefreshToken      = "refresh token not found"
	MsgInvalidRefreshToken = "invalid or expired refresh token"
	MsgOAuthEmailMissing   = "oauth provider did not supply an email"
)

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult is returned by the flows that start a session.
type LoginResult struct {
	User   models.PublicUser
	Tokens auth.TokenPair
}

type ResetTokenStatus struct {
	Valid bool
	Email string
}

type TokenCheck struct {
	Valid  bool
	UserID string
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      auth.Hasher
	notifier    mail.Notifier
	clock       timex.Clock
	logger      logging.Logger
	oneTimeTTL  time.Duration
}

type AuthDeps struct {
	DB          *sql.DB
	RepoManager repomanager.RepositoryManager
	Tokens      *auth.TokenService
	Hasher      auth.Hasher
	Notifier    mail.Notifier
	Clock       timex.Clock
	Logger      logging.Logger
	// OneTimeTokenValidity defaults to common.OneTimeTokenValidity.
	OneTimeTokenValidity time.Duration
}

func NewAuthService(d AuthDeps) *AuthService {
	s := &AuthService{
		db:          d.DB,
		repomanager: d.RepoManager,
		tokens:      d.Tokens,
		hasher:      d.Hasher,
		notifier:    d.Notifier,
		clock:       d.Clock,
		logger:      d.Logger,
		oneTimeTTL:  d.OneTimeTokenValidity,
	}
	if s.clock == nil {
		s.clock = timex.SystemClock{}
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	if s.oneTimeTTL <= 0 {
		s.oneTimeTTL = common.OneTimeTokenValidity
	}
	return s
}

func (s *AuthService) users() users.Repository {
	return s.repomanager.Users(s.db)
}

// Register creates an unverified account and mails its verification token.
// No tokens are issued until the email is verified.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (models.PublicUser, error) {
	repo := s.users()

	existing, err := repo.FindByEmailOrUsername(ctx, in.Email, in.Username)
	if err != nil {
		return models.PublicUser{}, s.internal(ctx, "register lookup failed", err)
	}
	for _, u := range existing {
		if u.Email == in.Email {
			return models.PublicUser{}, common.Conflict(MsgEmailRegistered)
		}
	}
	for _, u := range existing {
		if u.Username == in.Username {
			return models.PublicUser{}, common.Conflict(MsgUsernameTaken)
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.PublicUser{}, s.internal(ctx, "password hashing failed", err)
	}

	token, err := common.MakeRandHexString(common.OneTimeTokenBytes)
	if err != nil {
		return models.PublicUser{}, s.internal(ctx, "token generation failed", err)
	}
	expiry := s.clock.Now().Add(s.oneTimeTTL)

	u, err := repo.Create(ctx, &models.User{
		Username:                in.Username,
		Email:                   in.Email,
		PasswordHash:            &hash,
		Role:                    access.RoleUser,
		VerificationToken:       &token,
		VerificationTokenExpiry: &expiry,
	})
	if err != nil {
		if conflict := duplicateToConflict(err); conflict != nil {
			return models.PublicUser{}, conflict
		}
		return models.PublicUser{}, s.internal(ctx, "create user failed", err)
	}

	if err := s.notifier.SendVerification(ctx, u.Email, token); err != nil {
		s.logger.Error(ctx, "verification mail failed", "user_id", u.ID, "error", err)
		return models.PublicUser{}, common.Internal(err)
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID)
	return u.Public(), nil
}

// Login checks the password and issues a token pair. Unknown email, an
// account without a password and a wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Unauthorized(MsgInvalidCredentials)
		}
		return nil, s.internal(ctx, "login lookup failed", err)
	}

	if !u.HasPassword() {
		return nil, common.Unauthorized(MsgInvalidCredentials)
	}

	ok, err := s.hasher.Verify(*u.PasswordHash, password)
	if err != nil {
		s.logger.Warn(ctx, "stored password hash unusable", "user_id", u.ID, "error", err)
		return nil, common.Unauthorized(MsgInvalidCredentials)
	}
	if !ok {
		return nil, common.Unauthorized(MsgInvalidCredentials)
	}

	if !u.IsVerified {
		return nil, common.Unauthorized(MsgEmailNotVerified)
	}

	return s.session(ctx, u)
}

// OAuthLogin finds the account matching the provider profile by email or
// provider id, creating or linking it as needed, and issues a token pair.
func (s *AuthService) OAuthLogin(ctx context.Context, p *oauth.Profile) (*LoginResult, error) {
	if p == nil || p.Email == "" {
		return nil, common.BadRequest(MsgOAuthEmailMissing)
	}

	var u *models.User
	var err error
	// A concurrent first login for the same identity aborts one transaction
	// on a unique index; the retry then finds the row the other one created.
	for attempt := 0; attempt < 2; attempt++ {
		u, err = s.oauthFindOrCreate(ctx, p)
		if err == nil || !errors.Is(err, common.ErrorConflict) {
			break
		}
	}
	if err != nil {
		return nil, s.internal(ctx, "oauth account resolution failed", err)
	}

	return s.session(ctx, u)
}

func (s *AuthService) oauthFindOrCreate(ctx context.Context, p *oauth.Profile) (*models.User, error) {
	var out *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		u, err := repo.FindByEmailOrProviderID(ctx, p.Email, p.ProviderID)
		switch {
		case err == nil && u.OAuthProviderID != nil:
			out = u
			return nil
		case err == nil:
			out, err = repo.LinkProvider(ctx, u.ID, p.ProviderID, optional(p.AvatarURL))
			if err == nil {
				s.logger.Info(ctx, "oauth identity linked", "user_id", out.ID)
			}
			return err
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		username, err := s.freeUsername(ctx, repo, p)
		if err != nil {
			return err
		}

		providerID := p.ProviderID
		out, err = repo.Create(ctx, &models.User{
			Username:        username,
			Email:           p.Email,
			Role:            access.RoleUser,
			IsVerified:      true,
			Avatar:          optional(p.AvatarURL),
			OAuthProviderID: &providerID,
		})
		if err == nil {
			s.logger.Info(ctx, "oauth user created", "user_id", out.ID)
		}
		return err
	})

	return out, err
}

// VerifyEmail consumes a verification token and logs the user in. Unknown
// and expired tokens fail the same way; of several concurrent calls with one
// token exactly one succeeds.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (auth.TokenPair, error) {
	if token == "" {
		return auth.TokenPair{}, common.BadRequest(MsgInvalidToken)
	}

	u, err := s.users().ConsumeVerificationToken(ctx, token, s.clock.Now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return auth.TokenPair{}, common.BadRequest(MsgInvalidToken)
		}
		return auth.TokenPair{}, s.internal(ctx, "verification update failed", err)
	}

	s.logger.Info(ctx, "email verified", "user_id", u.ID)

	pair, err := s.tokens.IssuePair(u.ID, u.Username, u.Role)
	if err != nil {
		return auth.TokenPair{}, s.internal(ctx, "token signing failed", err)
	}
	return pair, nil
}

// ForgotPassword stores a fresh reset token and mails it. Unknown addresses
// are reported as such; every other failure collapses into one bad request.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	repo := s.users()

	u, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound(MsgUserNotFound)
		}
		return s.resetFailed(ctx, err)
	}

	token, err := common.MakeRandHexString(common.OneTimeTokenBytes)
	if err != nil {
		return s.resetFailed(ctx, err)
	}

	if err := repo.SetResetToken(ctx, u.Email, token, s.clock.Now().Add(s.oneTimeTTL)); err != nil {
		return s.resetFailed(ctx, err)
	}

	if err := s.notifier.SendPasswordReset(ctx, u.Email, token); err != nil {
		return s.resetFailed(ctx, err)
	}

	s.logger.Info(ctx, "password reset requested", "user_id", u.ID)
	return nil
}

// VerifyResetToken is a read-only pre-check. The token must expire strictly
// after now.
func (s *AuthService) VerifyResetToken(ctx context.Context, token string) (ResetTokenStatus, error) {
	if token == "" {
		return ResetTokenStatus{}, common.NotFound(MsgInvalidResetToken)
	}

	u, err := s.users().FindByResetToken(ctx, token, s.clock.Now(), true)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ResetTokenStatus{}, common.NotFound(MsgInvalidResetToken)
		}
		return ResetTokenStatus{}, s.internal(ctx, "reset token lookup failed", err)
	}

	return ResetTokenStatus{Valid: true, Email: u.Email}, nil
}

// ResetPassword replaces the password of the reset token's owner. A token
// expiring exactly now is still accepted. No session is started.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return common.BadRequest(MsgInvalidToken)
	}

	repo := s.users()
	now := s.clock.Now()

	if _, err := repo.FindByResetToken(ctx, token, now, false); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.BadRequest(MsgInvalidToken)
		}
		return s.internal(ctx, "reset token lookup failed", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.internal(ctx, "password hashing failed", err)
	}

	u, err := repo.ConsumeResetToken(ctx, token, now, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.BadRequest(MsgInvalidToken)
		}
		return s.internal(ctx, "password reset update failed", err)
	}

	s.logger.Info(ctx, "password reset", "user_id", u.ID)
	return nil
}

// Refresh exchanges a refresh token, passed as the raw Authorization header
// value, for a new pair. The new pair carries the user's current role.
func (s *AuthService) Refresh(ctx context.Context, authorization string) (auth.TokenPair, error) {
	if authorization == "" {
		return auth.TokenPair{}, common.Unauthorized(MsgNoAuthHeader)
	}

	raw := common.StripBearer(authorization)
	if raw == "" {
		return auth.TokenPair{}, common.Unauthorized(MsgNoRefreshToken)
	}

	res := s.tokens.Verify(raw)
	if !res.OK() {
		return auth.TokenPair{}, common.Unauthorized(MsgInvalidRefreshToken)
	}

	u, err := s.users().FindByID(ctx, res.Claims.UserID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "refresh lookup failed", "error", err)
		}
		return auth.TokenPair{}, common.Unauthorized(MsgInvalidRefreshToken)
	}

	pair, err := s.tokens.IssuePair(u.ID, u.Username, u.Role)
	if err != nil {
		s.logger.Error(ctx, "token signing failed", "error", err)
		return auth.TokenPair{}, common.Unauthorized(MsgInvalidRefreshToken)
	}
	return pair, nil
}

// VerifyToken reports whether token is currently valid and whose it is.
func (s *AuthService) VerifyToken(token string) TokenCheck {
	res := s.tokens.Verify(common.StripBearer(token))
	if !res.OK() {
		return TokenCheck{}
	}
	return TokenCheck{Valid: true, UserID: res.Claims.UserID}
}

// Me returns the caller's profile as currently stored.
func (s *AuthService) Me(ctx context.Context, id auth.Identity) (models.PublicUser, error) {
	u, err := s.users().FindByID(ctx, id.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.PublicUser{}, common.Unauthorized(MsgUserNotFound)
		}
		return models.PublicUser{}, s.internal(ctx, "profile lookup failed", err)
	}
	return u.Public(), nil
}

// --- helpers below ---

func (s *AuthService) session(ctx context.Context, u *models.User) (*LoginResult, error) {
	pair, err := s.tokens.IssuePair(u.ID, u.Username, u.Role)
	if err != nil {
		return nil, s.internal(ctx, "token signing failed", err)
	}
	return &LoginResult{User: u.Public(), Tokens: pair}, nil
}

func (s *AuthService) internal(ctx context.Context, msg string, err error) error {
	s.logger.Error(ctx, msg, "error", err)
	return common.Internal(err)
}

func (s *AuthService) resetFailed(ctx context.Context, err error) error {
	s.logger.Error(ctx, "password reset failed", "error", err)
	return common.WithCause(common.BadRequest(MsgResetFailed), err)
}

func duplicateToConflict(err error) error {
	switch users.DuplicateField(err) {
	case users.FieldUsername:
		return common.Conflict(MsgUsernameTaken)
	case users.FieldEmail:
		return common.Conflict(MsgEmailRegistered)
	case "":
		return nil
	default:
		return common.Conflict("account already exists")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
