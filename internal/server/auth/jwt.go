package auth

import (
	"errors"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTokenValidity  = 15 * time.Minute
	DefaultRefreshTokenValidity = 7 * 24 * time.Hour
)

// Claims are the identity fields carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string      `json:"id"`
	Username string      `json:"username"`
	Role     access.Role `json:"role"`
}

// Identity is the caller resolved from a verified token.
type Identity struct {
	ID       string
	Username string
	Role     access.Role
}

func (c *Claims) Identity() Identity {
	role := c.Role
	if role == "" {
		role = access.RoleUser
	}
	return Identity{ID: c.UserID, Username: c.Username, Role: role}
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type TokenStatus int

const (
	TokenInvalid TokenStatus = iota
	TokenValid
	TokenExpired
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// VerifyResult is the outcome of Verify. Claims is nil unless Status is
// TokenValid.
type VerifyResult struct {
	Status TokenStatus
	Claims *Claims
}

func (r VerifyResult) OK() bool {
	return r.Status == TokenValid && r.Claims != nil
}

// Err maps a failed result onto the shared token errors.
func (r VerifyResult) Err() error {
	switch {
	case r.OK():
		return nil
	case r.Status == TokenExpired:
		return common.ErrTokenExpired
	default:
		return common.ErrInvalidToken
	}
}

// TokenService signs and verifies HS256 tokens with a fixed secret. It keeps
// no state besides its configuration and is safe for concurrent use.
type TokenService struct {
	secret     []byte
	clock      timex.Clock
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type Option func(*TokenService)

// WithLifetimes overrides the access and refresh lifetimes used by IssuePair.
// Non-positive values keep the defaults.
func WithLifetimes(access, refresh time.Duration) Option {
	return func(s *TokenService) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

func NewTokenService(secret []byte, clock timex.Clock, opts ...Option) *TokenService {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	s := &TokenService{
		secret:     append([]byte(nil), secret...),
		clock:      clock,
		accessTTL:  DefaultAccessTokenValidity,
		refreshTTL: DefaultRefreshTokenValidity,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue signs a token for the subject that expires lifetime from now.
// Claims carry whole seconds, so the issue time is truncated first and exp is
// always exactly iat plus lifetime.
func (s *TokenService) Issue(subjectID, username string, role access.Role, lifetime time.Duration) (string, error) {
	now := s.clock.Now().Truncate(time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		UserID:   subjectID,
		Username: username,
		Role:     role,
	})

	return token.SignedString(s.secret)
}

// IssuePair issues an access and a refresh token for the same identity.
func (s *TokenService) IssuePair(subjectID, username string, role access.Role) (TokenPair, error) {
	at, err := s.Issue(subjectID, username, role, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	rt, err := s.Issue(subjectID, username, role, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: at, RefreshToken: rt}, nil
}

// Verify checks signature, algorithm and expiry. A token is expired once the
// clock reaches its exp claim. Verify never panics on bad input.
func (s *TokenService) Verify(tokenString string) VerifyResult {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifyResult{Status: TokenExpired}
		}
		return VerifyResult{Status: TokenInvalid}
	}

	if !token.Valid || claims.UserID == "" {
		return VerifyResult{Status: TokenInvalid}
	}

	return VerifyResult{Status: TokenValid, Claims: claims}
}
