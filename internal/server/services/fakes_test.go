package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/dbx"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/users"
	"github.com/Chanzhaoyu/nest-blog-api/internal/timex"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// memRepo is an in-memory users.Repository with the same one-time token
// semantics as the SQL one.
type memRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	nextID int

	failWith   error   // returned by every call when set
	createErrs []error // returned by successive Create calls
	calls      map[string]int
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*models.User{}, calls: map[string]int{}}
}

func (r *memRepo) enter(name string) error {
	r.calls[name]++
	return r.failWith
}

func clone(u *models.User) *models.User {
	c := *u
	return &c
}

func (r *memRepo) put(u *models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		r.nextID++
		u.ID = fmt.Sprintf("u%d", r.nextID)
	}
	if u.Role == "" {
		u.Role = access.RoleUser
	}
	r.byID[u.ID] = clone(u)
	return clone(u)
}

func (r *memRepo) get(id string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		return clone(u)
	}
	return nil
}

func (r *memRepo) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *memRepo) findLocked(match func(*models.User) bool) *models.User {
	for _, u := range r.byID {
		if match(u) {
			return u
		}
	}
	return nil
}

func (r *memRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Create"); err != nil {
		return nil, err
	}
	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		return nil, err
	}
	for _, e := range r.byID {
		switch {
		case e.Username == u.Username:
			return nil, &users.DuplicateError{Field: users.FieldUsername}
		case e.Email == u.Email:
			return nil, &users.DuplicateError{Field: users.FieldEmail}
		}
	}
	c := clone(u)
	r.nextID++
	c.ID = fmt.Sprintf("u%d", r.nextID)
	if c.Role == "" {
		c.Role = access.RoleUser
	}
	c.CreatedAt, c.UpdatedAt = t0, t0
	r.byID[c.ID] = c
	return clone(c), nil
}

func (r *memRepo) lookup(name string, match func(*models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(name); err != nil {
		return nil, err
	}
	if u := r.findLocked(match); u != nil {
		return clone(u), nil
	}
	return nil, common.ErrorNotFound
}

func (r *memRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	return r.lookup("FindByID", func(u *models.User) bool { return u.ID == id })
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.lookup("FindByEmail", func(u *models.User) bool { return u.Email == email })
}

func (r *memRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return r.lookup("FindByUsername", func(u *models.User) bool { return u.Username == username })
}

func (r *memRepo) FindByEmailOrUsername(_ context.Context, email, username string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("FindByEmailOrUsername"); err != nil {
		return nil, err
	}
	var out []*models.User
	for _, u := range r.byID {
		if u.Email == email || u.Username == username {
			out = append(out, clone(u))
		}
	}
	return out, nil
}

func (r *memRepo) FindByEmailOrProviderID(_ context.Context, email, providerID string) (*models.User, error) {
	return r.lookup("FindByEmailOrProviderID", func(u *models.User) bool {
		return u.Email == email || (u.OAuthProviderID != nil && *u.OAuthProviderID == providerID)
	})
}

func tokenLive(tok *string, exp *time.Time, want string, now time.Time, strict bool) bool {
	if tok == nil || exp == nil || *tok != want {
		return false
	}
	if strict {
		return exp.After(now)
	}
	return !exp.Before(now)
}

func (r *memRepo) FindByResetToken(_ context.Context, token string, now time.Time, strict bool) (*models.User, error) {
	return r.lookup("FindByResetToken", func(u *models.User) bool {
		return tokenLive(u.ResetToken, u.ResetTokenExpiry, token, now, strict)
	})
}

func (r *memRepo) ConsumeVerificationToken(_ context.Context, token string, now time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ConsumeVerificationToken"); err != nil {
		return nil, err
	}
	u := r.findLocked(func(u *models.User) bool {
		return tokenLive(u.VerificationToken, u.VerificationTokenExpiry, token, now, false)
	})
	if u == nil {
		return nil, common.ErrorNotFound
	}
	u.IsVerified = true
	u.VerificationToken, u.VerificationTokenExpiry = nil, nil
	return clone(u), nil
}

func (r *memRepo) ConsumeResetToken(_ context.Context, token string, now time.Time, passwordHash string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ConsumeResetToken"); err != nil {
		return nil, err
	}
	u := r.findLocked(func(u *models.User) bool {
		return tokenLive(u.ResetToken, u.ResetTokenExpiry, token, now, false)
	})
	if u == nil {
		return nil, common.ErrorNotFound
	}
	u.PasswordHash = &passwordHash
	u.ResetToken, u.ResetTokenExpiry = nil, nil
	return clone(u), nil
}

func (r *memRepo) SetResetToken(_ context.Context, email, token string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("SetResetToken"); err != nil {
		return err
	}
	u := r.findLocked(func(u *models.User) bool { return u.Email == email })
	if u == nil {
		return common.ErrorNotFound
	}
	u.ResetToken, u.ResetTokenExpiry = &token, &expiry
	return nil
}

func (r *memRepo) LinkProvider(_ context.Context, id, providerID string, avatar *string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("LinkProvider"); err != nil {
		return nil, err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.OAuthProviderID = &providerID
	u.IsVerified = true
	if u.Avatar == nil {
		u.Avatar = avatar
	}
	return clone(u), nil
}

func (r *memRepo) UpdateProfile(_ context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpdateProfile"); err != nil {
		return nil, err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for _, e := range r.byID {
		if e.ID == id {
			continue
		}
		if upd.Username != nil && e.Username == *upd.Username {
			return nil, &users.DuplicateError{Field: users.FieldUsername}
		}
		if upd.Email != nil && e.Email == *upd.Email {
			return nil, &users.DuplicateError{Field: users.FieldEmail}
		}
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = upd.PasswordHash
	}
	if upd.Avatar != nil {
		u.Avatar = upd.Avatar
	}
	if upd.Bio != nil {
		u.Bio = upd.Bio
	}
	if upd.Address != nil {
		u.Address = upd.Address
	}
	if upd.Phone != nil {
		u.Phone = upd.Phone
	}
	if upd.Age != nil {
		u.Age = upd.Age
	}
	if upd.Gender != nil {
		u.Gender = upd.Gender
	}
	return clone(u), nil
}

func (r *memRepo) SetRole(_ context.Context, id string, role access.Role) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("SetRole"); err != nil {
		return nil, err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.Role = role
	return clone(u), nil
}

func (r *memRepo) List(context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("List"); err != nil {
		return nil, err
	}
	out := make([]*models.User, 0, len(r.byID))
	for i := 1; i <= r.nextID; i++ {
		if u, ok := r.byID[fmt.Sprintf("u%d", i)]; ok {
			out = append(out, clone(u))
		}
	}
	return out, nil
}

type memManager struct {
	repo *memRepo
}

func (m *memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memManager) Users(dbx.DBTX) users.Repository              { return m.repo }

type sentMail struct {
	Kind  string
	Email string
	Token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) record(kind, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{Kind: kind, Email: email, Token: token})
	return nil
}

func (n *fakeNotifier) SendVerification(_ context.Context, email, token string) error {
	return n.record("verification", email, token)
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	return n.record("reset", email, token)
}

func (n *fakeNotifier) last() sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentMail{}
	}
	return n.sent[len(n.sent)-1]
}

// testHasher keeps argon2 cheap in tests.
func testHasher() *auth.Argon2Hasher {
	return &auth.Argon2Hasher{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}
}

type authFixture struct {
	svc      *AuthService
	repo     *memRepo
	notifier *fakeNotifier
	clock    *timex.FixedClock
	tokens   *auth.TokenService
	hasher   *auth.Argon2Hasher
}

func newAuthFixture(t *testing.T, db *sql.DB) *authFixture {
	t.Helper()
	f := &authFixture{
		repo:     newMemRepo(),
		notifier: &fakeNotifier{},
		clock:    timex.NewFixedClock(t0),
		hasher:   testHasher(),
	}
	f.tokens = auth.NewTokenService([]byte("test-secret"), f.clock)
	f.svc = NewAuthService(AuthDeps{
		DB:          db,
		RepoManager: &memManager{repo: f.repo},
		Tokens:      f.tokens,
		Hasher:      f.hasher,
		Notifier:    f.notifier,
		Clock:       f.clock,
	})
	return f
}

// seedUser stores a verified user with the given password.
func (f *authFixture) seedUser(t *testing.T, username, email, password string, role access.Role) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: email, Role: role, IsVerified: true}
	if password != "" {
		h, err := f.hasher.Hash(password)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		u.PasswordHash = &h
	}
	return f.repo.put(u)
}

func ptr[T any](v T) *T { return &v }
