package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/dbx"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
)

const userColumns = `id, username, email, password_hash, role, is_verified,
	avatar, bio, address, phone, age, gender, oauth_provider_id,
	verification_token, verification_token_expiry, reset_token, reset_token_expiry,
	created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	var role string
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsVerified,
		&u.Avatar, &u.Bio, &u.Address, &u.Phone, &u.Age, &u.Gender, &u.OAuthProviderID,
		&u.VerificationToken, &u.VerificationTokenExpiry, &u.ResetToken, &u.ResetTokenExpiry,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = access.Role(role)
	return u, nil
}

// queryOne runs a single-row query and maps the outcome onto the repository
// error contract.
func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if d, ok := asDuplicate(err); ok {
			return nil, d
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, password_hash, role, is_verified, avatar,
		                    oauth_provider_id, verification_token, verification_token_expiry)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`

	role := user.Role
	if role == "" {
		role = access.RoleUser
	}

	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, string(role), user.IsVerified, user.Avatar,
		user.OAuthProviderID, user.VerificationToken, user.VerificationTokenExpiry,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if d, ok := asDuplicate(err); ok {
			return nil, d
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Role = role
	return user, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) FindByEmailOrUsername(ctx context.Context, email, username string) ([]*models.User, error) {
	return r.queryMany(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email = $1 OR username = $2`,
		email, username)
}

func (r *PostgresRepository) FindByEmailOrProviderID(ctx context.Context, email, providerID string) (*models.User, error) {
	return r.queryOne(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email = $1 OR oauth_provider_id = $2
		 ORDER BY created_at
		 LIMIT 1
		 FOR UPDATE`,
		email, providerID)
}

// FindByResetToken matches unexpired reset tokens. With strict the token must
// expire after now; otherwise expiring exactly at now still matches.
func (r *PostgresRepository) FindByResetToken(ctx context.Context, token string, now time.Time, strict bool) (*models.User, error) {
	cmp := ">="
	if strict {
		cmp = ">"
	}
	return r.queryOne(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reset_token = $1 AND reset_token_expiry `+cmp+` $2`,
		token, now)
}

func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	return r.queryOne(ctx,
		`UPDATE users
		 SET is_verified = TRUE,
		     verification_token = NULL,
		     verification_token_expiry = NULL,
		     updated_at = now()
		 WHERE verification_token = $1 AND verification_token_expiry >= $2
		 RETURNING `+userColumns,
		token, now)
}

func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, token string, now time.Time, passwordHash string) (*models.User, error) {
	return r.queryOne(ctx,
		`UPDATE users
		 SET password_hash = $3,
		     reset_token = NULL,
		     reset_token_expiry = NULL,
		     updated_at = now()
		 WHERE reset_token = $1 AND reset_token_expiry >= $2
		 RETURNING `+userColumns,
		token, now, passwordHash)
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, email, token string, expiry time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET reset_token = $2, reset_token_expiry = $3, updated_at = now()
		 WHERE email = $1`,
		email, token, expiry)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.RequireOneRow(res)
}

// LinkProvider attaches an external identity to an existing account, marks it
// verified and fills the avatar only when the account has none.
func (r *PostgresRepository) LinkProvider(ctx context.Context, id, providerID string, avatar *string) (*models.User, error) {
	return r.queryOne(ctx,
		`UPDATE users
		 SET oauth_provider_id = $2,
		     is_verified = TRUE,
		     avatar = COALESCE(avatar, $3),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, providerID, avatar)
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	return r.queryOne(ctx,
		`UPDATE users
		 SET username = COALESCE($2, username),
		     email = COALESCE($3, email),
		     password_hash = COALESCE($4, password_hash),
		     avatar = COALESCE($5, avatar),
		     bio = COALESCE($6, bio),
		     address = COALESCE($7, address),
		     phone = COALESCE($8, phone),
		     age = COALESCE($9, age),
		     gender = COALESCE($10, gender),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, upd.Username, upd.Email, upd.PasswordHash, upd.Avatar,
		upd.Bio, upd.Address, upd.Phone, upd.Age, upd.Gender)
}

func (r *PostgresRepository) SetRole(ctx context.Context, id string, role access.Role) (*models.User, error) {
	return r.queryOne(ctx,
		`UPDATE users SET role = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, string(role))
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.User, error) {
	return r.queryMany(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
}
