package users

import (
	"context"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
)

// Repository is the credential store. Lookups that find nothing return
// common.ErrorNotFound; unique violations return *DuplicateError.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)

	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) ([]*models.User, error)
	// FindByEmailOrProviderID locks the matched row; call it inside a transaction.
	FindByEmailOrProviderID(ctx context.Context, email, providerID string) (*models.User, error)

	FindByResetToken(ctx context.Context, token string, now time.Time, strict bool) (*models.User, error)

	// ConsumeVerificationToken marks the owner verified and clears the token
	// in one statement. At most one caller can succeed for a given token.
	ConsumeVerificationToken(ctx context.Context, token string, now time.Time) (*models.User, error)
	// ConsumeResetToken stores passwordHash and clears the reset token in one
	// statement. At most one caller can succeed for a given token.
	ConsumeResetToken(ctx context.Context, token string, now time.Time, passwordHash string) (*models.User, error)
	SetResetToken(ctx context.Context, email, token string, expiry time.Time) error

	LinkProvider(ctx context.Context, id, providerID string, avatar *string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
	SetRole(ctx context.Context, id string, role access.Role) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
}
