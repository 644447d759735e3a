package models

import (
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
)

// User is a row of the users table. Nullable columns are pointers.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash *string
	Role         access.Role
	IsVerified   bool

	Avatar  *string
	Bio     *string
	Address *string
	Phone   *string
	Age     *int
	Gender  *string

	OAuthProviderID *string

	VerificationToken       *string
	VerificationTokenExpiry *time.Time
	ResetToken              *string
	ResetTokenExpiry        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the projection of User that may leave the server. It never
// carries the password hash, one-time tokens or the provider id.
type PublicUser struct {
	ID         string      `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	Role       access.Role `json:"role"`
	IsVerified bool        `json:"isVerified"`
	Avatar     *string     `json:"avatar"`
	Bio        *string     `json:"bio,omitempty"`
	Address    *string     `json:"address,omitempty"`
	Phone      *string     `json:"phone,omitempty"`
	Age        *int        `json:"age,omitempty"`
	Gender     *string     `json:"gender,omitempty"`
	CreatedAt  *time.Time  `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time  `json:"updatedAt,omitempty"`
}

func (u *User) Public() PublicUser {
	p := PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		Avatar:     u.Avatar,
		Bio:        u.Bio,
		Address:    u.Address,
		Phone:      u.Phone,
		Age:        u.Age,
		Gender:     u.Gender,
	}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		p.CreatedAt = &created
	}
	if !u.UpdatedAt.IsZero() {
		updated := u.UpdatedAt
		p.UpdatedAt = &updated
	}
	return p
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// ProfileUpdate lists the columns a profile edit may change. Nil means keep.
type ProfileUpdate struct {
	Username     *string
	Email        *string
	PasswordHash *string
	Avatar       *string
	Bio          *string
	Address      *string
	Phone        *string
	Age          *int
	Gender       *string
}

func (p ProfileUpdate) Empty() bool {
	return p == ProfileUpdate{}
}
