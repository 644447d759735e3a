package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/models"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/repomanager"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/users"
)

// UpdateInput is a partial profile edit. Nil fields are left unchanged.
type UpdateInput struct {
	Username *string
	Email    *string
	Password *string
	Avatar   *string
	Bio      *string
	Address  *string
	Phone    *string
	Age      *int
	Gender   *string
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.Hasher
	avatars     AvatarStorage
	logger      logging.Logger
}

func NewUserService(db *sql.DB, repomanager repomanager.RepositoryManager, hasher auth.Hasher, avatars AvatarStorage, logger logging.Logger) *UserService {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &UserService{
		db:          db,
		repomanager: repomanager,
		hasher:      hasher,
		avatars:     avatars,
		logger:      logger,
	}
}

func (s *UserService) users() users.Repository {
	return s.repomanager.Users(s.db)
}

func (s *UserService) List(ctx context.Context) ([]models.PublicUser, error) {
	list, err := s.users().List(ctx)
	if err != nil {
		s.logger.Error(ctx, "list users failed", "error", err)
		return nil, common.Internal(err)
	}

	out := make([]models.PublicUser, 0, len(list))
	for _, u := range list {
		out = append(out, u.Public())
	}
	return out, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (models.PublicUser, error) {
	u, err := s.find(ctx, username)
	if err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}

// UpdateProfile edits the profile of username. Callers may edit themselves;
// editing anyone else needs the manage:users permission.
func (s *UserService) UpdateProfile(ctx context.Context, actor auth.Identity, username string, in UpdateInput) (models.PublicUser, error) {
	target, err := s.find(ctx, username)
	if err != nil {
		return models.PublicUser{}, err
	}

	if target.ID != actor.ID && !access.HasPermission(actor.Role, access.ManageUsers) {
		return models.PublicUser{}, common.Forbidden("insufficient permissions")
	}

	upd := models.ProfileUpdate{
		Username: in.Username,
		Email:    in.Email,
		Avatar:   in.Avatar,
		Bio:      in.Bio,
		Address:  in.Address,
		Phone:    in.Phone,
		Age:      in.Age,
		Gender:   in.Gender,
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			s.logger.Error(ctx, "password hashing failed", "error", err)
			return models.PublicUser{}, common.Internal(err)
		}
		upd.PasswordHash = &hash
	}
	if upd.Empty() {
		return target.Public(), nil
	}

	u, err := s.users().UpdateProfile(ctx, target.ID, upd)
	if err != nil {
		return models.PublicUser{}, s.writeError(ctx, err)
	}

	s.logger.Info(ctx, "profile updated", "user_id", u.ID, "actor_id", actor.ID)
	return u.Public(), nil
}

// ChangeRole assigns role to username. Only holders of manage:roles may.
func (s *UserService) ChangeRole(ctx context.Context, actor auth.Identity, username, role string) (models.PublicUser, error) {
	if !access.HasPermission(actor.Role, access.ManageRoles) {
		return models.PublicUser{}, common.Forbidden("insufficient permissions")
	}

	r, ok := access.ParseRole(role)
	if !ok {
		return models.PublicUser{}, common.Validation("invalid role")
	}

	target, err := s.find(ctx, username)
	if err != nil {
		return models.PublicUser{}, err
	}

	u, err := s.users().SetRole(ctx, target.ID, r)
	if err != nil {
		return models.PublicUser{}, s.writeError(ctx, err)
	}

	s.logger.Info(ctx, "role changed", "user_id", u.ID, "role", string(r), "actor_id", actor.ID)
	return u.Public(), nil
}

// AvatarUploadURL hands out an upload slot and points the caller's avatar
// at the object it will create.
func (s *UserService) AvatarUploadURL(ctx context.Context, actor auth.Identity) (*AvatarUpload, error) {
	if s.avatars == nil {
		return nil, common.BadRequest("avatar uploads are not configured")
	}

	up, err := s.avatars.PresignAvatarUpload(ctx, actor.ID)
	if err != nil {
		s.logger.Error(ctx, "presign avatar upload failed", "error", err)
		return nil, common.Internal(err)
	}

	if _, err := s.users().UpdateProfile(ctx, actor.ID, models.ProfileUpdate{Avatar: &up.AvatarURL}); err != nil {
		return nil, s.writeError(ctx, err)
	}

	return up, nil
}

func (s *UserService) find(ctx context.Context, username string) (*models.User, error) {
	u, err := s.users().FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound(MsgUserNotFound)
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return nil, common.Internal(err)
	}
	return u, nil
}

func (s *UserService) writeError(ctx context.Context, err error) error {
	if conflict := duplicateToConflict(err); conflict != nil {
		return conflict
	}
	if errors.Is(err, common.ErrorNotFound) {
		return common.NotFound(MsgUserNotFound)
	}
	s.logger.Error(ctx, "user update failed", "error", err)
	return common.Internal(err)
}
