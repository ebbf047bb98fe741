package service

import (
	"context"
	"errors"
	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"
	"quiz_backend/internal/util"
	"quiz_backend/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Identity 身份提供方给出的调用者信息
type Identity struct {
	UID   string
	Email string
	Name  string
	Role  model.UserRole
}

func IdentityFromClaims(c *util.Claims) Identity {
	if c == nil {
		return Identity{}
	}
	return Identity{UID: c.UID, Email: c.Email, Name: c.Name, Role: c.Role}
}

type UserService struct {
	UserRepo repository.UserStore
}

func NewUserService(userRepo repository.UserStore) *UserService {
	return &UserService{UserRepo: userRepo}
}

// EnsureUser 按 UID 查找目录用户，不存在时以 student 角色自动注册。
// 并发首次注册时唯一索引冲突，重新读取即可。
func (s *UserService) EnsureUser(ctx context.Context, id Identity) (*model.User, error) {
	if id.UID == "" {
		return nil, util.ErrUnauthorized
	}

	user, err := s.UserRepo.FindByUID(ctx, id.UID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user = &model.User{
		UID:          id.UID,
		Email:        id.Email,
		DisplayName:  displayNameFor(id),
		Role:         model.Student,
		IsActive:     true,
		LastActiveAt: time.Now(),
	}
	if user.Email == "" {
		user.Email = "unknown@example.com"
	}

	if err := s.UserRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return s.UserRepo.FindByUID(ctx, id.UID)
		}
		return nil, err
	}

	logger.Log.Info("User self-registered",
		zap.String("user_id", user.ID),
		zap.String("uid", user.UID))
	return user, nil
}

// Lookup 目录中不存在时返回 not_found
func (s *UserService) Lookup(ctx context.Context, uid string) (*model.User, error) {
	if uid == "" {
		return nil, util.ErrUnauthorized
	}
	user, err := s.UserRepo.FindByUID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, util.NotFoundError("user not found")
	}
	return user, err
}

func (s *UserService) PromoteByEmail(ctx context.Context, email string, role model.UserRole) (*model.User, error) {
	if !role.Valid() {
		return nil, util.ValidationError("invalid role %q", role)
	}
	user, err := s.UserRepo.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, util.NotFoundError("user %s not found", email)
	}
	if err != nil {
		return nil, err
	}
	if err := s.UserRepo.UpdateRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

func (s *UserService) TouchLastActive(ctx context.Context, userID string) {
	if err := s.UserRepo.TouchLastActive(ctx, userID, time.Now()); err != nil {
		logger.Log.Warn("Failed to update last active time", zap.String("user_id", userID), zap.Error(err))
	}
}

func displayNameFor(id Identity) string {
	if id.Name != "" {
		return id.Name
	}
	if at := strings.Index(id.Email, "@"); at > 0 {
		return id.Email[:at]
	}
	return "Unknown User"
}
