package service

import (
	"context"
	"errors"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AdminService covers user management for administrators.
type AdminService interface {
	ListUsers(ctx context.Context, p domain.Principal) ([]domain.User, error)
	ChangeRole(ctx context.Context, p domain.Principal, userID primitive.ObjectID, role domain.Role) (*domain.User, error)
}

type adminService struct {
	userRepo repository.UserRepository
}

func NewAdminService(userRepo repository.UserRepository) AdminService {
	return &adminService{userRepo: userRepo}
}

func (s *adminService) ListUsers(ctx context.Context, p domain.Principal) ([]domain.User, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// ChangeRole assigns a new role. An admin cannot demote themselves, which keeps at least
// the acting admin in place.
func (s *adminService) ChangeRole(ctx context.Context, p domain.Principal, userID primitive.ObjectID, role domain.Role) (*domain.User, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if !role.Valid() {
		return nil, invalidInput("invalid role")
	}
	if userID == p.ID && role != domain.RoleAdmin {
		return nil, ErrOwnAdminRole
	}

	user, err := s.userRepo.UpdateRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError(err)
	}
	user.PasswordHash = ""
	return user, nil
}
