package service

import (
	"context"
	"net/mail"
	"strings"

	"planora/internal/domain"
	"planora/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.UserRepository
	logger *zerolog.Logger
}

func NewUserService(repo domain.UserRepository, logger *zerolog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *UserService) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("User created")
	return user, nil
}

func (s *UserService) UpdateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		return nil, validationError("id is required")
	}
	if err := validateUser(user); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return s.repo.GetUser(ctx, user.ID)
}

func validateUser(user *models.User) error {
	user.Name = strings.TrimSpace(user.Name)
	user.Email = strings.TrimSpace(user.Email)
	if user.Name == "" {
		return validationError("name is required")
	}
	if user.Email != "" {
		if _, err := mail.ParseAddress(user.Email); err != nil {
			return validationError("invalid email %q", user.Email)
		}
	}
	if user.Role == "" {
		user.Role = models.ActorCustomer
	}
	switch user.Role {
	case models.ActorCustomer, models.ActorVendor, models.ActorAdmin:
		return nil
	}
	return validationError("unsupported role %q", user.Role)
}
