package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evanhsu/dealthread/internal/config"
	"github.com/evanhsu/dealthread/internal/db"
)

// UserStore is the persistence surface the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
}

// CreateUserRequest is the payload for operator registration.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse carries the user and a fresh bearer token.
type LoginResponse struct {
	User  *UserResponse `json:"user"`
	Token string        `json:"token"`
}

// UserService implements registration and login on top of a UserStore.
type UserService struct {
	store          UserStore
	passwordConfig *config.PasswordConfig
}

// NewUserService creates a new UserService.
func NewUserService(store UserStore, passwordConfig *config.PasswordConfig) *UserService {
	return &UserService{
		store:          store,
		passwordConfig: passwordConfig,
	}
}

func publicUser(user *db.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

// Register creates a new operator account.
func (s *UserService) Register(ctx context.Context, req *CreateUserRequest) (*UserResponse, error) {
	existing, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, &ErrEmailAlreadyExists{Email: req.Email}
	}

	hash, err := s.passwordConfig.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, req.Name, req.Email, hash)
	if err != nil {
		return nil, err
	}
	return publicUser(user), nil
}

// Login verifies credentials and returns the user.
func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*UserResponse, error) {
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !s.passwordConfig.VerifyPassword(req.Password, user.PasswordHash) {
		// Same error for unknown email and wrong password.
		return nil, &ErrInvalidCredentials{}
	}
	return publicUser(user), nil
}
