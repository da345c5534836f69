package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/tidechat/tidechat/internal/domain"
	"github.com/tidechat/tidechat/internal/repository"
	"github.com/tidechat/tidechat/pkg/jwt"
	"github.com/tidechat/tidechat/pkg/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredential  = errors.New("missing credential")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUsernameTaken      = errors.New("username already taken")
)

// Resolver verifies a bearer credential and yields the principal bound
// to it. Consumed by the realtime gateway and the REST middleware.
type Resolver interface {
	Verify(credential string) (*domain.Principal, error)
}

// Service handles registration, login, and credential verification.
type Service struct {
	users  repository.UserRepository
	tokens *jwt.Manager
}

func NewService(users repository.UserRepository, tokens *jwt.Manager) *Service {
	return &Service{users: users, tokens: tokens}
}

// Register creates a user and returns a fresh access token.
func (s *Service) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Username:     req.Username,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			return nil, ErrUsernameTaken
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	return s.authResponse(user)
}

// Login authenticates a user by username and password.
func (s *Service) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.authResponse(user)
}

// Verify resolves a bearer credential to a principal.
func (s *Service) Verify(credential string) (*domain.Principal, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	claims, err := s.tokens.Verify(credential)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &domain.Principal{
		UserID:   claims.UserID,
		Username: claims.Username,
	}, nil
}

func (s *Service) authResponse(user *domain.User) (*domain.AuthResponse, error) {
	token, expiresAt, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	return &domain.AuthResponse{
		User:        user.ToResponse(),
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}
