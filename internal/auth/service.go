// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/threadline/internal/database"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/models"
)

// ErrInvalidCredentials rejects a login.
// Unknown users and wrong passwords both return it.
var ErrInvalidCredentials = errors.New("invalid username or password")

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Service implements signup and login.
type Service struct {
	users  UserStore
	tokens *JWTManager
	events *logging.AuthEventLogger
	cost   int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBcryptCost overrides the hashing cost (tests use bcrypt.MinCost).
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		s.cost = cost
	}
}

// NewService creates the account service.
func NewService(users UserStore, tokens *JWTManager, opts ...ServiceOption) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		events: logging.NewAuthEventLogger(),
		cost:   12,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the JWT manager for middleware wiring.
func (s *Service) Tokens() *JWTManager {
	return s.tokens
}

// Signup creates an account and returns a session token.
func (s *Service) Signup(ctx context.Context, username, password, ip string) (*models.LoginResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		return nil, err
	}
	s.events.LogSignup(ctx, user.ID, user.Username, ip)
	return s.issue(user)
}

// Login checks the password and returns a session token.
func (s *Service) Login(ctx context.Context, username, password, ip string) (*models.LoginResponse, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, database.ErrUserNotFound) {
		s.events.LogLoginFailure(ctx, username, ip, "unknown user")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.events.LogLoginFailure(ctx, username, ip, "bad password")
		return nil, ErrInvalidCredentials
	}

	s.events.LogLoginSuccess(ctx, user.ID, user.Username, ip)
	return s.issue(user)
}

func (s *Service) issue(user *models.User) (*models.LoginResponse, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Username:  user.Username,
		UserID:    user.ID,
	}, nil
}
