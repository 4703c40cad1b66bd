package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmailTaken is returned on registration when the email is already in use.
var ErrEmailTaken = errors.New("user already exists with this email")

// RepositoryAuthService authenticates and registers users against a UserRepository.
type RepositoryAuthService struct {
	users UserRepository
}

func NewRepositoryAuthService(users UserRepository) *RepositoryAuthService {
	return &RepositoryAuthService{users: users}
}

// Authenticate checks email/password and returns the public user on success.
func (s *RepositoryAuthService) Authenticate(email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil || u == nil {
		return User{}, ErrInvalidCredentials
	}
	// Google-only accounts have no password hash and cannot log in with one.
	if u.PasswordHash == "" {
		return User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u.Public(), nil
}

// hashPassword wraps bcrypt with the default cost used across the app.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Register creates a user with the "user" role and a bcrypt-hashed password.
func (s *RepositoryAuthService) Register(name, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
		return User{}, ErrEmailTaken
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	u, err := s.users.Create(ctx, strings.TrimSpace(name), email, string(hash), RoleUser)
	if err != nil {
		return User{}, err
	}
	return u.Public(), nil
}
