package account

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"errors"
	"fmt"
	"strings"
	"time"

	"ragchat/internal/models"
	"ragchat/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyRegistered  = errors.New("email or username already registered")
)

// UserStore is the persistence the account service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByLogin(ctx context.Context, login string) (*models.User, error)
}

// Service handles user registration and credential checks.
type Service struct {
	users UserStore
	salt  []byte
	cost  int
	now   func() time.Time
}

// NewService builds the service; salt keys the password pre-hash.
func NewService(users UserStore, salt string) *Service {
	return &Service{users: users, salt: []byte(salt), cost: bcrypt.DefaultCost, now: time.Now}
}

// Register creates a user. Username is optional.
func (s *Service) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if err := validate.Var(email, "email"); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if strings.Contains(username, "@") {
		return nil, fmt.Errorf("%w: username must not contain '@'", ErrInvalidInput)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
		Threads:      []models.Thread{},
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks the password of the user matching login (username or email).
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
	}
	user, err := s.users.UserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), s.preHash(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// User loads a user by id.
func (s *Service) User(ctx context.Context, id string) (*models.User, error) {
	return s.users.UserByID(ctx, id)
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(s.preHash(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// preHash keys the password with the salt; the 64-byte digest fits bcrypt's input limit.
func (s *Service) preHash(password string) []byte {
	mac := hmac.New(sha512.New, s.salt)
	mac.Write([]byte(password))
	return mac.Sum(nil)
}
