package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"ragchat/internal/redis"
	"ragchat/internal/store"
)

const (
	redisTokenPrefix     = "auth:token:"
	redisUserTokenPrefix = "auth:user:"
)

var (
	// ErrInvalidToken covers missing, tampered, unknown and expired tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenStore persists session tokens.
type TokenStore interface {
	SaveToken(ctx context.Context, token, userID string, createdAt, expiresAt time.Time) error
	LookupToken(ctx context.Context, token string) (string, time.Time, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteUserTokens(ctx context.Context, userID string) error
}

// Service issues, validates, and revokes user authentication tokens.
// Clients receive "<token>.<hmac>"; only the token part is stored.
type Service struct {
	tokens         TokenStore
	cache          *redis.Client
	secret         []byte
	tokenTTL       time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service. cache may be nil.
func NewService(tokens TokenStore, cache *redis.Client, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		tokens:         tokens,
		cache:          cache,
		secret:         []byte(secret),
		tokenTTL:       ttl,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// IssueToken mints a new random token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("invalid user id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		err = s.tokens.SaveToken(ctx, token, userID, now, expiresAt)
		if err == nil {
			s.cacheToken(ctx, token, userID, s.tokenTTL)
			return s.sign(token), nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return "", fmt.Errorf("issue token: %w", err)
		}
	}
	return "", errors.New("could not issue token")
}

// ValidateToken verifies the signature, existence and expiry of a token, returning the user id.
func (s *Service) ValidateToken(ctx context.Context, signed string) (string, error) {
	token, ok := s.verify(signed)
	if !ok {
		return "", ErrInvalidToken
	}
	if s.cache != nil {
		if userID, err := s.cache.Get(ctx, redisTokenPrefix+token); err == nil && userID != "" {
			return userID, nil
		}
	}
	userID, expires, err := s.tokens.LookupToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	remaining := time.Until(expires)
	if remaining <= 0 {
		_ = s.tokens.DeleteToken(ctx, token)
		return "", fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	s.cacheToken(ctx, token, userID, remaining)
	return userID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, signed string) error {
	token, ok := s.verify(signed)
	if !ok {
		return nil
	}
	if err := s.tokens.DeleteToken(ctx, token); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, redisTokenPrefix+token)
	}
	return nil
}

// RevokeUserTokens removes all tokens belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.tokens.DeleteUserTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	if s.cache == nil {
		return nil
	}
	setKey := redisUserTokenPrefix + userID
	tokens, err := s.cache.Members(ctx, setKey)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, redisTokenPrefix+t)
	}
	_ = s.cache.Del(ctx, append(keys, setKey)...)
	return nil
}

func (s *Service) cacheToken(ctx context.Context, token, userID string, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, redisTokenPrefix+token, userID, ttl)
	_ = s.cache.AddMember(ctx, redisUserTokenPrefix+userID, token, s.tokenTTL)
}

func (s *Service) sign(token string) string {
	return token + "." + s.mac(token)
}

func (s *Service) verify(signed string) (string, bool) {
	idx := strings.LastIndexByte(signed, '.')
	if idx <= 0 || idx == len(signed)-1 {
		return "", false
	}
	token, sig := signed[:idx], signed[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(token))) {
		return "", false
	}
	return token, true
}

func (s *Service) mac(token string) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
