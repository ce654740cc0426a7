package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ragchat/internal/config"
	"ragchat/internal/models"
	"ragchat/internal/redis"
	"ragchat/internal/storage"
	"ragchat/internal/store"
)

func TestAuthIssueValidateRevoke(t *testing.T) {
	tokens := openTestStore(t)
	insertUser(t, tokens, "u1")

	svc := NewService(tokens, nil, "secret", time.Hour)
	token, err := svc.IssueToken(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	userID, err := svc.ValidateToken(context.Background(), token)
	if err != nil || userID != "u1" {
		t.Fatalf("ValidateToken failed: id=%s err=%v", userID, err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token after revoke, got %v", err)
	}

	token2, err := svc.IssueToken(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if err := svc.RevokeUserTokens(context.Background(), "u1"); err != nil {
		t.Fatalf("RevokeUserTokens error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token2); err == nil {
		t.Fatalf("expected error after revoke all")
	}
}

func TestAuthRejectsTamperedTokens(t *testing.T) {
	tokens := openTestStore(t)
	insertUser(t, tokens, "u1")

	svc := NewService(tokens, nil, "secret", time.Hour)
	token, err := svc.IssueToken(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	raw := token[:strings.LastIndexByte(token, '.')]
	for _, candidate := range []string{raw, raw + ".", "." + raw, token + "0", "x" + token[1:]} {
		if _, err := svc.ValidateToken(context.Background(), candidate); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected %q to be rejected, got %v", candidate, err)
		}
	}

	other := NewService(tokens, nil, "another-secret", time.Hour)
	if _, err := other.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with a different key must be rejected, got %v", err)
	}
}

func TestAuthValidateExpiredToken(t *testing.T) {
	tokens := openTestStore(t)
	insertUser(t, tokens, "u2")

	svc := NewService(tokens, nil, "secret", 10*time.Millisecond)
	token, err := svc.IssueToken(context.Background(), "u2")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected expiration error")
	}
	// ensure token removed
	raw := token[:strings.LastIndexByte(token, '.')]
	if _, _, err := tokens.LookupToken(context.Background(), raw); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired token not purged: %v", err)
	}
}

func TestMiddlewareRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := openTestStore(t)
	insertUser(t, tokens, "u3")
	svc := NewService(tokens, nil, "secret", time.Hour)
	token, err := svc.IssueToken(context.Background(), "u3")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	router := gin.New()
	router.GET("/private", svc.Middleware(), func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		c.String(http.StatusOK, id)
	})
	router.GET("/optional", svc.OptionalMiddleware(), func(c *gin.Context) {
		id, ok := UserIDFromContext(c)
		c.String(http.StatusOK, strconv.FormatBool(ok)+":"+id)
	})

	cases := []struct {
		path   string
		header string
		cookie string
		status int
		body   string
	}{
		{path: "/private", status: http.StatusUnauthorized},
		{path: "/private", header: "Bearer bogus", status: http.StatusUnauthorized},
		{path: "/private", header: "Bearer " + token, status: http.StatusOK, body: "u3"},
		{path: "/private", cookie: token, status: http.StatusOK, body: "u3"},
		{path: "/optional", status: http.StatusOK, body: "false:"},
		{path: "/optional", header: "Bearer bogus", status: http.StatusOK, body: "false:"},
		{path: "/optional", cookie: token, status: http.StatusOK, body: "true:u3"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if tc.cookie != "" {
			req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: tc.cookie})
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s %q: expected %d, got %d", tc.path, tc.header, tc.status, rec.Code)
		}
		if tc.body != "" && rec.Body.String() != tc.body {
			t.Fatalf("%s: expected body %q, got %q", tc.path, tc.body, rec.Body.String())
		}
	}
}

func TestCSRFMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(nil, nil, "secret", time.Hour)
	router := gin.New()
	router.Use(svc.CSRFMiddleware())
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(method string, header, cookie, bearer string) int {
		req := httptest.NewRequest(method, "/x", nil)
		if header != "" {
			req.Header.Set(svc.CSRFHeaderName(), header)
		}
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: svc.CSRFCookieName(), Value: cookie})
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := do(http.MethodGet, "", "", ""); code != http.StatusNoContent {
		t.Fatalf("safe methods skip csrf, got %d", code)
	}
	if code := do(http.MethodPost, "", "", ""); code != http.StatusForbidden {
		t.Fatalf("expected forbidden without csrf token, got %d", code)
	}
	if code := do(http.MethodPost, "a", "b", ""); code != http.StatusForbidden {
		t.Fatalf("expected forbidden for mismatched csrf token, got %d", code)
	}
	if code := do(http.MethodPost, "a", "a", ""); code != http.StatusNoContent {
		t.Fatalf("expected matching csrf token to pass, got %d", code)
	}
	if code := do(http.MethodPost, "", "", "tok"); code != http.StatusNoContent {
		t.Fatalf("bearer requests are exempt, got %d", code)
	}
}

func TestAuthTokenCacheUsesRedis(t *testing.T) {
	tokens := openTestStore(t)
	insertUser(t, tokens, "u10")

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(tokens, cacheClient, "secret", time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, "u10")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	raw := token[:strings.LastIndexByte(token, '.')]
	got, err := cacheClient.Get(ctx, redisTokenPrefix+raw)
	if err != nil {
		t.Fatalf("get redis token: %v", err)
	}
	if got != "u10" {
		t.Fatalf("expected user u10 in rdb, got %s", got)
	}

	_ = tokens.DeleteToken(ctx, raw)
	userID, err := svc.ValidateToken(ctx, token)
	if err != nil || userID != "u10" {
		t.Fatalf("ValidateToken via rdb failed: id=%s err=%v", userID, err)
	}

	if err := svc.RevokeUserTokens(ctx, "u10"); err != nil {
		t.Fatalf("RevokeUserTokens: %v", err)
	}
	if _, err := cacheClient.Get(ctx, redisTokenPrefix+raw); err != redis.ErrCacheMiss {
		t.Fatalf("expected rdb token removed, got %v", err)
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			config.DriverSQLite: {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open(config.DriverSQLite, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, config.DriverSQLite); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.New(store.NewSQLDriver(db, config.DriverSQLite))
}

func insertUser(t *testing.T, s *store.Store, id string) {
	t.Helper()
	err := s.CreateUser(context.Background(), &models.User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed auth tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	return client, func() { client.Close() }
}
