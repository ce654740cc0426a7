package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ragchat/internal/auth"
	"ragchat/internal/models"
	"ragchat/internal/service/account"
	"ragchat/internal/workflow"
)

// Accounts registers and authenticates users.
type Accounts interface {
	Register(ctx context.Context, email, username, password string) (*models.User, error)
	Authenticate(ctx context.Context, login, password string) (*models.User, error)
	User(ctx context.Context, id string) (*models.User, error)
}

// Threads is the thread registry and history reader.
type Threads interface {
	EnsureThread(ctx context.Context, threadID, userID string) (bool, error)
	LoadHistory(ctx context.Context, threadID, userID string) (models.ThreadHistory, error)
	SetHeadlineOnce(ctx context.Context, threadID, userID, headline string) (bool, error)
	Deactivate(ctx context.Context, threadID, userID string) (bool, error)
	ListActive(ctx context.Context, userID string) ([]models.ThreadSummary, error)
}

// Turns runs a conversation turn.
type Turns interface {
	Run(ctx context.Context, in workflow.Input) (*workflow.Result, error)
}

// Options tune the HTTP surface.
type Options struct {
	CSRF        bool
	CORSOrigins []string
}

// Handler wires HTTP routes to the account, thread and workflow services.
type Handler struct {
	accounts Accounts
	threads  Threads
	turns    Turns
	auth     *auth.Service
	logger   *zap.Logger
	opts     Options
}

// NewHandler constructs a Handler instance.
func NewHandler(accounts Accounts, threads Threads, turns Turns, authService *auth.Service, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		accounts: accounts,
		threads:  threads,
		turns:    turns,
		auth:     authService,
		logger:   logger,
		opts:     opts,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(CORS(h.opts.CORSOrigins))

	router.GET("/health", h.health)
	router.POST("/login", h.login)
	router.POST("/register", h.register)
	router.GET("/check-auth", h.auth.OptionalMiddleware(), h.checkAuth)

	session := router.Group("")
	session.Use(h.auth.Middleware())
	if h.opts.CSRF {
		session.Use(h.auth.CSRFMiddleware())
	}
	session.POST("/logout", h.logout)
	session.POST("/query", h.query)
	session.POST("/thread_history", h.threadHistory)
	session.GET("/user_threads", h.userThreads)
	session.POST("/delete_thread", h.deleteThread)
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return "", false
	}
	return userID, true
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "RAG chatbot API is running",
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", "Please send a JSON body.")
		return
	}
	login := strings.TrimSpace(req.Username)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" || req.Password == "" {
		badRequest(c, "missing credentials", "Please provide a username or email and a password.")
		return
	}
	user, err := h.accounts.Authenticate(c.Request.Context(), login, req.Password)
	if err != nil {
		if !errors.Is(err, account.ErrInvalidCredentials) {
			h.logger.Error("authenticate", zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid credentials"})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("issue token", zap.String("user_id", user.ID), zap.Error(err))
		internalError(c)
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		h.logger.Error("issue csrf token", zap.Error(err))
		internalError(c)
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    "Logged in successfully",
		"username":   user.DisplayName(),
		"auth_token": authToken,
	})
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			badRequest(c, "a valid email and a password are required", "Please provide a valid email and a password.")
			return
		}
		badRequest(c, "invalid request body", "Please send a JSON body.")
		return
	}
	_, err := h.accounts.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
	case errors.Is(err, account.ErrAlreadyRegistered):
		badRequest(c, err.Error(), "Please choose another email or username.")
	case errors.Is(err, account.ErrInvalidInput):
		badRequest(c, err.Error(), "Please check the registration details.")
	default:
		h.logger.Error("register user", zap.Error(err))
		internalError(c)
	}
}

type logoutRequest struct {
	// All ends every session of the user, not only the current one.
	All bool `json:"all"`
}

func (h *Handler) logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body", "Please send a JSON body.")
		return
	}
	ctx := c.Request.Context()
	if req.All {
		userID, ok := h.authorizedUserID(c)
		if !ok {
			return
		}
		if err := h.auth.RevokeUserTokens(ctx, userID); err != nil {
			h.logger.Error("revoke user tokens", zap.String("user_id", userID), zap.Error(err))
			internalError(c)
			return
		}
	} else if authToken, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(ctx, authToken); err != nil {
			h.logger.Warn("revoke token", zap.Error(err))
		}
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Logged out successfully"})
}

func (h *Handler) checkAuth(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	user, err := h.accounts.User(c.Request.Context(), userID)
	if err != nil {
		h.logger.Warn("resolve session user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "username": user.DisplayName()})
}

func badRequest(c *gin.Context, msg, hint string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "response": hint})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	// Cross-origin front-ends need SameSite=None, which browsers only accept on secure cookies.
	sameSite := http.SameSiteLaxMode
	if secure && len(h.opts.CORSOrigins) > 0 {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: sameSite,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: sameSite,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
		})
	}
}
