package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// NewCSRFToken returns a random value for the double-submit cookie.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// CSRFMiddleware requires unsafe requests to echo the CSRF cookie in the CSRF
// header. Bearer requests are exempt.
func (s *Service) CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if safeMethod(c.Request.Method) || hasBearer(c.GetHeader(s.headerName)) {
			c.Next()
			return
		}
		cookie, err := c.Cookie(s.csrfCookieName)
		header := c.GetHeader(s.csrfHeaderName)
		if err != nil || cookie == "" || header == "" ||
			subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid csrf token"})
			return
		}
		c.Next()
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func hasBearer(header string) bool {
	return len(header) > 7 && strings.EqualFold(header[:7], "bearer ")
}
