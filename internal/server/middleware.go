package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gitlab.com/billit/billit-api/internal/logger"
)

const (
	ctxUserID    = "userID"
	apiKeyHeader = "X-API-Key"
)

// sessionClaims are the fields Billit reads from a session token.
type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// bearerAuth validates an HS256 session token and stores its subject as the
// caller's user id.
func bearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header is required", "")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abortUnauthorized(c, "Invalid authorization header format", "")
			return
		}

		claims := &sessionClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortUnauthorized(c, "Token has expired", "ExpiredToken")
			} else {
				abortUnauthorized(c, "Invalid token", "InvalidToken")
			}
			return
		}
		if !parsed.Valid {
			abortUnauthorized(c, "Invalid token", "InvalidToken")
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			abortUnauthorized(c, "Invalid token subject", "InvalidToken")
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// apiKeyAuth guards automation endpoints with a shared key.
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(apiKeyHeader)
		if key == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			abortUnauthorized(c, "Invalid API key", "")
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg, code string) {
	body := gin.H{"success": false, "error": msg}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, body)
}

// callerID returns the authenticated user id set by bearerAuth.
func callerID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ctxUserID)
	id, _ := v.(uuid.UUID)
	return id
}

// accessLog writes one log line per request.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		log := logger.Ctx(c.Request.Context())
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}
		if uid := callerID(c); uid != uuid.Nil {
			event = event.Str("user_hash", logger.HashUserID(uid))
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
