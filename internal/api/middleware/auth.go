package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/logger"
)

const userIDKey = "user_id"

var errMissingSubject = errors.New("token has no subject")

// Auth validates the HS256 bearer token and stores its subject as the
// acting user id.
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	secret := []byte(cfg.JWTSecret)

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}

		userID, err := subject(parser, secret, raw)
		if err != nil {
			GetLogger(c).WithError(err).Warn("Rejected bearer token")
			unauthorized(c, "invalid token")
			return
		}

		ctx := logger.SetUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(loggerKey, logger.FromContext(ctx))
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside Auth.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// SignToken issues an HS256 token for userID. Used by operators and tests.
func SignToken(cfg config.AuthConfig, userID string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID
	if claims.Issuer == "" {
		claims.Issuer = cfg.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func subject(parser *jwt.Parser, secret []byte, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubject
	}
	return claims.Subject, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
