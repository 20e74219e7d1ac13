package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/response"
)

// ResellerClaims identify the calling reseller by Subject.
type ResellerClaims struct {
	jwt.StandardClaims
}

// IssueResellerToken signs an HS256 token for resellerID.
func IssueResellerToken(secret, resellerID string, ttl time.Duration) (string, error) {
	claims := ResellerClaims{StandardClaims: jwt.StandardClaims{
		Subject:   resellerID,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseResellerToken verifies an HS256 token and returns its subject.
func ParseResellerToken(secret, token string) (string, error) {
	claims := &ResellerClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorMsgT[any](response.APIResponseCodeUnauthorized, msg, nil))
}

// ResellerAuth resolves the caller to a reseller id from a bearer token. With use_jwt
// disabled every request acts as the configured default reseller.
func ResellerAuth(cfg *config.Config, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var resellerID string
		if cfg.Auth.UseJWT {
			h := c.GetHeader("Authorization")
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || token == "" {
				abortUnauthorized(c, "missing bearer token")
				return
			}
			sub, err := ParseResellerToken(cfg.Auth.JWTSecret, token)
			if err != nil {
				logctx.FromGin(c, base).Infow("auth_token_rejected", "err", err)
				abortUnauthorized(c, "invalid token")
				return
			}
			resellerID = sub
		} else {
			resellerID = cfg.Auth.DefaultResellerID
		}
		if resellerID == "" {
			abortUnauthorized(c, "no reseller identity")
			return
		}

		c.Set(string(logctx.ResellerIDKey), resellerID)
		ctx := context.WithValue(c.Request.Context(), logctx.ResellerIDKey, resellerID)
		c.Request = c.Request.WithContext(ctx)
		setLogger(c, logctx.FromGin(c, base).With("reseller_id", resellerID))
		c.Next()
	}
}

// AdminAuth gates admin routes with HTTP basic auth. Without configured credentials
// every admin request is refused.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	if cfg.Auth.AdminUser == "" || cfg.Auth.AdminPass == "" {
		return func(c *gin.Context) {
			abortUnauthorized(c, "admin access is not configured")
		}
	}
	return gin.BasicAuth(gin.Accounts{cfg.Auth.AdminUser: cfg.Auth.AdminPass})
}

// Scope returns the tenant scope resolved by ResellerAuth.
func Scope(c *gin.Context) repository.Scope {
	return repository.ResellerScope(c.GetString(string(logctx.ResellerIDKey)))
}
