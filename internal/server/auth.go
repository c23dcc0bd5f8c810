package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/kapu/cirak-widget-go/internal/constants"
)

var errInvalidCredentials = errors.New("invalid credentials")

const adminRole = "admin"

type AuthConfig struct {
	AdminToken   string
	PasswordHash string
	Secret       string
	TTL          time.Duration
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator guards the admin API. Requests carry either the static admin token in
// X-Admin-Token or a bearer JWT issued by Login.
type Authenticator struct {
	token        []byte
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Authenticator{
		token:        []byte(cfg.AdminToken),
		passwordHash: []byte(cfg.PasswordHash),
		secret:       []byte(cfg.Secret),
		ttl:          cfg.TTL,
		now:          time.Now,
	}
}

// Enabled reports whether any admin credential is configured. Without one the admin
// API refuses every request.
func (a *Authenticator) Enabled() bool {
	return len(a.token) > 0 || len(a.passwordHash) > 0
}

// CheckPassword compares against the bcrypt hash when configured, otherwise against
// the admin token.
func (a *Authenticator) CheckPassword(password string) error {
	if password == "" {
		return errInvalidCredentials
	}
	if len(a.passwordHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
			return errInvalidCredentials
		}
		return nil
	}
	if a.matchesToken(password) {
		return nil
	}
	return errInvalidCredentials
}

func (a *Authenticator) matchesToken(candidate string) bool {
	if len(a.token) == 0 || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare(a.token, []byte(candidate)) == 1
}

func (a *Authenticator) IssueToken() (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("jwt secret is not configured")
	}
	now := a.now()
	expires := now.Add(a.ttl)
	claims := &adminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    constants.AdminLimits.TokenIssuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}
	return signed, expires, nil
}

func (a *Authenticator) ValidateToken(tokenString string) (*adminClaims, error) {
	if len(a.secret) == 0 {
		return nil, fmt.Errorf("jwt secret is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &adminClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*adminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid admin token")
	}
	if claims.Role != adminRole {
		return nil, fmt.Errorf("unexpected role %q", claims.Role)
	}
	return claims, nil
}

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "admin access is not configured",
				"code":  "ADMIN_DISABLED",
			})
			return
		}

		if a.matchesToken(c.GetHeader("X-Admin-Token")) {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if tokenString, ok := strings.CutPrefix(header, "Bearer "); ok {
			if _, err := a.ValidateToken(strings.TrimSpace(tokenString)); err == nil {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authorization required",
			"code":  "UNAUTHORIZED",
		})
	}
}
