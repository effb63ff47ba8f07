package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/clearstack/pkg/response"
)

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"

	ctxClaimsKey = "auth.claims"
)

// Claims 管理端访问令牌，租户取自 company_id
type Claims struct {
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

var (
	errNoToken = errors.New("missing bearer token")

	// ErrInvalidTTL is returned by Sign for a non-positive lifetime.
	ErrInvalidTTL = errors.New("token ttl must be positive")
)

// Sign issues an HS256 token for c. Every token carries an expiry.
func Sign(secret string, c Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func parse(secret, header string) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errNoToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Auth rejects requests without a valid token.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parse(secret, c.GetHeader("Authorization"))
		if err != nil {
			response.Unauthorized(c, "invalid or missing token")
			return
		}
		if claims.CompanyID == "" {
			response.Unauthorized(c, "token has no company")
			return
		}
		c.Set(ctxClaimsKey, claims)
		c.Next()
	}
}

// RequireRole allows only the listed roles. superadmin passes every check.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Unauthorized(c, "invalid or missing token")
			return
		}
		if !HasRole(claims, roles...) {
			response.Forbidden(c, "insufficient role")
			return
		}
		c.Next()
	}
}

func HasRole(claims *Claims, roles ...string) bool {
	if claims.Role == RoleSuperAdmin {
		return true
	}
	for _, r := range roles {
		if claims.Role == r {
			return true
		}
	}
	return false
}

func CurrentClaims(c *gin.Context) *Claims {
	v, ok := c.Get(ctxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// CompanyID 当前请求所属租户
func CompanyID(c *gin.Context) string {
	if claims := CurrentClaims(c); claims != nil {
		return claims.CompanyID
	}
	return ""
}
