// Package auth guards the HTTP API with HS256 bearer tokens. Tokens are issued elsewhere; the
// subject is the respondent or operator ID and the role claim grants operator access.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/quizlens/internal/errors"
)

const RoleAdmin = "admin"

const claimsKey = "auth.claims"

type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier for tokens signed with secret. An empty secret disables
// authentication: every request passes and carries no claims.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Issue signs a token for subject valid for ttl.
func (v *Verifier) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) Parse(token string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return c, nil
}

// Require rejects requests without a valid bearer token. With a role, the token must carry
// that role too.
func (v *Verifier) Require(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Enabled() {
			c.Next()
			return
		}

		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer token")))
			return
		}

		claims, err := v.Parse(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid bearer token"), errors.WithCause(err)))
			return
		}

		if role != "" && claims.Role != role {
			abort(c, errors.New(errors.CodePermissionDenied, errors.WithMessagef("role %q required", role)))
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Subject returns the token subject of an authenticated request, or "" when authentication is
// disabled.
func Subject(c *gin.Context) string {
	if claims, ok := c.Get(claimsKey); ok {
		return claims.(*Claims).Subject
	}
	return ""
}

// Role returns the token role of an authenticated request, or "" when there is none.
func Role(c *gin.Context) string {
	if claims, ok := c.Get(claimsKey); ok {
		return claims.(*Claims).Role
	}
	return ""
}

func abort(c *gin.Context, e *errors.Error) {
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
