package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/docflow/internal/domain/entity"
)

const principalKey = "principal"

// Claims are the bearer token claims. Subject holds the principal id.
type Claims struct {
	Role       string `json:"role"`
	Department *int64 `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an authenticator for secret. An empty issuer
// accepts tokens from any issuer.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for principal valid for ttl
func (a *Authenticator) Issue(p entity.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:       p.Role,
		Department: p.DepartmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates raw and returns the principal it identifies
func (a *Authenticator) Parse(raw string) (entity.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return entity.Principal{}, err
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return entity.Principal{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	if !entity.IsValidRole(claims.Role) {
		return entity.Principal{}, fmt.Errorf("invalid role %q", claims.Role)
	}

	return entity.Principal{ID: id, Role: claims.Role, DepartmentID: claims.Department}, nil
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the principal in the gin context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortWith(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}

		p, err := a.Parse(parts[1])
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// principalFrom returns the authenticated principal
func principalFrom(c *gin.Context) entity.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(entity.Principal); ok {
			return p
		}
	}
	return entity.Principal{}
}
