// Package auth provides JWT-based authentication for the API and for the
// signed content locators it hands out.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fruitsalade/fsaccess/internal/logging"
	"github.com/fruitsalade/fsaccess/pkg/models"
	"github.com/fruitsalade/fsaccess/pkg/protocol"
)

type contextKey string

const claimsContextKey contextKey = "claims"

const issuer = "fsaccess"

// Token scopes.
const (
	ScopeAPI     = "api"
	ScopeLocator = "locator"
)

// ErrForbidden is returned when a valid token does not cover the request.
var ErrForbidden = errors.New("token does not grant this access")

// Claims holds JWT token claims. Path and Method are set only on locator tokens.
type Claims struct {
	Scope  string `json:"scope"`
	Path   string `json:"path,omitempty"`
	Method string `json:"method,omitempty"`
	jwt.RegisteredClaims
}

// Auth signs and validates HS256 tokens.
type Auth struct {
	secret     []byte
	locatorTTL time.Duration
}

// New creates a new Auth handler.
func New(jwtSecret string, locatorTTL time.Duration) *Auth {
	if locatorTTL <= 0 {
		locatorTTL = 15 * time.Minute
	}
	return &Auth{
		secret:     []byte(jwtSecret),
		locatorTTL: locatorTTL,
	}
}

// IssueToken signs an API bearer token for subject. A zero ttl never expires.
func (a *Auth) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Scope: ScopeAPI,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return a.sign(claims)
}

// IssueLocator signs a short-lived token granting method on one path.
func (a *Auth) IssueLocator(fullPath, method string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(a.locatorTTL)
	claims := &Claims{
		Scope:  ScopeLocator,
		Path:   models.Clean(fullPath),
		Method: method,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token, err := a.sign(claims)
	return token, expires, err
}

func (a *Auth) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, nil
}

// ValidateToken parses tokenStr and checks its signature and expiry.
func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Authorize checks that claims cover method on fullPath. API tokens cover
// everything; locator tokens cover exactly the path and method they were
// issued for.
func Authorize(claims *Claims, fullPath, method string) error {
	switch claims.Scope {
	case ScopeAPI:
		return nil
	case ScopeLocator:
		if claims.Path == models.Clean(fullPath) && claims.Method == method {
			return nil
		}
	}
	return ErrForbidden
}

// Middleware returns HTTP middleware that requires an API-scoped token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := ExtractToken(r)
		if tokenStr == "" {
			SendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := a.ValidateToken(tokenStr)
		if err != nil {
			SendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}
		if claims.Scope != ScopeAPI {
			SendAuthError(w, http.StatusUnauthorized, "locator tokens cannot call the API")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// ExtractToken returns the bearer token, falling back to the token query parameter.
func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// SendAuthError writes a JSON error response.
func SendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logging.Debug("write auth error", zap.Error(err))
	}
}
