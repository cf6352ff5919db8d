package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"genqueue/internal/domain"
)

// TokenClaims is the identity carried by API bearer tokens. The plan claim
// decides the caller's queue tier.
type TokenClaims struct {
	Plan      string `json:"plan,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	jwt.RegisteredClaims
}

type callerKey struct{}

// SignJWT issues an HS256 token for claims.
func SignJWT(secret string, claims TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// NewTokenClaims builds claims for userID valid for ttl.
func NewTokenClaims(userID string, plan domain.UserPlan, ttl time.Duration) TokenClaims {
	now := time.Now()
	return TokenClaims{
		Plan: string(plan),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// VerifyJWT checks signature, algorithm and expiry.
func VerifyJWT(secret, raw string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// AuthJWT requires a valid bearer token and stores the caller in the request
// context.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "invalid authorization")
				return
			}
			claims, err := VerifyJWT(secret, strings.TrimSpace(parts[1]))
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}
			caller := domain.Caller{
				UserID:      claims.Subject,
				Plan:        domain.UserPlan(strings.ToLower(claims.Plan)),
				WorkspaceID: claims.Workspace,
			}
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}

// CallerFromContext returns the authenticated caller, zero when absent.
func CallerFromContext(ctx context.Context) domain.Caller {
	if v, ok := ctx.Value(callerKey{}).(domain.Caller); ok {
		return v
	}
	return domain.Caller{}
}

func ContextWithCaller(ctx context.Context, caller domain.Caller) context.Context {
	if caller.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
}
