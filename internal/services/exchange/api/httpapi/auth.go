package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated indicates the request carries no valid identity.
var ErrUnauthenticated = errors.New("request is not authenticated")

type contextKey string

const userIDContextKey contextKey = "exchange.user_id"

// Claims is the bearer token payload accepted by the exchange API. The
// subject carries the authenticated user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens and stamps the user id on the
// request context.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator over an HS256 shared secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.userIDFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) userIDFromRequest(r *http.Request) (string, error) {
	if a == nil || len(a.secret) == 0 {
		return "", errors.New("authenticator is not configured")
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header {
		return "", errors.New("authorization header must use the Bearer scheme")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return "", errors.New("token subject is empty")
	}
	return userID, nil
}

// UserIDFromContext returns the authenticated user id stamped by Middleware.
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
