// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ggufchat/chat-engine/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// IdentityKey is the context key for the resolved user identity.
	IdentityKey ContextKey = "identity"
)

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Auth resolves the caller's identity from a bearer token. A missing or
// invalid token does not reject the request: the caller proceeds as a
// guest, which downstream keeps local-only.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := model.GuestIdentity()

			if token := bearerToken(r); token != "" {
				claims := &Claims{}
				parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return []byte(jwtSecret), nil
				})
				if err == nil && parsed.Valid && claims.Subject != "" {
					identity = model.Identity{UserID: claims.Subject, Email: claims.Email}
				}
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// GetIdentity gets the resolved identity from context, defaulting to
// guest.
func GetIdentity(ctx context.Context) model.Identity {
	if v := ctx.Value(IdentityKey); v != nil {
		return v.(model.Identity)
	}
	return model.GuestIdentity()
}
