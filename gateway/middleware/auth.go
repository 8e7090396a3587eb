package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tokensale/crypto"
)

type contextKey string

const contextKeyCaller contextKey = "caller_address"

// Authenticator validates HMAC-signed bearer tokens on the admin surface.
// The token subject must be the caller's bech32 sale address; the decoded
// identity is attached to the request context and re-checked against the
// on-ledger role table by the engine, so the JWT is transport-level
// authentication only.
type Authenticator struct {
	secret []byte
	leeway time.Duration
}

// NewAuthenticator creates an authenticator for the shared signing secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), leeway: 30 * time.Second}
}

var errMissingBearer = errors.New("middleware: missing bearer token")

func (a *Authenticator) parse(r *http.Request) ([20]byte, error) {
	var caller [20]byte
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return caller, errMissingBearer
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("middleware: unexpected signing method %s", t.Method.Alg())
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.leeway), jwt.WithExpirationRequired())
	if err != nil {
		return caller, fmt.Errorf("middleware: invalid token: %w", err)
	}
	if !token.Valid {
		return caller, fmt.Errorf("middleware: token rejected")
	}
	addr, err := crypto.DecodeAddress(claims.Subject)
	if err != nil {
		return caller, fmt.Errorf("middleware: token subject: %w", err)
	}
	return addr.Array(), nil
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := a.parse(r)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext returns the authenticated caller address, if any.
func CallerFromContext(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(contextKeyCaller).([20]byte)
	return caller, ok
}
