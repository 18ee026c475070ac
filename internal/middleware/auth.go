package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const principalKey contextKey = "principal"

// ErrNoSecret is returned by NewVerifier when no signing secret is given
var ErrNoSecret = errors.New("jwt secret is required")

// Verifier validates bearer tokens issued by the identity platform
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewVerifier creates a verifier for HS256 tokens signed with secret. When
// audience is non-empty tokens must carry it in their aud claim.
func NewVerifier(secret, audience string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Verifier{secret: []byte(secret), audience: audience, leeway: 30 * time.Second}, nil
}

// Verify parses token and returns its subject
func (v *Verifier) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// WithPrincipal returns a copy of ctx carrying the authenticated account id
func WithPrincipal(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, principalKey, accountID)
}

// PrincipalFromContext returns the authenticated account id, if any
func PrincipalFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey).(string)
	return id, ok && id != ""
}

// AuthMiddleware resolves the bearer token to a principal. Requests without
// an Authorization header pass through anonymously; requests with an invalid
// token are rejected.
func AuthMiddleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeUnauthorized(w, "expected a bearer token")
				return
			}
			subject, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				log.Warn().
					Err(err).
					Str("client_ip", GetClientIP(r)).
					Str("path", r.URL.Path).
					Msg("auth: rejected token")
				writeUnauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), subject)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="agora"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthenticated","message":"` + msg + `"}`))
}
