package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adtrails/adtrails/pkg/logger"
)

var publicPaths = map[string]struct{}{
	"/metrics": {},
}

type ctxKey string

const ctxSubjectKey ctxKey = "httpapi.subject"

// Claims is the minimal JWT payload the query API trusts: a subject and
// nothing else. The pipeline has no notion of roles or tenants, unlike
// the richer auth surface this is adapted from.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTAuth validates bearer tokens against one HMAC secret.
type JWTAuth struct {
	secret []byte
	log    *logger.Logger
}

// NewJWTAuth builds a JWTAuth. A nil/empty secret means every request is
// rejected; callers should only mount it when a secret is configured.
func NewJWTAuth(secret string, log *logger.Logger) *JWTAuth {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &JWTAuth{secret: []byte(strings.TrimSpace(secret)), log: log}
}

func (a *JWTAuth) wrap(next http.Handler) http.Handler {
	if len(a.secret) == 0 {
		a.log.Warn("httpapi: no JWT secret configured, rejecting all authenticated requests")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		token := extractToken(r)
		if token == "" {
			unauthorized(w)
			return
		}
		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !parsed.Valid {
			unauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), ctxSubjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Kind: "auth"})
}
