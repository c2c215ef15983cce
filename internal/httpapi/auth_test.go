package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adtrails/adtrails/pkg/logger"
)

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
	a := NewJWTAuth("secret", logger.NewDefault("test"))
	var called bool
	wrapped := a.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs/1/status", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called, "handler should not run without a token")
}

func TestJWTAuthAllowsPublicMetricsPath(t *testing.T) {
	a := NewJWTAuth("secret", logger.NewDefault("test"))
	wrapped := a.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "/metrics should bypass auth")
}

func TestJWTAuthAcceptsValidBearerToken(t *testing.T) {
	secret := "test-secret"
	a := NewJWTAuth(secret, logger.NewDefault("test"))
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "operator-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token := signToken(t, secret, claims)

	var gotSubject string
	wrapped := a.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = r.Context().Value(ctxSubjectKey).(string)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs/1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator-1", gotSubject)
}

func TestJWTAuthRejectsTokenFromOtherSecret(t *testing.T) {
	a := NewJWTAuth("right-secret", logger.NewDefault("test"))
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}}
	token := signToken(t, "wrong-secret", claims)

	wrapped := a.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run with a mis-signed token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs/1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
