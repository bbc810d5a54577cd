package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("tradesync", []byte("secret"), time.Hour)

	token, err := svc.Sign("user-1")
	require.NoError(t, err)

	userID, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	signer := NewTokenService("tradesync", []byte("secret"), time.Hour)
	verifier := NewTokenService("tradesync", []byte("other"), time.Hour)

	token, err := signer.Sign("user-1")
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	assert.Error(t, err)
}

func TestTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService("tradesync", []byte("secret"), -time.Minute)

	token, err := svc.Sign("user-1")
	require.NoError(t, err)

	_, err = svc.Parse(token)
	assert.Error(t, err)
}

func TestRouterAuth(t *testing.T) {
	router := NewRouter(RouterDeps{
		Handler:   &Handler{},
		Tokens:    NewTokenService("tradesync", []byte("secret"), time.Hour),
		WebOrigin: "*",
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/trades", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/trades", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
