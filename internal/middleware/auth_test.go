package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticator(t *testing.T) {
	var seen string
	handler := Authenticator(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(header string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/x", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	t.Run("valid token", func(t *testing.T) {
		seen = ""
		token := signToken(t, testSecret, jwt.MapClaims{"user_id": "user-42", "exp": time.Now().Add(time.Hour).Unix()})
		w := serve("Bearer " + token)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "user-42", seen)
	})

	t.Run("subject claim", func(t *testing.T) {
		seen = ""
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-7"})
		w := serve("Bearer " + token)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "user-7", seen)
	})

	t.Run("missing header", func(t *testing.T) {
		w := serve("")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"Authorization header required"}`, w.Body.String())
	})

	t.Run("wrong scheme", func(t *testing.T) {
		w := serve("Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", jwt.MapClaims{"user_id": "user-42"})
		w := serve("Bearer " + token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"user_id": "user-42", "exp": time.Now().Add(-time.Minute).Unix()})
		w := serve("Bearer " + token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
