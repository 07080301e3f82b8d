package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protected(m *JWTMiddleware, perm Permission) http.Handler {
	return m.Authenticate(RequirePermission(perm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ClaimsFromContext(r.Context()).Sub))
	})))
}

func request(t *testing.T, h http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	m := NewJWTMiddleware("s3cret")
	h := protected(m, PermQuery)

	valid, err := m.Sign(&Claims{Sub: "user-1", Permissions: []string{"query"}})
	require.NoError(t, err)
	rec := request(t, h, valid)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, request(t, h, "").Code)

	forged, err := NewJWTMiddleware("other").Sign(&Claims{Sub: "user-1", Permissions: []string{"*"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, forged).Code)

	expired, err := m.Sign(&Claims{
		Sub:              "user-1",
		Permissions:      []string{"*"},
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, expired).Code)
}

func TestRequirePermission(t *testing.T) {
	m := NewJWTMiddleware("s3cret")

	reader, err := m.Sign(&Claims{Sub: "u", Permissions: []string{"sessions:read"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, request(t, protected(m, PermAdminRead), reader).Code)
	assert.Equal(t, http.StatusOK, request(t, protected(m, PermSessionsRead), reader).Code)

	admin, err := m.Sign(&Claims{Sub: "u", Permissions: []string{"*"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, request(t, protected(m, PermAdminRead), admin).Code)
}
