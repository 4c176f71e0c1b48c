package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func serve(t *testing.T, v *Verifier, target, token string) (*httptest.ResponseRecorder, string, error) {
	t.Helper()
	var seenEntity string
	var failure error
	h := v.Middleware([]string{"empresa_id", "user_id"},
		func(w http.ResponseWriter, _ *http.Request, status int, err error) {
			failure = err
			w.WriteHeader(status)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenEntity, _ = EntityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seenEntity, failure
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(secret)
	scoped, err := v.Issue("1699", time.Hour)
	require.NoError(t, err)
	unscoped, err := v.Issue("", time.Hour)
	require.NoError(t, err)

	t.Run("missing token", func(t *testing.T) {
		rec, _, failure := serve(t, v, "/api/dash-data?empresa_id=1699", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.ErrorIs(t, failure, ErrMissingToken)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("entity claim fills the context", func(t *testing.T) {
		rec, entity, _ := serve(t, v, "/api/dash-data", scoped)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1699", entity)
	})

	t.Run("matching query is allowed", func(t *testing.T) {
		rec, _, _ := serve(t, v, "/api/dash-data?empresa_id=1699", scoped)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("other entity is forbidden", func(t *testing.T) {
		rec, _, failure := serve(t, v, "/api/dash-data?user_id=42", scoped)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.ErrorIs(t, failure, ErrForbidden)
	})

	t.Run("unscoped token reaches any entity", func(t *testing.T) {
		rec, entity, _ := serve(t, v, "/api/dash-data?empresa_id=42", unscoped)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, entity)
	})

	t.Run("wrong secret", func(t *testing.T) {
		forged, err := NewVerifier("other").Issue("1699", time.Hour)
		require.NoError(t, err)
		rec, _, failure := serve(t, v, "/api/dash-data", forged)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.ErrorIs(t, failure, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		expired, err := v.Issue("1699", -time.Hour)
		require.NoError(t, err)
		rec, _, failure := serve(t, v, "/api/dash-data", expired)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, errors.Is(failure, jwt.ErrTokenExpired))
	})
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		ClaimEntity: "1699",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = NewVerifier(secret).Verify(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresExpiry(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{ClaimEntity: "1699"})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = NewVerifier(secret).Verify(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEntityFromClaims(t *testing.T) {
	assert.Equal(t, "1699", entityFromClaims(jwt.MapClaims{ClaimEntity: float64(1699)}))
	assert.Equal(t, "abc", entityFromClaims(jwt.MapClaims{ClaimEntity: " abc "}))
	assert.Empty(t, entityFromClaims(jwt.MapClaims{}))
}
