package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastHasher() *PasswordHasher {
	return &PasswordHasher{memory: 1024, iterations: 1, parallelism: 1, saltLength: 16, keyLength: 32}
}

func testService(t *testing.T, enabled bool) *Service {
	t.Helper()

	hash, err := fastHasher().HashPassword("s3cret")
	require.NoError(t, err)

	return NewService(config.AuthConfig{
		Enabled:        enabled,
		JWTSecretEnv:   "OFS_TEST_JWT_SECRET_UNSET",
		AccessTokenTTL: time.Minute,
		Operators:      []config.OperatorConfig{{Username: "alice", PasswordHash: hash}},
	}, zap.NewNop())
}

func TestPasswordRoundTrip(t *testing.T) {
	h := fastHasher()
	hash, err := h.HashPassword("correct horse")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := h.VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	// parameters come from the hash, not from the verifying hasher
	ok, err = NewPasswordHasher().VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPasswordRejectsGarbage(t *testing.T) {
	for _, hash := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$AAAA$AAAA", "$argon2id$v=19$m=x$AAAA$AAAA"} {
		_, err := fastHasher().VerifyPassword("x", hash)
		assert.ErrorIs(t, err, ErrInvalidHash, hash)
	}
}

func TestLogin(t *testing.T) {
	s := testService(t, true)

	token, expiresAt, err := s.Login("alice", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleOperator, claims.Role)

	_, _, err = s.Login("alice", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = s.Login("bob", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestExpiredTokenRejected(t *testing.T) {
	h := NewJWTHandler("k", time.Minute)
	h.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := h.GenerateAccessToken("alice")
	require.NoError(t, err)

	_, err = NewJWTHandler("k", time.Minute).ValidateAccessToken(token)
	assert.Error(t, err)

	_, err = NewJWTHandler("other", time.Minute).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestRequireOperator(t *testing.T) {
	gin.SetMode(gin.TestMode)

	route := func(s *Service) *gin.Engine {
		r := gin.New()
		r.POST("/x", s.RequireOperator(), func(c *gin.Context) {
			c.String(http.StatusOK, Operator(c))
		})
		return r
	}

	do := func(r *gin.Engine, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	enabled := testService(t, true)
	r := route(enabled)

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer abc").Code)

	token, _, err := enabled.Login("alice", "s3cret")
	require.NoError(t, err)
	rec := do(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	open := route(testService(t, false))
	rec = do(open, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
