package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-recipes/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	var cfg config.AuthConfig
	cfg.JWT.Secret = testSecret
	cfg.JWT.Issuer = "task-recipes"
	cfg.JWT.TokenTTL = 60000
	s, err := NewTokenService(cfg)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func TestNewTokenService(t *testing.T) {
	s, err := NewTokenService(config.AuthConfig{})
	assert.NoError(t, err)
	assert.Nil(t, s, "no secret disables auth")

	var short config.AuthConfig
	short.JWT.Secret = "short"
	_, err = NewTokenService(short)
	assert.Error(t, err)
}

func TestTokenService_RoundTrip(t *testing.T) {
	s := newTestService(t)

	token, err := s.Generate("chaos-duck", "task_runs")
	require.NoError(t, err)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "chaos-duck", claims.Subject)
	assert.Equal(t, "task_runs", claims.Scope)
	assert.Equal(t, "task-recipes", claims.Issuer)
}

func TestTokenService_Rejects(t *testing.T) {
	s := newTestService(t)
	token, err := s.Generate("user", "")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		defer func() { s.now = time.Now }()
		_, err := s.Validate(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := newTestService(t)
		other.signingKey = []byte("fedcba9876543210fedcba9876543210")
		_, err := other.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Validate("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		err    error
	}{
		{header: "", err: ErrMissingToken},
		{header: "Basic abc", err: ErrInvalidToken},
		{header: "Bearer ", err: ErrInvalidToken},
		{header: "Bearer abc.def", token: "abc.def"},
		{header: "bearer xyz", token: "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			token, err := BearerToken(r)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, token)
		})
	}
}
