package auth

import (
	"chat-core/errors"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-test-secret-that-is-long-enough-2026"

func TestTokenIssuer_RoundTrip(t *testing.T) {
	req := require.New(t)
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	req.NoError(err)

	token, err := issuer.GenerateToken("alice", []string{"user"})
	req.NoError(err)

	claims, err := issuer.ValidateToken(token)
	req.NoError(err)
	req.Equal("alice", claims.UserID)
	req.Equal([]string{"user"}, claims.Roles)
}

func TestTokenIssuer_Rejects_Foreign_And_Expired_Tokens(t *testing.T) {
	req := require.New(t)
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	req.NoError(err)
	other, err := NewTokenIssuer(testSecret+"-other", time.Hour)
	req.NoError(err)

	// Signed with another secret
	foreign, err := other.GenerateToken("alice", nil)
	req.NoError(err)
	_, err = issuer.ValidateToken(foreign)
	req.ErrorIs(err, errors.ErrInvalidToken)

	// Expired
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := issuer.GenerateToken("alice", nil)
	req.NoError(err)
	issuer.now = time.Now
	_, err = issuer.ValidateToken(expired)
	req.ErrorIs(err, errors.ErrInvalidToken)

	_, err = issuer.ValidateToken("not-a-jwt")
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestTokenIssuer_Validation(t *testing.T) {
	req := require.New(t)

	_, err := NewTokenIssuer("short", time.Hour)
	req.Error(err)

	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	req.NoError(err)
	_, err = issuer.GenerateToken("", nil)
	req.ErrorIs(err, errors.ErrInvalidContent)
	_, err = issuer.GenerateToken("has space", nil)
	req.ErrorIs(err, errors.ErrInvalidContent)
}

func TestMiddleware(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	token, err := issuer.GenerateToken("alice", []string{"user"})
	require.NoError(t, err)

	var seen string
	handler := Middleware(issuer, logs.GetLoggerFromLevel(slog.LevelDebug))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("should inject the caller from the bearer header", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/v1/rooms", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		req.Equal(http.StatusNoContent, w.Code)
		req.Equal("alice", seen)
	})

	t.Run("should accept the query token on handshakes", func(t *testing.T) {
		req := require.New(t)
		seen = ""
		r := httptest.NewRequest(http.MethodGet, "/v1/realtime?access_token="+token, nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		req.Equal(http.StatusNoContent, w.Code)
		req.Equal("alice", seen)
	})

	t.Run("should fail when the token is missing or invalid", func(t *testing.T) {
		req := require.New(t)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/rooms", nil))
		req.Equal(http.StatusUnauthorized, w.Code)

		r := httptest.NewRequest(http.MethodGet, "/v1/rooms", nil)
		r.Header.Set("Authorization", "Bearer garbage")
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		req.Equal(http.StatusUnauthorized, w.Code)
	})
}

func TestContext_Helpers(t *testing.T) {
	req := require.New(t)

	_, ok := UserIDFromContext(context.Background())
	req.False(ok)

	ctx := WithUserID(context.Background(), "alice", "admin")
	userID, ok := UserIDFromContext(ctx)
	req.True(ok)
	req.Equal("alice", userID)
	req.Equal([]string{"admin"}, RolesFromContext(ctx))
}
