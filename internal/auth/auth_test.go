package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-relay/internal/model"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

const testSecret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	token, expiry, err := CreateAccessToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), expiry, 5*time.Second)

	subject, err := ParseAccessToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestParseAccessToken_Rejections(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := CreateAccessToken(testSecret, "alice", time.Hour)
		require.NoError(t, err)

		_, err = ParseAccessToken("other-secret", token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, _, err := CreateAccessToken(testSecret, "alice", -time.Minute)
		require.NoError(t, err)

		_, err = ParseAccessToken(testSecret, token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseAccessToken(testSecret, "not-a-jwt")
		assert.Error(t, err)
	})
}

func TestURLVerifier(t *testing.T) {
	t.Run("2xx means valid", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		ok, err := NewURLVerifier(srv.URL).Verify(context.Background(), "alice", "pw")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("401 means bad credentials, not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		ok, err := NewURLVerifier(srv.URL).Verify(context.Background(), "alice", "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("5xx is an infrastructure error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewURLVerifier(srv.URL).Verify(context.Background(), "alice", "pw")
		assert.Error(t, err)
	})
}

func TestNewVerifier_UnknownMethod(t *testing.T) {
	_, err := NewVerifier("kerberos", LDAPConfig{}, "")
	assert.ErrorIs(t, err, ErrNoVerifier)
}

// fakeLoader serves a fixed user set for middleware tests.
type fakeLoader struct {
	users map[string]*model.User
}

func (f *fakeLoader) UserByUsername(_ context.Context, username string) (*model.User, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, notify.ErrNotFound
	}
	return user, nil
}

func newTestMiddleware() *Middleware {
	loader := &fakeLoader{users: map[string]*model.User{
		"alice": {ID: 1, Username: "alice", IsActive: true},
		"root":  {ID: 2, Username: "root", IsActive: true, IsAdmin: true},
		"gone":  {ID: 3, Username: "gone", IsActive: false},
	}}
	return NewMiddleware(testSecret, loader, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func doRequest(t *testing.T, handler http.HandlerFunc, username string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if username != "" {
		token, _, err := CreateAccessToken(testSecret, username, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	mw := newTestMiddleware()
	echoUser := func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(user.Username))
	}

	t.Run("valid token passes and attaches user", func(t *testing.T) {
		rec := doRequest(t, mw.RequireUser(echoUser), "alice")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("missing header is 401", func(t *testing.T) {
		rec := doRequest(t, mw.RequireUser(echoUser), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown subject is 401", func(t *testing.T) {
		rec := doRequest(t, mw.RequireUser(echoUser), "nobody")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("inactive user is 403", func(t *testing.T) {
		rec := doRequest(t, mw.RequireUser(echoUser), "gone")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin route rejects plain user", func(t *testing.T) {
		rec := doRequest(t, mw.RequireAdmin(echoUser), "alice")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin route admits admin", func(t *testing.T) {
		rec := doRequest(t, mw.RequireAdmin(echoUser), "root")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "root", rec.Body.String())
	})
}
