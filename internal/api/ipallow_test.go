package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIPAllowlist_RejectsBadCIDR(t *testing.T) {
	_, err := NewIPAllowlist([]string{"not-a-network"})
	assert.Error(t, err)
}

func TestIPAllowlist(t *testing.T) {
	newRequest := func(forwardedFor, remoteAddr string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = remoteAddr
		if forwardedFor != "" {
			r.Header.Set("X-Forwarded-For", forwardedFor)
		}
		return r
	}

	t.Run("empty allowlist admits everyone", func(t *testing.T) {
		allow, err := NewIPAllowlist(nil)
		require.NoError(t, err)
		assert.True(t, allow.Allows(newRequest("", "203.0.113.9:1234")))
	})

	allow, err := NewIPAllowlist([]string{"10.0.0.0/8", " 127.0.0.1/32"})
	require.NoError(t, err)

	t.Run("forwarded address inside network", func(t *testing.T) {
		assert.True(t, allow.Allows(newRequest("10.1.2.3", "198.51.100.1:1")))
	})

	t.Run("every forwarded hop must be allowed", func(t *testing.T) {
		assert.True(t, allow.Allows(newRequest("10.1.2.3, 127.0.0.1", "198.51.100.1:1")))
		assert.False(t, allow.Allows(newRequest("10.1.2.3, 198.51.100.1", "198.51.100.1:1")))
		assert.False(t, allow.Allows(newRequest("198.51.100.1, 10.1.2.3", "10.1.2.3:1")))
	})

	t.Run("remote address used without proxy header", func(t *testing.T) {
		assert.True(t, allow.Allows(newRequest("", "127.0.0.1:9999")))
		assert.False(t, allow.Allows(newRequest("", "203.0.113.9:1234")))
	})

	t.Run("unparseable source is denied", func(t *testing.T) {
		assert.False(t, allow.Allows(newRequest("garbage", "also-garbage")))
	})
}
