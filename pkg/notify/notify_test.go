package notify_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

func TestClassifyToken(t *testing.T) {
	hex64 := strings.Repeat("ab12", 16)

	testCases := []struct {
		name  string
		token string
		want  notify.Platform
	}{
		{"64 hex chars is iOS", hex64, notify.PlatformIOS},
		{"uppercase hex is iOS", strings.Repeat("AB12", 16), notify.PlatformIOS},
		{"63 chars is Android", hex64[:63], notify.PlatformAndroid},
		{"65 chars is Android", hex64 + "f", notify.PlatformAndroid},
		{"64 non-hex chars is Android", strings.Repeat("zz12", 16), notify.PlatformAndroid},
		{"typical FCM token is Android", "dXg1:APA91bF" + strings.Repeat("x", 120), notify.PlatformAndroid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, notify.ClassifyToken(tc.token))
		})
	}
}

func TestPreview(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "This is a test", notify.Preview("This is a test"))
	})

	t.Run("long text hard truncated", func(t *testing.T) {
		long := strings.Repeat("a", 300)
		got := notify.Preview(long)
		assert.Len(t, got, notify.MaxPreviewLen)
	})

	t.Run("truncation counts runes not bytes", func(t *testing.T) {
		long := strings.Repeat("ü", 300)
		got := notify.Preview(long)
		assert.Equal(t, notify.MaxPreviewLen, len([]rune(got)))
	})
}
