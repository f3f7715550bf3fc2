package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		PostURL:     "https://chat.example.com/requests/7/post",
		Host:        "chat.example.com",
		StreamPath:  "/ws/requests/7/",
		Secure:      true,
		UserID:      42,
		UserName:    "Me",
		CSRFCookie:  "csrftoken",
		BackoffStep: 500 * time.Millisecond,
		BackoffMax:  8 * time.Second,
		TypingQuiet: 700 * time.Millisecond,
	}
}

// TestLoad tests environment loading with defaults applied.
func TestLoad(t *testing.T) {
	t.Setenv("CHAT_POST_URL", "https://chat.example.com/requests/7/post")
	t.Setenv("CHAT_HOST", "chat.example.com")
	t.Setenv("CHAT_STREAM_PATH", "/ws/requests/7/")
	t.Setenv("CHAT_USER_ID", "42")
	t.Setenv("CHAT_USER_NAME", "Me")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.UserID)
	assert.True(t, cfg.Secure)
	assert.Equal(t, "csrftoken", cfg.CSRFCookie)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffStep)
	assert.Equal(t, 8*time.Second, cfg.BackoffMax)
	assert.Equal(t, 700*time.Millisecond, cfg.TypingQuiet)
}

// TestValidate tests the declared and cross-field constraints.
func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing post url", func(t *testing.T) {
		cfg := validConfig()
		cfg.PostURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing user name", func(t *testing.T) {
		cfg := validConfig()
		cfg.UserName = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("stream path without host", func(t *testing.T) {
		cfg := validConfig()
		cfg.Host = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("no stream path at all is fine", func(t *testing.T) {
		cfg := validConfig()
		cfg.Host = ""
		cfg.StreamPath = ""
		assert.NoError(t, cfg.Validate())
	})
}

// TestStreamURL tests address derivation from the page's security scheme and
// the server-supplied path.
func TestStreamURL(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "wss://chat.example.com/ws/requests/7/", cfg.StreamURL())

	cfg.Secure = false
	assert.Equal(t, "ws://chat.example.com/ws/requests/7/", cfg.StreamURL())

	// No path configured: the streaming path stays disabled for good.
	cfg.StreamPath = ""
	assert.Empty(t, cfg.StreamURL())
}
