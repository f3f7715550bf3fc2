// Package config loads the host-provided conversation attributes from the
// environment and validates them.
//
// The web host passes these as element attributes; headless hosts pass them
// as CHAT_* environment variables. Either way the same four facts configure a
// session: where to POST, where to stream (optional), who the local user is,
// and what to call them.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything a conversation session needs at initialization.
type Config struct {
	// PostURL is the synchronous send endpoint (the fallback path).
	PostURL string `envconfig:"POST_URL" validate:"required,url"`

	// Host is the server authority the streaming channel connects to, for
	// example "chat.example.com".
	Host string `envconfig:"HOST"`

	// StreamPath is the server-supplied streaming channel path. When empty
	// the streaming path is permanently disabled and every send uses the
	// fallback.
	StreamPath string `envconfig:"STREAM_PATH"`

	// Secure selects the secure streaming scheme, mirroring the security
	// of the hosting page.
	Secure bool `envconfig:"SECURE" default:"true"`

	// UserID is the local user's identifier, used to suppress the echo of
	// one's own typing signals.
	UserID int64 `envconfig:"USER_ID" validate:"required"`

	// UserName is the local display name for optimistic bubbles.
	UserName string `envconfig:"USER_NAME" validate:"required"`

	// CSRFCookie names the anti-forgery cookie for the fallback path.
	CSRFCookie string `envconfig:"CSRF_COOKIE" default:"csrftoken"`

	// BackoffStep and BackoffMax bound the stream reconnection schedule.
	BackoffStep time.Duration `envconfig:"BACKOFF_STEP" default:"500ms"`
	BackoffMax  time.Duration `envconfig:"BACKOFF_MAX" default:"8s"`

	// TypingQuiet is the idle interval after which a typing-stopped signal
	// fires.
	TypingQuiet time.Duration `envconfig:"TYPING_QUIET" default:"700ms"`
}

// Load reads the CHAT_* environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("chat", &c); err != nil {
		return Config{}, fmt.Errorf("loading chat config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the config against its declared constraints and the
// cross-field rule that a stream path needs a host to dial.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid chat config: %w", err)
	}
	if c.StreamPath != "" && c.Host == "" {
		return fmt.Errorf("invalid chat config: stream path set without host")
	}
	return nil
}

// StreamURL derives the channel address from the page's security scheme and
// the server-supplied path. Empty when no path is configured, which disables
// the streaming path for the life of the session.
func (c Config) StreamURL() string {
	if c.StreamPath == "" || c.Host == "" {
		return ""
	}
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Host, c.StreamPath)
}
