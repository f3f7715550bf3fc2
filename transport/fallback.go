package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatwire/messaging"
	"github.com/opd-ai/chatwire/protocol"
)

// DefaultCSRFCookie is the cookie the anti-forgery token is read from.
const DefaultCSRFCookie = "csrftoken"

// ErrSendRejected indicates the server refused the message; the response
// carried a non-success status or ok:false.
var ErrSendRejected = errors.New("fallback send rejected")

// FallbackConfig configures a FallbackClient.
type FallbackConfig struct {
	// PostURL is the synchronous send endpoint.
	PostURL string
	// CSRFCookie names the anti-forgery cookie. Defaults to
	// DefaultCSRFCookie.
	CSRFCookie string
	// HTTPClient performs the requests. Defaults to a client with a fresh
	// cookie jar, so the session carries the server's anti-forgery cookie
	// between requests.
	HTTPClient *http.Client
}

// FallbackClient is the synchronous request/response send path, used when no
// streaming channel is available. It is the last-resort path: its failures
// are the only errors that reach the user.
type FallbackClient struct {
	postURL *url.URL
	cookie  string
	client  *http.Client
	log     *logrus.Entry
}

// NewFallbackClient creates a FallbackClient for the given endpoint.
func NewFallbackClient(cfg FallbackConfig) (*FallbackClient, error) {
	u, err := url.Parse(cfg.PostURL)
	if err != nil {
		return nil, fmt.Errorf("invalid post URL: %w", err)
	}
	if cfg.CSRFCookie == "" {
		cfg.CSRFCookie = DefaultCSRFCookie
	}
	if cfg.HTTPClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		cfg.HTTPClient = &http.Client{Jar: jar}
	}
	return &FallbackClient{
		postURL: u,
		cookie:  cfg.CSRFCookie,
		client:  cfg.HTTPClient,
		log:     logrus.WithField("component", "fallback"),
	}, nil
}

// postResponse is the endpoint's JSON reply.
type postResponse struct {
	OK      bool         `json:"ok"`
	Message *wireMessage `json:"message"`
	Error   string       `json:"error"`
}

type wireMessage struct {
	Text       string `json:"text"`
	SenderName string `json:"sender_name"`
	SentAt     string `json:"sent_at"`
}

// SendText posts one message synchronously and returns the server-confirmed
// record. Failure is any network error, non-2xx status or ok:false reply;
// the server's own error string is preferred when present.
func (f *FallbackClient) SendText(ctx context.Context, text string) (messaging.Message, error) {
	form := url.Values{}
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.postURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return messaging.Message{}, fmt.Errorf("building fallback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token := f.csrfToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return messaging.Message{}, fmt.Errorf("fallback send: %w", err)
	}
	defer resp.Body.Close()

	var body postResponse
	// A decode failure leaves body zeroed, which fails the ok check below
	// with the status-based error message.
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !body.OK {
		reason := body.Error
		if reason == "" {
			reason = resp.Status
		}
		f.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"error":  body.Error,
		}).Error("Fallback send failed")
		return messaging.Message{}, fmt.Errorf("%w: %s", ErrSendRejected, reason)
	}
	if body.Message == nil {
		return messaging.Message{}, fmt.Errorf("%w: response carried no message", ErrSendRejected)
	}

	return messaging.Message{
		Text:       body.Message.Text,
		SenderName: body.Message.SenderName,
		SentAt:     protocol.ParseTimestamp(body.Message.SentAt),
	}, nil
}

// csrfToken reads the anti-forgery token from the client's cookie jar.
// Missing jar or cookie yields an empty token; the server decides whether
// that is acceptable.
func (f *FallbackClient) csrfToken() string {
	if f.client.Jar == nil {
		return ""
	}
	for _, c := range f.client.Jar.Cookies(f.postURL) {
		if c.Name == f.cookie {
			return c.Value
		}
	}
	return ""
}
