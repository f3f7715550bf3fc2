package chatwire

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/chatwire/config"
	"github.com/opd-ai/chatwire/protocol"
	"github.com/opd-ai/chatwire/transport"
)

// scriptedConn is a transport.Conn driven by the test: inbound payloads are
// injected through a channel and written frames are recorded.
type scriptedConn struct {
	inbound chan []byte

	mu        sync.Mutex
	written   []protocol.Frame
	closeOnce sync.Once
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{inbound: make(chan []byte, 16)}
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("connection torn down")
	}
	return websocket.TextMessage, data, nil
}

func (c *scriptedConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, f)
	c.mu.Unlock()
	return nil
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.inbound) })
	return nil
}

func (c *scriptedConn) inject(payload string) {
	c.inbound <- []byte(payload)
}

func (c *scriptedConn) frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Frame, len(c.written))
	copy(out, c.written)
	return out
}

// framesOfType filters recorded frames by discriminator.
func (c *scriptedConn) framesOfType(frameType string) []protocol.Frame {
	var out []protocol.Frame
	for _, f := range c.frames() {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

// manualClock satisfies both the transport and typing time providers so
// tests can fire scheduled work by hand.
type manualClock struct {
	mu  sync.Mutex
	fns []func()
}

func (m *manualClock) Now() time.Time {
	return time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
}

func (m *manualClock) AfterFunc(d time.Duration, fn func()) *time.Timer {
	m.mu.Lock()
	m.fns = append(m.fns, fn)
	m.mu.Unlock()
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func (m *manualClock) fireLast() {
	m.mu.Lock()
	fn := m.fns[len(m.fns)-1]
	m.mu.Unlock()
	fn()
}

func streamedConfig(postURL string) config.Config {
	return config.Config{
		PostURL:     postURL,
		Host:        "chat.test",
		StreamPath:  "/ws/requests/7/",
		Secure:      true,
		UserID:      7,
		UserName:    "Me",
		BackoffStep: 500 * time.Millisecond,
		BackoffMax:  8 * time.Second,
		TypingQuiet: 700 * time.Millisecond,
	}
}

func fallbackOnlyConfig(postURL string) config.Config {
	cfg := streamedConfig(postURL)
	cfg.Host = ""
	cfg.StreamPath = ""
	return cfg
}

// dialTo returns a DialFunc handing out the given connection on the first
// dial and failing afterwards.
func dialTo(conn *scriptedConn) transport.DialFunc {
	var mu sync.Mutex
	used := false
	return func(addr string) (transport.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if used {
			return nil, errors.New("no more scripted connections")
		}
		used = true
		return conn, nil
	}
}
