package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/chatwire/protocol"
)

var errConnTorn = errors.New("connection torn down")

// scriptedConn is a Conn driven by the test: inbound payloads are injected
// through a channel and written frames are recorded.
type scriptedConn struct {
	inbound chan []byte

	mu        sync.Mutex
	written   []protocol.Frame
	failWrite bool
	closeOnce sync.Once
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{inbound: make(chan []byte, 16)}
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return 0, nil, errConnTorn
	}
	return websocket.TextMessage, data, nil
}

func (c *scriptedConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errConnTorn
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.written = append(c.written, f)
	return nil
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.inbound) })
	return nil
}

// inject delivers one inbound payload to the read loop.
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

func (c *scriptedConn) setFailWrite(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrite = fail
}

// fakeClock records reconnect scheduling so tests can observe the backoff
// sequence and fire attempts by hand.
type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
	fns   []func()
}

func (f *fakeClock) Now() time.Time {
	return time.Unix(0, 0)
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) *time.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, d)
	f.fns = append(f.fns, fn)
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func (f *fakeClock) scheduledWaits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.waits))
	copy(out, f.waits)
	return out
}

// fire runs the i-th scheduled callback.
func (f *fakeClock) fire(i int) {
	f.mu.Lock()
	fn := f.fns[i]
	f.mu.Unlock()
	fn()
}
