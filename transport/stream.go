// Package transport owns the two delivery paths of the conversation channel:
// a long-lived websocket stream with automatic reconnection, and a
// synchronous HTTP fallback used whenever the stream is unavailable.
package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatwire/protocol"
)

// State represents the lifecycle state of the streaming channel.
type State uint8

const (
	// StateClosed means no channel exists; sends degrade to the fallback.
	StateClosed State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means frames can be sent and received.
	StateOpen
)

// String returns a human-readable state name for logging.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Default reconnection backoff schedule: wait = min(BackoffMax, BackoffStep×N)
// for the Nth consecutive failure, resetting on a successful open.
const (
	DefaultBackoffStep = 500 * time.Millisecond
	DefaultBackoffMax  = 8 * time.Second
)

// Conn is the subset of *websocket.Conn the stream uses, extracted so tests
// can drive the read loop with a scripted connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// DialFunc opens one websocket connection to addr.
type DialFunc func(addr string) (Conn, error)

// WebsocketDial dials addr with the gorilla default dialer.
func WebsocketDial(addr string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// StreamConfig configures a StreamConn.
type StreamConfig struct {
	// URL is the channel address. Empty disables the stream entirely;
	// Connect becomes a permanent no-op and every send reports false.
	URL string
	// Dial opens the underlying connection. Defaults to WebsocketDial.
	Dial DialFunc
	// BackoffStep and BackoffMax bound the reconnection schedule.
	BackoffStep time.Duration
	BackoffMax  time.Duration
	// TimeProvider schedules reconnection attempts. Defaults to real time.
	TimeProvider TimeProvider
}

// StreamConn owns one streaming channel: open, send, receive and
// reconnection with linear backoff. Failures are contained here; consumers
// observe them only as synthesized closed/error events and sends returning
// false. There is no retry limit, the channel reconnects for as long as the
// session lives.
type StreamConn struct {
	url    string
	dial   DialFunc
	step   time.Duration
	max    time.Duration
	tp     TimeProvider
	events chan protocol.Event
	done   chan struct{}
	log    *logrus.Entry

	mu       sync.Mutex
	state    State
	conn     Conn
	attempts int
	closed   bool
}

// NewStreamConn creates a StreamConn. The channel is not dialed until
// Connect is called.
func NewStreamConn(cfg StreamConfig) *StreamConn {
	if cfg.Dial == nil {
		cfg.Dial = WebsocketDial
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = DefaultBackoffStep
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.TimeProvider == nil {
		cfg.TimeProvider = RealTimeProvider{}
	}
	return &StreamConn{
		url:    cfg.URL,
		dial:   cfg.Dial,
		step:   cfg.BackoffStep,
		max:    cfg.BackoffMax,
		tp:     cfg.TimeProvider,
		events: make(chan protocol.Event, 32),
		done:   make(chan struct{}),
		log:    logrus.WithField("component", "stream"),
	}
}

// Events returns the inbound event channel consumed by the dispatch loop.
// Decoded frames arrive in the order received; closed/error lifecycle events
// are interleaved at the point they occur.
func (s *StreamConn) Events() <-chan protocol.Event {
	return s.events
}

// State returns the current channel state.
func (s *StreamConn) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the channel. It is idempotent: calling it while the
// channel is connecting or open is a no-op, as is calling it with no URL
// configured or after Close.
func (s *StreamConn) Connect() {
	s.mu.Lock()
	if s.url == "" || s.closed || s.state != StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	go s.establish()
}

// establish performs one dial attempt and starts the read loop on success.
func (s *StreamConn) establish() {
	conn, err := s.dial(s.url)
	if err != nil {
		s.log.WithError(err).Warn("Stream dial failed")
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		s.scheduleReconnect()
		s.tryEmit(protocol.Event{Kind: protocol.KindError, Err: err})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.attempts = 0
	s.mu.Unlock()

	s.log.Info("Stream open")

	// Mark the conversation read the moment the channel is up.
	s.Send(protocol.ReadFrame())

	go s.readLoop(conn)
}

// readLoop decodes inbound payloads until the connection fails. Malformed and
// unknown frames are dropped without disturbing the channel.
func (s *StreamConn) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.connFailed(conn, err)
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			s.log.WithError(err).Debug("Dropping undecodable frame")
			continue
		}
		s.emit(ev)
	}
}

// Send transmits a frame when the channel is open. It reports whether the
// send was accepted; false means the caller should use the fallback path.
func (s *StreamConn) Send(f protocol.Frame) bool {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		return false
	}
	if err := conn.WriteJSON(f); err != nil {
		s.connFailed(conn, err)
		return false
	}
	return true
}

// Close tears the channel down for good. No further reconnection is
// attempted. Scoped to tests and demo shutdown; page-session lifetime needs
// no explicit teardown.
func (s *StreamConn) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// connFailed transitions to Closed after a transport-level error and
// schedules a reconnect. The read loop and a failed Send can both report the
// same connection; only the first report wins.
func (s *StreamConn) connFailed(conn Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateClosed
	closed := s.closed
	s.mu.Unlock()

	conn.Close()
	if closed {
		return
	}

	s.log.WithError(err).Warn("Stream closed")
	s.scheduleReconnect()
	s.tryEmit(protocol.Event{Kind: protocol.KindClosed, Err: err})
}

// scheduleReconnect arms the next attempt. The wait grows linearly with the
// consecutive failure count and is capped at the configured maximum.
func (s *StreamConn) scheduleReconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.attempts++
	wait := time.Duration(s.attempts) * s.step
	if wait > s.max {
		wait = s.max
	}
	attempt := s.attempts
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"attempt": attempt,
		"wait":    wait,
	}).Info("Scheduling stream reconnect")

	s.tp.AfterFunc(wait, s.Connect)
}

// emit forwards an event to the dispatch loop, giving up when the channel is
// torn down so a backlogged read loop can always exit.
func (s *StreamConn) emit(ev protocol.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// tryEmit delivers a lifecycle event without ever blocking the reporter. The
// reporter can be the consumer itself (a failed send issued from the dispatch
// loop), so waiting for buffer space here would deadlock; with the backlog
// full the event carries no information the consumer will miss.
func (s *StreamConn) tryEmit(ev protocol.Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug("Dropping lifecycle event, consumer backlogged")
	}
}
