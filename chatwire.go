// Package chatwire implements the client side of a realtime conversation:
// a live message view maintained against a server over an intermittently
// available streaming channel, with a synchronous fallback path when no
// channel is up.
//
// Locally-sent messages are rendered optimistically and reconciled with
// server-confirmed state through correlation identifiers, so a message the
// client itself sent is never rendered twice when the server echoes it back.
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session, err := chatwire.New(chatwire.NewOptions(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.OnTypingIndicator(func(typing bool) {
//	    fmt.Println("peer typing:", typing)
//	})
//	session.OnSendFailure(func(err error) {
//	    fmt.Println("send failed:", err)
//	})
//
//	session.Start()
//	session.SendMessage("hello")
package chatwire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatwire/config"
	"github.com/opd-ai/chatwire/messaging"
	"github.com/opd-ai/chatwire/protocol"
	"github.com/opd-ai/chatwire/render"
	"github.com/opd-ai/chatwire/transport"
	"github.com/opd-ai/chatwire/typing"
)

// Options contains everything needed to create a Session. Only Config is
// required; the remaining fields are injection points for hosts and tests.
type Options struct {
	Config config.Config

	// Renderer paints the conversation. Defaults to an in-memory
	// render.Transcript.
	Renderer render.Renderer

	// Dial overrides the websocket dialer.
	Dial transport.DialFunc

	// HTTPClient overrides the fallback HTTP client.
	HTTPClient *http.Client

	// StreamTime and TypingTime override the timer sources of the
	// reconnection schedule and the typing debouncer.
	StreamTime transport.TimeProvider
	TypingTime typing.TimeProvider
}

// NewOptions creates Options with the given config and all defaults.
func NewOptions(cfg config.Config) *Options {
	return &Options{Config: cfg}
}

// Session is the top-level object of one conversation. It owns the single
// streaming connection, the pending registry, the typing debouncer and the
// dispatch loop; handlers share state only through it. One Session exists per
// conversation view, created at load and closed at teardown.
type Session struct {
	cfg      config.Config
	stream   *transport.StreamConn
	fallback *transport.FallbackClient
	registry *messaging.Registry
	renderer render.Renderer
	notifier *typing.Notifier
	clock    transport.TimeProvider
	log      *logrus.Entry

	mu         sync.Mutex
	peerTyping bool
	started    bool
	typingCb   func(bool)
	failureCb  func(error)
	composerCb func()

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Session from the given options. The streaming channel is not
// dialed until Start.
func New(opts *Options) (*Session, error) {
	if opts == nil {
		return nil, errors.New("options must not be nil")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	renderer := opts.Renderer
	if renderer == nil {
		renderer = render.NewTranscript()
	}

	fallback, err := transport.NewFallbackClient(transport.FallbackConfig{
		PostURL:    opts.Config.PostURL,
		CSRFCookie: opts.Config.CSRFCookie,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	clock := opts.StreamTime
	if clock == nil {
		clock = transport.RealTimeProvider{}
	}

	s := &Session{
		cfg:      opts.Config,
		fallback: fallback,
		renderer: renderer,
		registry: messaging.NewRegistry(renderer),
		clock:    clock,
		log:      logrus.WithField("component", "session"),
		done:     make(chan struct{}),
	}
	s.stream = transport.NewStreamConn(transport.StreamConfig{
		URL:          opts.Config.StreamURL(),
		Dial:         opts.Dial,
		BackoffStep:  opts.Config.BackoffStep,
		BackoffMax:   opts.Config.BackoffMax,
		TimeProvider: opts.StreamTime,
	})
	s.notifier = typing.NewNotifier(opts.Config.TypingQuiet, s.sendTyping, opts.TypingTime)

	return s, nil
}

// OnTypingIndicator registers a callback invoked when the remote
// participant's typing state changes. The state is derived entirely from
// inbound typing events; the local user's own typing never reaches it.
func (s *Session) OnTypingIndicator(cb func(isTyping bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typingCb = cb
}

// OnSendFailure registers a callback for fallback-send failures, the one
// error class that crosses to the user. Transport failures recover silently
// through reconnection and never arrive here.
func (s *Session) OnSendFailure(cb func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCb = cb
}

// OnComposerReset registers a callback fired at the start of every accepted
// SendMessage, independent of transport outcome. Hosts clear and refocus
// their input box here.
func (s *Session) OnComposerReset(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.composerCb = cb
}

// Start connects the streaming channel and begins dispatching inbound
// events. Calling Start more than once is a no-op.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.stream.Connect()
	go s.dispatch()
}

// Close tears the session down: the channel stops reconnecting and the
// dispatch loop exits.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.stream.Close()
		s.notifier.Close()
	})
}

// Renderer returns the presentation surface the session paints to.
func (s *Session) Renderer() render.Renderer {
	return s.renderer
}

// ConnectionState reports the streaming channel state.
func (s *Session) ConnectionState() transport.State {
	return s.stream.State()
}

// PeerTyping reports whether the remote participant is currently typing.
func (s *Session) PeerTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerTyping
}

// PendingCount reports how many locally-sent messages still await a
// streaming acknowledgment.
func (s *Session) PendingCount() int {
	return s.registry.Len()
}

// SendMessage sends one message, choosing the delivery path from the channel
// state observed now: an open channel gets an optimistic bubble keyed by a
// fresh correlation id and reconciled asynchronously by its ack; otherwise
// the bubble is reconciled in place from the fallback response. The path is
// never switched after the fact.
//
// Empty and whitespace-only input is ignored entirely.
func (s *Session) SendMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.resetComposer()

	if utf8.RuneCountInString(text) > protocol.MaxTextLen {
		s.reportFailure(fmt.Errorf("message exceeds %d characters", protocol.MaxTextLen))
		return
	}

	fields := render.Fields{Text: text, SenderName: s.cfg.UserName, SentAt: s.clock.Now()}

	if s.stream.State() == transport.StateOpen {
		clientID := messaging.NewClientID()
		h := s.renderer.Append(fields, true)
		if err := s.registry.Register(clientID, h); err != nil {
			s.log.WithError(err).WithField("client_id", clientID).Warn("Correlation id collision")
			return
		}
		// A refused send is swallowed: the bubble stays pending until an
		// ack arrives on a later connection, or indefinitely.
		s.stream.Send(protocol.MessageFrame(text, clientID))
		return
	}

	// No channel: no async ack path exists, so the bubble has no
	// correlation id and is reconciled directly from the POST response.
	h := s.renderer.Append(fields, true)
	go s.sendViaFallback(text, h)
}

// sendViaFallback runs the synchronous path off the dispatch loop. On
// failure the bubble keeps its pending marker permanently; there is no
// automatic retry.
func (s *Session) sendViaFallback(text string, h render.Handle) {
	msg, err := s.fallback.SendText(context.Background(), text)
	if err != nil {
		s.reportFailure(err)
		return
	}
	s.renderer.UpdateContent(h, msg.Fields())
	s.renderer.MarkConfirmed(h)
}

// InputChanged records raw input activity and drives the typing debouncer.
func (s *Session) InputChanged() {
	s.notifier.Touch()
}

// VisibilityChanged marks the conversation read when the view becomes
// visible again. With no open channel the signal is dropped.
func (s *Session) VisibilityChanged(visible bool) {
	if visible {
		s.stream.Send(protocol.ReadFrame())
	}
}

// dispatch consumes inbound events in arrival order until Close.
func (s *Session) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.stream.Events():
			s.route(ev)
		}
	}
}

// route classifies one inbound event and hands it to its handler. Lifecycle
// events are logged only; reconnection is the transport's business.
func (s *Session) route(ev protocol.Event) {
	switch ev.Kind {
	case protocol.KindMessage:
		s.handleMessage(ev.Message)
	case protocol.KindTyping:
		s.handleTyping(ev.Typing)
	case protocol.KindRead:
		// Reserved for a future read-receipt surface.
	case protocol.KindClosed:
		s.log.Debug("Stream closed, reconnect pending")
	case protocol.KindError:
		s.log.WithError(ev.Err).Debug("Stream error")
	}
}

// handleMessage reconciles acknowledgments of our own messages and renders
// everything else as a new confirmed bubble, returning a read receipt for it.
func (s *Session) handleMessage(me protocol.MessageEvent) {
	if me.ClientID != "" {
		msg := messaging.Message{
			Text:       me.Text,
			SenderName: me.SenderName,
			SentAt:     me.SentAt,
			ClientID:   me.ClientID,
		}
		if s.registry.Resolve(me.ClientID, msg) {
			return
		}
		// Unmatched id: a duplicate or late ack, or another device's
		// correlation id. Render as a normal remote message.
	}

	s.renderer.Append(render.Fields{
		Text:       me.Text,
		SenderName: me.SenderName,
		SentAt:     me.SentAt,
	}, false)
	s.stream.Send(protocol.ReadFrame())
}

// handleTyping updates the indicator from the peer's typing state. Our own
// typing events come back from the server too and are never reflected.
func (s *Session) handleTyping(te protocol.TypingEvent) {
	if te.UserID == s.cfg.UserID {
		return
	}

	s.mu.Lock()
	s.peerTyping = te.IsTyping
	cb := s.typingCb
	s.mu.Unlock()

	if cb != nil {
		cb(te.IsTyping)
	}
}

// sendTyping delivers debounced typing signals over the channel. With no
// open channel the signal is dropped, matching the send contract.
func (s *Session) sendTyping(isTyping bool) {
	s.stream.Send(protocol.TypingFrame(isTyping))
}

// resetComposer fires the composer-reset callback.
func (s *Session) resetComposer() {
	s.mu.Lock()
	cb := s.composerCb
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// reportFailure surfaces a user-visible send failure.
func (s *Session) reportFailure(err error) {
	s.log.WithError(err).Error("Send failed")
	s.mu.Lock()
	cb := s.failureCb
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
