// Package protocol defines the JSON frame vocabulary of the conversation
// channel and the typed inbound events derived from it.
//
// Frames travel in both directions over the streaming channel with a "type"
// discriminator. Inbound frames are decoded into a tagged-union Event so the
// dispatch loop (and its tests) never handles raw bytes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxTextLen is the longest message body the server accepts, in runes.
// Longer texts are rejected before any send is attempted.
const MaxTextLen = 2000

// Frame types carried in the "type" discriminator.
const (
	TypeMessage = "message"
	TypeTyping  = "typing"
	TypeRead    = "read"
)

var (
	// ErrUnknownType indicates a frame whose type has no inbound handling.
	// Callers discard such frames without tearing down the channel.
	ErrUnknownType = errors.New("unknown frame type")
	// ErrMalformedFrame indicates an inbound payload that is not valid JSON.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Frame is the wire representation of one channel payload, covering both
// directions. Unused fields are omitted on the wire.
type Frame struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	SentAt     string `json:"sent_at,omitempty"`
	IsTyping   *bool  `json:"is_typing,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
}

// MessageFrame builds an outbound message frame carrying the correlation id
// that a later acknowledgment will echo back.
func MessageFrame(text, clientID string) Frame {
	return Frame{Type: TypeMessage, Text: text, ClientID: clientID}
}

// TypingFrame builds an outbound typing signal. The flag is always explicit
// on the wire; a stopped signal is not the same as no signal.
func TypingFrame(isTyping bool) Frame {
	return Frame{Type: TypeTyping, IsTyping: &isTyping}
}

// ReadFrame builds an outbound read receipt.
func ReadFrame() Frame {
	return Frame{Type: TypeRead}
}

// Kind tags the variants of an inbound Event.
type Kind uint8

const (
	// KindMessage is a chat message, either a peer's or the echo of our own.
	KindMessage Kind = iota
	// KindTyping is a peer typing-state change.
	KindTyping
	// KindRead is a read receipt. Accepted, currently without local effect.
	KindRead
	// KindClosed is synthesized by the transport when the channel closes.
	KindClosed
	// KindError is synthesized by the transport on a channel-level error.
	KindError
)

// MessageEvent is the payload of a KindMessage event.
type MessageEvent struct {
	Text       string
	SenderName string
	SentAt     time.Time
	// ClientID is set only on acknowledgments of locally-sent messages.
	ClientID string
}

// TypingEvent is the payload of a KindTyping event.
type TypingEvent struct {
	UserID   int64
	IsTyping bool
}

// Event is the tagged union consumed by the dispatch loop. Exactly the field
// matching Kind is meaningful.
type Event struct {
	Kind    Kind
	Message MessageEvent
	Typing  TypingEvent
	Err     error
}

// Decode parses one inbound payload into an Event. Unknown frame types yield
// ErrUnknownType and malformed JSON yields ErrMalformedFrame; both are
// discarded by callers rather than surfaced.
func Decode(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch f.Type {
	case TypeMessage:
		return Event{Kind: KindMessage, Message: MessageEvent{
			Text:       f.Text,
			SenderName: f.SenderName,
			SentAt:     ParseTimestamp(f.SentAt),
			ClientID:   f.ClientID,
		}}, nil
	case TypeTyping:
		return Event{Kind: KindTyping, Typing: TypingEvent{
			UserID:   f.UserID,
			IsTyping: f.IsTyping != nil && *f.IsTyping,
		}}, nil
	case TypeRead:
		return Event{Kind: KindRead}, nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

// ParseTimestamp accepts the server's ISO-8601 timestamps. An absent or
// unparseable value becomes the zero time; display falls back to local time.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
