// Package messaging tracks locally-sent messages between their optimistic
// render and the server's confirmation.
//
// A message sent over the streaming channel is rendered immediately in a
// pending state, keyed by a client-generated correlation id. When the server
// echoes the message back carrying the same id, the Registry reconciles the
// optimistic bubble in place with the authoritative values. This is how the
// client tells "my own message, now confirmed" apart from "a new message from
// the peer" under a self-send/self-receive echo architecture.
package messaging

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatwire/render"
)

// ErrDuplicateID indicates a correlation id that is already in flight.
// A fresh id must be generated per send attempt.
var ErrDuplicateID = errors.New("correlation id already registered")

// Message is one confirmed or optimistic chat message.
type Message struct {
	Text       string
	SenderName string
	SentAt     time.Time
	// ClientID is the correlation id of a locally-originated message.
	// Empty for messages from other participants.
	ClientID string
}

// Fields converts the message to its displayable form.
func (m Message) Fields() render.Fields {
	return render.Fields{Text: m.Text, SenderName: m.SenderName, SentAt: m.SentAt}
}

// NewClientID generates a fresh correlation id. Ids are unique per send
// attempt; the registry never sees the same id in flight twice.
func NewClientID() string {
	return uuid.NewString()
}

// Registry owns the pending entries awaiting server confirmation. It is the
// only component that mutates them; other components refer to entries by
// correlation id alone.
type Registry struct {
	renderer render.Renderer

	mu      sync.Mutex
	entries map[string]render.Handle
}

// NewRegistry creates a Registry that reconciles entries on the given
// renderer.
func NewRegistry(r render.Renderer) *Registry {
	return &Registry{
		renderer: r,
		entries:  make(map[string]render.Handle),
	}
}

// Register stores the pending bubble for a correlation id. Registering an id
// that is already in flight returns ErrDuplicateID and leaves the existing
// entry untouched.
func (r *Registry) Register(clientID string, h render.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[clientID]; exists {
		return ErrDuplicateID
	}
	r.entries[clientID] = h

	logrus.WithFields(logrus.Fields{
		"client_id": clientID,
		"pending":   len(r.entries),
	}).Debug("Registered pending message")
	return nil
}

// Resolve reconciles the pending bubble for a correlation id with the
// server-confirmed message: the entry is removed, its pending marker cleared
// and its displayed fields overwritten with the authoritative values.
//
// Resolving an unknown id is a no-op returning false, which makes duplicate
// or late acknowledgments harmless.
func (r *Registry) Resolve(clientID string, msg Message) bool {
	r.mu.Lock()
	h, exists := r.entries[clientID]
	if exists {
		delete(r.entries, clientID)
	}
	r.mu.Unlock()

	if !exists {
		logrus.WithField("client_id", clientID).Debug("Ignoring ack for unknown correlation id")
		return false
	}

	r.renderer.UpdateContent(h, msg.Fields())
	r.renderer.MarkConfirmed(h)

	logrus.WithFields(logrus.Fields{
		"client_id": clientID,
		"sender":    msg.SenderName,
	}).Debug("Reconciled pending message")
	return true
}

// Len returns the number of entries still awaiting confirmation.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
