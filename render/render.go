// Package render defines the presentation boundary for a conversation view.
//
// The protocol layer never touches a real display. It speaks to a Renderer,
// which hands back opaque handles for later mutation, so reconciliation logic
// can be tested against an in-memory Transcript and production hosts can plug
// in whatever surface they paint to.
package render

import "time"

// Fields holds the displayable content of one message bubble.
type Fields struct {
	Text       string
	SenderName string
	SentAt     time.Time
}

// Handle is an opaque reference to one rendered message, returned by Append
// and accepted by the mutation methods. Hosts define the concrete type.
type Handle any

// Renderer is the capability set the conversation engine needs from a
// presentation surface. Implementations must tolerate calls from multiple
// goroutines.
type Renderer interface {
	// Append adds a new bubble, optionally marked pending, and returns a
	// handle for later mutation.
	Append(f Fields, pending bool) Handle

	// UpdateContent overwrites the displayed fields of an existing bubble.
	UpdateContent(h Handle, f Fields)

	// MarkConfirmed clears the pending marker of an existing bubble.
	MarkConfirmed(h Handle)
}
