package render

import "sync"

// Entry is one bubble in a Transcript. Safe for concurrent access.
type Entry struct {
	mu      sync.Mutex
	fields  Fields
	pending bool
}

// Fields returns the entry's current displayed content.
func (e *Entry) Fields() Fields {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fields
}

// Pending reports whether the entry still carries its pending marker.
func (e *Entry) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Transcript is an in-memory Renderer. It backs the package tests and is a
// usable surface for headless hosts that only need the final conversation
// state.
type Transcript struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewTranscript creates an empty Transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append implements Renderer.
func (t *Transcript) Append(f Fields, pending bool) Handle {
	e := &Entry{fields: f, pending: pending}
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	return e
}

// UpdateContent implements Renderer. Handles not produced by this Transcript
// are ignored.
func (t *Transcript) UpdateContent(h Handle, f Fields) {
	e, ok := h.(*Entry)
	if !ok {
		return
	}
	e.mu.Lock()
	e.fields = f
	e.mu.Unlock()
}

// MarkConfirmed implements Renderer.
func (t *Transcript) MarkConfirmed(h Handle) {
	e, ok := h.(*Entry)
	if !ok {
		return
	}
	e.mu.Lock()
	e.pending = false
	e.mu.Unlock()
}

// Len returns the number of bubbles appended so far.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a snapshot of the transcript in append order.
func (t *Transcript) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
