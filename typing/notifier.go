// Package typing converts raw input activity into rate-limited typing
// signals.
//
// The first keystroke after a quiet stretch emits "typing started"
// immediately, keeping latency low. Every keystroke restarts the quiet-period
// timer, and "typing stopped" fires once when input has been quiet for the
// whole period, regardless of how many keystrokes occurred before it.
package typing

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultQuietPeriod is how long input must stay idle before the stopped
// signal fires.
const DefaultQuietPeriod = 700 * time.Millisecond

// SendFunc delivers a typing signal. true means typing started, false means
// typing stopped.
type SendFunc func(isTyping bool)

// Notifier debounces input activity into started/stopped signals.
type Notifier struct {
	quiet time.Duration
	send  SendFunc
	tp    TimeProvider
	log   *logrus.Entry

	mu     sync.Mutex
	active bool
	timer  *time.Timer
	gen    uint64
}

// NewNotifier creates a Notifier delivering signals through send. A
// non-positive quiet duration falls back to DefaultQuietPeriod and a nil
// TimeProvider falls back to real time.
func NewNotifier(quiet time.Duration, send SendFunc, tp TimeProvider) *Notifier {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &Notifier{
		quiet: quiet,
		send:  send,
		tp:    tp,
		log:   logrus.WithField("component", "typing"),
	}
}

// Touch records one raw input event. The started signal is emitted only on
// the idle-to-typing edge; within a typing stretch, Touch just pushes the
// stop timer out. Last writer wins: each call cancels any pending stop.
func (n *Notifier) Touch() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	started := !n.active
	n.active = true
	n.gen++
	gen := n.gen
	n.timer = n.tp.AfterFunc(n.quiet, func() { n.expire(gen) })
	n.mu.Unlock()

	if started {
		n.log.WithField("quiet", n.quiet).Debug("Typing started")
		n.send(true)
	}
}

// expire fires when the quiet period elapses with no further Touch. A timer
// superseded by a later Touch is ignored even if it was already firing when
// it was stopped.
func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	if gen != n.gen || !n.active {
		n.mu.Unlock()
		return
	}
	n.active = false
	n.timer = nil
	n.mu.Unlock()

	n.log.Debug("Typing stopped")
	n.send(false)
}

// Close cancels any pending stop signal without emitting it.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
	n.active = false
}
