// Package diag correlates advisor requests with their HTTP calls and keeps a
// bounded, redacted trail of lifecycle events for debugging intermittent
// provider issues. Everything here is best-effort: no method blocks, errors,
// or panics into the primary request path.
package diag

import (
	"sync"
	"time"

	"github.com/finwell/finwell-backend/internal/domain"
)

// reservationMaxAge bounds how long a reserved request id stays claimable.
const reservationMaxAge = 30 * time.Second

// Event is one recorded lifecycle event.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Seq       uint64         `json:"seq"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type reservation struct {
	requestID  string
	month      domain.Month
	language   domain.Language
	regenerate bool
	createdAt  time.Time
}

// Correlator matches reserved request ids to outgoing HTTP calls and records
// events into a fixed-capacity ring buffer.
type Correlator struct {
	mu           sync.Mutex
	reservations []reservation
	ring         []Event
	capacity     int
	start        int // index of the oldest event
	size         int
	seq          uint64
	now          func() time.Time
}

// New creates a Correlator with the given ring-buffer capacity.
func New(capacity int) *Correlator {
	if capacity <= 0 {
		capacity = 128
	}
	return &Correlator{
		ring:     make([]Event, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// NewWithClock creates a Correlator with an injected clock, for tests.
func NewWithClock(capacity int, now func() time.Time) *Correlator {
	c := New(capacity)
	c.now = now
	return c
}

// Reserve binds a request id to the action that is about to fire a network
// call, so the call's instrumentation can recover the id later.
func (c *Correlator) Reserve(requestID string, month domain.Month, language domain.Language, regenerate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	c.reservations = append(c.reservations, reservation{
		requestID:  requestID,
		month:      month,
		language:   language,
		regenerate: regenerate,
		createdAt:  c.now(),
	})
}

// Consume claims the oldest live reservation matching the call parameters.
// First match wins and is removed. Returns false when nothing matches; the
// caller synthesizes a fresh id in that case.
func (c *Correlator) Consume(month domain.Month, language domain.Language, regenerate bool) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	for i, r := range c.reservations {
		if r.month == month && r.language == language && r.regenerate == regenerate {
			c.reservations = append(c.reservations[:i], c.reservations[i+1:]...)
			return r.requestID, true
		}
	}
	return "", false
}

// pruneLocked drops reservations past their max age, consumed or not.
func (c *Correlator) pruneLocked() {
	cutoff := c.now().Add(-reservationMaxAge)
	live := c.reservations[:0]
	for _, r := range c.reservations {
		if r.createdAt.After(cutoff) {
			live = append(live, r)
		}
	}
	c.reservations = live
}

// Record redacts the payload and appends an event, evicting the oldest entry
// when the buffer is full.
func (c *Correlator) Record(event string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	e := Event{
		Timestamp: c.now(),
		Seq:       c.seq,
		Event:     event,
		Payload:   RedactMap(payload),
	}

	if c.size < c.capacity {
		c.ring[(c.start+c.size)%c.capacity] = e
		c.size++
		return
	}
	c.ring[c.start] = e
	c.start = (c.start + 1) % c.capacity
}

// Events returns a copy of the buffered events, oldest first.
func (c *Correlator) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, 0, c.size)
	for i := 0; i < c.size; i++ {
		out = append(out, c.ring[(c.start+i)%c.capacity])
	}
	return out
}

// Pending returns the number of live reservations. For tests and health info.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	return len(c.reservations)
}
