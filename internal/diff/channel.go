package diff

import (
	"errors"
	"sync"
)

// ErrChannelClosed is returned by Send once the receiving end has been closed.
var ErrChannelClosed = errors.New("diff: receiver closed")

// Event is a single change to a feed: Added is true when Key appeared since the
// previous snapshot and false when it disappeared.
type Event[K comparable] struct {
	Key   K
	Added bool
}

// RecvStatus is the outcome of a non-blocking receive.
type RecvStatus int

const (
	// Received means an event was returned.
	Received RecvStatus = iota
	// Empty means nothing is pending right now.
	Empty
	// Disconnected means the sender is gone and every event has been consumed.
	Disconnected
)

func (s RecvStatus) String() string {
	switch s {
	case Received:
		return "received"
	case Empty:
		return "empty"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// pipe is the buffer shared by one Sender and one Receiver.
type pipe[K comparable] struct {
	mu             sync.Mutex
	buf            []Event[K]
	senderClosed   bool
	receiverClosed bool
}

// Sender is the producing half of an event channel.
type Sender[K comparable] struct {
	p *pipe[K]
}

// Receiver is the consuming half of an event channel.
type Receiver[K comparable] struct {
	p *pipe[K]
}

// NewChannel creates an unbounded FIFO event channel. Sends never block; the
// buffer grows until the receiver drains it.
func NewChannel[K comparable]() (*Sender[K], *Receiver[K]) {
	p := &pipe[K]{}
	return &Sender[K]{p: p}, &Receiver[K]{p: p}
}

// Send queues an event. It fails only when the receiver has been closed.
func (s *Sender[K]) Send(ev Event[K]) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	if s.p.receiverClosed {
		return ErrChannelClosed
	}
	s.p.buf = append(s.p.buf, ev)
	return nil
}

// Close marks the producer as permanently gone. Events already queued are
// still delivered before the receiver reports Disconnected.
func (s *Sender[K]) Close() {
	s.p.mu.Lock()
	s.p.senderClosed = true
	s.p.mu.Unlock()
}

// TryRecv returns the oldest pending event without blocking.
func (r *Receiver[K]) TryRecv() (Event[K], RecvStatus) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if len(r.p.buf) == 0 {
		if r.p.senderClosed {
			return Event[K]{}, Disconnected
		}
		return Event[K]{}, Empty
	}

	ev := r.p.buf[0]
	var zero Event[K]
	r.p.buf[0] = zero
	r.p.buf = r.p.buf[1:]
	if len(r.p.buf) == 0 {
		// Let the backing array go once drained
		r.p.buf = nil
	}
	return ev, Received
}

// Len returns the number of pending events.
func (r *Receiver[K]) Len() int {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	return len(r.p.buf)
}

// Close drops the consuming end. Pending events are discarded and later sends
// fail with ErrChannelClosed.
func (r *Receiver[K]) Close() {
	r.p.mu.Lock()
	r.p.receiverClosed = true
	r.p.buf = nil
	r.p.mu.Unlock()
}

// Drain applies every pending event in order and returns without blocking once
// the channel is empty. It returns false when the producer has disconnected;
// the caller should then drop its handle and stop draining it. A nil receiver
// is treated as already retired.
func Drain[K comparable](rx *Receiver[K], apply func(Event[K])) bool {
	if rx == nil {
		return false
	}
	for {
		ev, status := rx.TryRecv()
		switch status {
		case Received:
			apply(ev)
		case Empty:
			return true
		default:
			return false
		}
	}
}
