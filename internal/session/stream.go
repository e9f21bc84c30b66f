package session

import (
	"context"
	"sync"
	"time"
)

// doneGrace bounds how long the terminal event waits for a consumer that
// canceled its context but may still be reading.
const doneGrace = time.Second

// Stream is the finite, non-restartable event sequence of one generation.
// Events is closed after the single terminal event.
type Stream struct {
	ID     string
	events chan StreamEvent
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan StreamEvent { return s.events }

// Collect drains the stream and returns every event, Done last.
func (s *Stream) Collect() []StreamEvent {
	var out []StreamEvent
	for ev := range s.events {
		out = append(out, ev)
	}
	return out
}

// Wait drains the stream, calling onPartial for each partial, and returns the
// terminal event.
func (s *Stream) Wait(onPartial func(string)) StreamEvent {
	var done StreamEvent
	for ev := range s.events {
		if ev.IsDone() {
			done = ev
			continue
		}
		if onPartial != nil {
			onPartial(ev.Text)
		}
	}
	return done
}

// eventQueue decouples the engine callback goroutine from the consumer:
// push never blocks, a pump goroutine delivers in FIFO order.
type eventQueue struct {
	mu     sync.Mutex
	items  []StreamEvent
	closed bool
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev StreamEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
}

// closeWith appends the terminal event and seals the queue.
func (q *eventQueue) closeWith(ev StreamEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pump delivers queued events to out until the queue is sealed and empty.
// Once ctx is done partials are discarded and only the terminal event is
// offered, for at most doneGrace.
func (q *eventQueue) pump(ctx context.Context, out chan<- StreamEvent) {
	defer close(out)
	abandoned := false
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		sealed := q.closed
		q.mu.Unlock()

		for _, ev := range batch {
			if abandoned {
				if ev.IsDone() {
					t := time.NewTimer(doneGrace)
					select {
					case out <- ev:
					case <-t.C:
					}
					t.Stop()
				}
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				abandoned = true
				if ev.IsDone() {
					select {
					case out <- ev:
					case <-time.After(doneGrace):
					}
				}
			}
		}
		if sealed {
			q.mu.Lock()
			empty := len(q.items) == 0
			q.mu.Unlock()
			if empty {
				return
			}
			continue
		}
		<-q.notify
	}
}
