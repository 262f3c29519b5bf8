package telemetry

import (
	"sync"
	"time"
)

// Kind classifies a telemetry line.
type Kind string

const (
	KindWeight Kind = "weight"
	KindEvent  Kind = "event"
	KindStatus Kind = "status"
)

// Kinds lists every kind, for subscribers that want the full stream.
func Kinds() []Kind {
	return []Kind{KindWeight, KindEvent, KindStatus}
}

// Message is one telemetry line as it went out on the wire, without the
// trailing newline.
type Message struct {
	Kind Kind
	Line string
	At   time.Time
}

// Subscriber receives published messages on a dedicated goroutine.
type Subscriber func(Message)

// Bus fans telemetry lines out to in-process subscribers. The serial port
// is written directly by the emitter; the bus only mirrors the stream for
// observers such as socket watchers, so publishing never blocks and slow
// subscribers drop messages rather than stall the tick loop.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]chan Message
	bufferSize  int
	closed      bool
}

// NewBus creates a bus whose subscriber channels buffer bufferSize
// messages. Zero or negative selects the default of 100.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[Kind][]chan Message),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one message kind and returns an unsubscribe
// function. fn runs on its own goroutine; a panicking subscriber is
// dropped without taking the bus down.
func (b *Bus) Subscribe(kind Kind, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	ch := make(chan Message, b.bufferSize)
	b.subscribers[kind] = append(b.subscribers[kind], ch)

	go func() {
		defer func() {
			recover()
		}()
		for msg := range ch {
			fn(msg)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[kind]
		for i, c := range subs {
			if c == ch {
				b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// Publish delivers msg to every subscriber of its kind. Full subscriber
// buffers drop the message.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[msg.Kind] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close shuts the bus down and closes all subscriber channels. Publish
// and Subscribe become no-ops afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for kind, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, kind)
	}
}
