package events

import (
	"log"
	"sync/atomic"
	"time"
)

// Record is the flattened, transport-ready form of an event. The type
// is a plain string and step_id is hoisted to the top level for
// consumers that index on it.
type Record struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id,omitempty"`
	StepID    string         `json:"step_id,omitempty"`
}

// Transport delivers records to remote observers. Send must be safe to
// call from any goroutine and should not block for long; the bridge's
// pump goroutine is the only caller.
type Transport interface {
	Send(Record)
}

// Bridge forwards every event published on a Bus to a Transport without
// blocking the publisher. Delivery is best-effort: if the bridge's
// buffer stays full, events are dropped and counted, never propagated
// as pipeline failures.
type Bridge struct {
	bus       *Bus
	transport Transport
	buf       chan Record
	done      chan struct{}
	started   atomic.Bool
	dropped   atomic.Uint64
}

// NewBridge creates a bridge for the given bus and transport.
// A nil transport puts the bridge in degraded mode: events are dropped
// with a warning until a real transport is supplied before Start.
func NewBridge(bus *Bus, transport Transport, bufferSize int) *Bridge {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bridge{
		bus:       bus,
		transport: transport,
		buf:       make(chan Record, bufferSize),
		done:      make(chan struct{}),
	}
}

// Start subscribes the bridge to all bus events and starts the delivery
// goroutine. Calling Start more than once is a no-op.
func (b *Bridge) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	if b.transport == nil {
		log.Printf("[events] bridge started without a transport; events will be dropped")
	} else {
		go b.pump()
	}
	b.bus.SubscribeAll(b.handle)
}

// Stop shuts down the delivery goroutine. Events published after Stop
// are dropped.
func (b *Bridge) Stop() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// Dropped returns how many events could not be delivered.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// handle runs on the publisher's goroutine. It must never block the
// publisher: enqueue with a short grace period, then drop.
func (b *Bridge) handle(e Event) {
	if b.transport == nil {
		b.drop(e)
		return
	}

	rec := Serialize(e)

	select {
	case b.buf <- rec:
		return
	default:
	}

	// Buffer full: give the pump a moment to drain before dropping.
	select {
	case b.buf <- rec:
	case <-time.After(100 * time.Millisecond):
		b.drop(e)
	case <-b.done:
		b.drop(e)
	}
}

func (b *Bridge) drop(e Event) {
	count := b.dropped.Add(1)
	if count%10 == 1 { // log every 10th drop to avoid spam
		log.Printf("[events] bridge dropped event (total dropped: %d): type=%s", count, e.Type)
	}
}

// pump delivers buffered records to the transport, one at a time.
// A transport panic is logged and swallowed; delivery is best-effort.
func (b *Bridge) pump() {
	for {
		select {
		case rec := <-b.buf:
			b.send(rec)
		case <-b.done:
			// Drain whatever is already buffered, then exit.
			for {
				select {
				case rec := <-b.buf:
					b.send(rec)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) send(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[events] transport failed for %s: %v", rec.Type, r)
		}
	}()
	b.transport.Send(rec)
}

// Serialize flattens an event into its transport record.
func Serialize(e Event) Record {
	return Record{
		Type:      string(e.Type),
		Source:    e.Source,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
		RunID:     e.RunID,
		StepID:    e.StepID,
	}
}

// ChannelTransport delivers records on a buffered channel. It is the
// default transport for in-process observers such as the TUI.
type ChannelTransport struct {
	ch chan Record
}

// NewChannelTransport creates a channel transport with the given buffer.
func NewChannelTransport(bufferSize int) *ChannelTransport {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelTransport{ch: make(chan Record, bufferSize)}
}

// Send enqueues the record, dropping it if the consumer is not keeping up.
func (t *ChannelTransport) Send(rec Record) {
	select {
	case t.ch <- rec:
	default:
	}
}

// Records returns the receive side of the transport.
func (t *ChannelTransport) Records() <-chan Record {
	return t.ch
}
