package events

import (
	"testing"
	"time"
)

// collectTransport records everything sent to it.
type collectTransport struct {
	ch chan Record
}

func newCollectTransport() *collectTransport {
	return &collectTransport{ch: make(chan Record, 64)}
}

func (t *collectTransport) Send(rec Record) { t.ch <- rec }

func (t *collectTransport) wait(tb testing.TB) Record {
	tb.Helper()
	select {
	case rec := <-t.ch:
		return rec
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for transport record")
		return Record{}
	}
}

func TestBridgeForwardsAllEvents(t *testing.T) {
	bus := NewBus()
	tr := newCollectTransport()
	br := NewBridge(bus, tr, 16)
	br.Start()
	defer br.Stop()

	e := New(SubtaskStart, "executor", map[string]any{"subtask_id": "a"})
	e.StepID = "step-1"
	bus.Publish(e)

	rec := tr.wait(t)
	if rec.Type != "subtask.start" {
		t.Errorf("record type = %q, want subtask.start", rec.Type)
	}
	if rec.StepID != "step-1" {
		t.Errorf("step_id not hoisted: %q", rec.StepID)
	}
	if rec.Payload["subtask_id"] != "a" {
		t.Errorf("payload lost: %v", rec.Payload)
	}
}

func TestBridgeDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus()
	// Transport that never drains: the bridge buffer fills up and the
	// publisher must still return promptly.
	blocked := make(chan struct{})
	br := NewBridge(bus, transportFunc(func(Record) { <-blocked }), 1)
	br.Start()
	defer func() { close(blocked); br.Stop() }()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(New(StepEnd, "runner", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked by a stuck transport")
	}
	if br.Dropped() == 0 {
		t.Error("expected dropped events with a stuck transport")
	}
}

func TestBridgeDegradedWithoutTransport(t *testing.T) {
	bus := NewBus()
	br := NewBridge(bus, nil, 4)
	br.Start()
	defer br.Stop()

	// Best-effort: events are dropped, publisher continues.
	bus.Publish(New(TaskCompleted, "executor", nil))
	if br.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", br.Dropped())
	}
}

func TestBridgeSwallowsTransportPanic(t *testing.T) {
	bus := NewBus()
	got := make(chan string, 2)
	br := NewBridge(bus, transportFunc(func(rec Record) {
		if rec.Type == string(StepFailed) {
			panic("transport down")
		}
		got <- rec.Type
	}), 16)
	br.Start()
	defer br.Stop()

	bus.Publish(New(StepFailed, "runner", nil))
	bus.Publish(New(StepEnd, "runner", nil))

	select {
	case typ := <-got:
		if typ != string(StepEnd) {
			t.Errorf("unexpected record %q", typ)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge stopped delivering after a transport panic")
	}
}

func TestChannelTransportDropsWhenFull(t *testing.T) {
	tr := NewChannelTransport(1)
	tr.Send(Record{Type: "a"})
	tr.Send(Record{Type: "b"}) // dropped, not blocked

	rec := <-tr.Records()
	if rec.Type != "a" {
		t.Errorf("expected first record preserved, got %q", rec.Type)
	}
	select {
	case rec := <-tr.Records():
		t.Errorf("unexpected extra record %q", rec.Type)
	default:
	}
}

// transportFunc adapts a function to the Transport interface.
type transportFunc func(Record)

func (f transportFunc) Send(rec Record) { f(rec) }
