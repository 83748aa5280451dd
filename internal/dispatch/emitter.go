package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Event describes one finished dispatch.
type Event struct {
	CallID         string    `json:"callId"`
	Tool           string    `json:"tool"`
	Family         string    `json:"family,omitempty"`
	Success        bool      `json:"success"`
	ErrorKind      string    `json:"errorKind,omitempty"`
	DurationMs     int64     `json:"durationMs"`
	AgentSessionID string    `json:"agentSessionId,omitempty"`
	TerminalID     string    `json:"terminalId,omitempty"`
	Files          []string  `json:"files,omitempty"`
	CreatedFiles   []string  `json:"createdFiles,omitempty"`
	At             time.Time `json:"at"`
}

// Observer receives dispatch events. Observers run on the emitter's
// goroutine, never on the dispatch path.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Emitter fans events out to observers. Emit never blocks: when the buffer
// is full the event is dropped and counted.
type Emitter struct {
	ch        chan Event
	observers []Observer
	dropped   atomic.Int64
}

func NewEmitter(buffer int, observers ...Observer) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Emitter{ch: make(chan Event, buffer), observers: observers}
}

// Emit queues ev and reports whether it was accepted.
func (e *Emitter) Emit(ev Event) bool {
	if e == nil {
		return false
	}
	select {
	case e.ch <- ev:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Run delivers events until ctx is cancelled. Queued events are flushed
// before it returns.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-e.ch:
			e.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-e.ch:
					e.deliver(ev)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (e *Emitter) deliver(ev Event) {
	for _, o := range e.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("Dispatch observer panicked", "tool", ev.Tool, "panic", r)
				}
			}()
			o.Observe(ev)
		}()
	}
}
