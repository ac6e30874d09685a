// Package events defines the events lending programs emit and the sinks that
// receive them.
package events

// Event is anything an emitter can carry. EventType names the payload.
type Event interface {
	EventType() string
}

// Emitter receives events synchronously on the emitting goroutine.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }
