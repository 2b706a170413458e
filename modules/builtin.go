package modules

import (
	"github.com/hollowreach/wakegate/internal/eventbus"
)

// named wraps a plain eventbus.Sink with a name/description so it can
// be registered in the Registry.
type named struct {
	eventbus.Sink
	name string
	desc string
}

func (n named) Name() string        { return n.name }
func (n named) Description() string { return n.desc }

// NamedSubscriber adapts any eventbus.Sink into a Subscriber.
func NamedSubscriber(name, description string, sink eventbus.Sink) Subscriber {
	return named{Sink: sink, name: name, desc: description}
}

// LogSubscriber is the always-available operator-log subscriber.
func LogSubscriber() Subscriber {
	return NamedSubscriber("log", "writes every event through the structured logger", eventbus.LogSink{})
}

// WebSocketSubscriber wraps a WebSocketSink for registration.
func WebSocketSubscriber(sink *eventbus.WebSocketSink) Subscriber {
	return NamedSubscriber("websocket", "fans out events to connected operator tooling over a websocket", sink)
}
