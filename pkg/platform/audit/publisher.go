package audit

import (
	"context"
	"log/slog"
)

// Publisher emits audit events from domain logic. Implementations must not
// block the caller; audit emission never gates a decision.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists audit events. Append is append-only; events are never
// updated or deleted inside the accounting window.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// ChannelPublisher buffers events into an inbox channel drained by a Worker.
// When the buffer is full the event is dropped and logged rather than
// blocking the decision path.
type ChannelPublisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewChannelPublisher creates a publisher with the given buffer size and
// returns it together with the inbox to hand to a Worker.
func NewChannelPublisher(buffer int, logger *slog.Logger) (*ChannelPublisher, <-chan Event) {
	p := &ChannelPublisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
	return p, p.inbox
}

func (p *ChannelPublisher) Emit(ctx context.Context, event Event) error {
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit inbox full, dropping event",
				"action", event.Action,
				"category", event.Category,
			)
		}
		return nil
	}
}

// NopPublisher discards events. Useful as a default when callers opt out of
// audit wiring.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
