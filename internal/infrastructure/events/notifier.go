package events

import (
	"context"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

// Notifier turns user-facing messages and password prompts into events for
// whatever presentation is attached.
type Notifier struct {
	publisher ports.EventPublisher
	logger    *zap.SugaredLogger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier turns user-facing messages into events.
func NewNotifier(publisher ports.EventPublisher, logger *zap.SugaredLogger) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Notifier{publisher: publisher, logger: logger}
}

func (n *Notifier) ShowMessage(level domain.MessageLevel, title, text string) {
	n.logger.Infow("User message", "level", level, "title", title, "text", text)
	n.publish(domain.NewEvent(domain.EventMessage, map[string]any{
		"level": level,
		"title": title,
		"text":  text,
	}))
}

// RequestPassword asks the UI to prompt for the room password.
func (n *Notifier) RequestPassword(room domain.RoomInfo) {
	event := domain.NewEvent(domain.EventPasswordRequired, map[string]any{
		"room": room,
	})
	event.RoomID = room.ID
	n.publish(event)
}

func (n *Notifier) publish(event *domain.Event) {
	event.Source = "notifier"
	if err := n.publisher.Publish(context.Background(), event); err != nil {
		n.logger.Warnw("Failed to publish notification", "type", event.Type, "error", err)
	}
}
