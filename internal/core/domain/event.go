package domain

import "time"

type EventType string

const (
	EventGroupsChanged     EventType = "groups.changed"
	EventHighlightChanged  EventType = "groups.highlight"
	EventTransmitChanged   EventType = "transmit.changed"
	EventPreparingChanged  EventType = "transmit.preparing"
	EventRoomStateChanged  EventType = "room.state"
	EventRoomListChanged   EventType = "room.list"
	EventPasswordRequired  EventType = "room.password_required"
	EventViewModeChanged   EventType = "view.mode"
	EventScanProgress      EventType = "plugins.progress"
	EventPluginFound       EventType = "plugins.found"
	EventScanFinished      EventType = "plugins.finished"
	EventMessage           EventType = "message"
	EventRoomStreamChanged EventType = "room.stream"
)

// Event is the change notification delivered to presentation observers.
type Event struct {
	Type      EventType      `json:"type"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	RoomID    RoomID         `json:"room_id,omitempty"`
	ChannelID ChannelID      `json:"channel_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent stamps the event with the current time.
func NewEvent(t EventType, payload map[string]any) *Event {
	return &Event{Type: t, Timestamp: time.Now(), Payload: payload}
}

type MessageLevel string

const (
	MessageInfo    MessageLevel = "info"
	MessageWarning MessageLevel = "warning"
	MessageError   MessageLevel = "error"
)
