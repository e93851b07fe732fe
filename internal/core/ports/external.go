package ports

import (
	"context"
	"time"

	"jamlink/internal/core/domain"
)

// SessionGateway is the network session layer. Implementations report
// results asynchronously (serverAccepts, serverRejects, disconnected ...)
// and must marshal them onto the control thread before calling back.
type SessionGateway interface {
	RequestEntry(ctx context.Context, room domain.RoomInfo, password string) error
	RequestDisconnect(ctx context.Context) error
	AnnounceChannels(ctx context.Context, names []string) error
}

type PluginScanner interface {
	StartScan(ctx context.Context, blacklist []string) error
	Blacklist(path string) error
}

// InputsPreparer reconfigures audio inputs for a new room topology and
// signals completion through the client's InputsReady callback, echoing the
// cycle it was started with.
type InputsPreparer interface {
	PrepareInputs(ctx context.Context, cycle uint64, channels []domain.ChannelID) error
}

// RoomStreamer plays the public preview stream of a room.
type RoomStreamer interface {
	Play(ctx context.Context, room domain.RoomInfo) error
	Stop()
}

type Notifier interface {
	ShowMessage(level domain.MessageLevel, title, text string)
	RequestPassword(room domain.RoomInfo)
}

// RoomSession is whatever the host builds to present an entered room.
type RoomSession interface {
	Room() domain.RoomInfo
	Close() error
}

// HostVariant abstracts the differences between hosting environments
// (standalone application, plugin inside a DAW).
type HostVariant interface {
	Name() string
	Capabilities(mode domain.ViewMode) domain.Capabilities
	NewRoomSession(room domain.RoomInfo, channels []domain.ChannelID) (RoomSession, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// TransmitObserver is told about every observable transmit change on the
// control thread, before the change is published.
type TransmitObserver interface {
	TransmitChanged(id domain.ChannelID, transmitting bool)
}

type MetricsRecorder interface {
	RecordTransition(from, to domain.RoomState)
	RecordEntryOutcome(outcome string)
	SetGroupCount(groups, channels int)
	SetPreparing(preparing bool)
	SetTransmitting(count int)
	RecordScan(duration time.Duration, found int, clean bool)
}
