package ports

import (
	"context"

	"jamlink/internal/core/domain"
)

// ControlService is the surface exposed to presentation layers: read-only
// queries plus the only mutating operations on local channels and rooms.
type ControlService interface {
	Groups() []domain.ChannelGroup
	GroupCount() int
	GroupName(index int) (string, error)
	ChannelNames() []string
	IsTransmitting(id domain.ChannelID) bool
	Status() domain.SessionStatus
	Rooms() []domain.RoomInfo
	Plugins() []domain.PluginDescriptor
	Capabilities() domain.Capabilities
	Snapshot() domain.InputsSnapshot

	AddGroup(ctx context.Context, name string) (domain.GroupHandle, error)
	RemoveGroup(ctx context.Context, index int) error
	RenameGroup(ctx context.Context, index int, name string) error
	ResetGroup(ctx context.Context, index int) error
	AddSubchannel(ctx context.Context, groupIndex int, createAsPrimaryIfEmpty bool) (domain.ChannelID, error)
	RemoveSubchannel(ctx context.Context, id domain.ChannelID) error
	SetInput(ctx context.Context, id domain.ChannelID, input domain.InputSelection) error
	HighlightGroup(ctx context.Context, index int) error
	SetTransmitting(ctx context.Context, id domain.ChannelID, transmitting bool) error
	RestoreInputs(ctx context.Context, snapshot domain.InputsSnapshot) (int, error)

	EnterRoom(ctx context.Context, id domain.RoomID, password string) error
	ConnectPrivateServer(ctx context.Context, host string, port int, password string) error
	ExitFromRoom(ctx context.Context) error
	PlayRoomStream(ctx context.Context, id domain.RoomID) error
	StopRoomStream(ctx context.Context)

	SetViewMode(ctx context.Context, mode domain.ViewMode) error

	StartScan(ctx context.Context) error
	BlacklistPlugin(ctx context.Context, path string) error
}
