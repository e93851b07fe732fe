package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

const (
	HostStandalone = "standalone"
	HostPlugin     = "plugin"
)

type hostVariant struct {
	name       string
	subchannel bool
	fullScreen bool
	logger     *zap.SugaredLogger
}

// NewHost returns the host variant named by the configuration. The
// standalone application supports subchannels and full-screen mode; the
// plugin running inside a DAW supports neither.
func NewHost(name string, logger *zap.SugaredLogger) (ports.HostVariant, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	switch name {
	case HostStandalone:
		return &hostVariant{name: name, subchannel: true, fullScreen: true, logger: logger}, nil
	case HostPlugin:
		return &hostVariant{name: name, logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown host variant %q", name)
}

func (h *hostVariant) Name() string {
	return h.name
}

func (h *hostVariant) Capabilities(mode domain.ViewMode) domain.Capabilities {
	return domain.Capabilities{
		ViewMode:             mode,
		SubchannelsSupported: h.subchannel,
		FullScreenSupported:  h.fullScreen,
	}
}

func (h *hostVariant) NewRoomSession(room domain.RoomInfo, channels []domain.ChannelID) (ports.RoomSession, error) {
	h.logger.Infow("Room session opened", "host", h.name, "room_id", room.ID, "channels", len(channels))
	return &roomSession{room: room, channels: append([]domain.ChannelID(nil), channels...), logger: h.logger}, nil
}

type roomSession struct {
	room     domain.RoomInfo
	channels []domain.ChannelID
	logger   *zap.SugaredLogger

	once sync.Once
}

func (s *roomSession) Room() domain.RoomInfo {
	return s.room
}

func (s *roomSession) Close() error {
	s.once.Do(func() {
		s.logger.Infow("Room session closed", "room_id", s.room.ID)
	})
	return nil
}
