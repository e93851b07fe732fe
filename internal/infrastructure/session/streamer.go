package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
)

// PreviewStreamer tracks the room stream being previewed. Unplayable stream
// addresses are reported through the error callback, as a player would.
type PreviewStreamer struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	cb      StreamCallbacks
	playing *domain.RoomInfo
}

func NewPreviewStreamer(logger *zap.SugaredLogger) *PreviewStreamer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PreviewStreamer{logger: logger}
}

func (s *PreviewStreamer) Bind(cb StreamCallbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// Play replaces any preview already playing.
func (s *PreviewStreamer) Play(_ context.Context, room domain.RoomInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	playing := room
	s.playing = &playing
	if err := checkStreamURL(room.StreamURL); err != nil {
		s.playing = nil
		if cb := s.cb; cb != nil {
			go cb.OnRoomStreamError(context.Background(), err.Error())
		}
		return nil
	}
	s.logger.Infow("Playing room stream", "room_id", room.ID, "url", room.StreamURL)
	return nil
}

func (s *PreviewStreamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing != nil {
		s.logger.Infow("Room stream stopped", "room_id", s.playing.ID)
	}
	s.playing = nil
}

// Playing returns the room whose stream is playing, if any.
func (s *PreviewStreamer) Playing() (domain.RoomInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing == nil {
		return domain.RoomInfo{}, false
	}
	return *s.playing, true
}

func checkStreamURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("room has no public stream")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid stream address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported stream scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("stream address has no host")
	}
	return nil
}
