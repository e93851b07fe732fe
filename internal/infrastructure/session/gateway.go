package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
)

// DemoRooms is the directory the loopback gateway publishes by default.
func DemoRooms() []domain.RoomInfo {
	return []domain.RoomInfo{
		{ID: 1, Name: "Blues Jam", Host: "ninbot.com", Port: 2049, MaxUsers: 8, Bpi: 16, Bpm: 90,
			Users: []string{"leon", "mika"}, StreamURL: "http://ninbot.com:8000/2049"},
		{ID: 2, Name: "Funk Lab", Host: "ninbot.com", Port: 2050, MaxUsers: 8, Bpi: 16, Bpm: 110,
			Users: []string{"zed", "ana", "tom"}, StreamURL: "http://ninbot.com:8000/2050"},
		{ID: 3, Name: "Late Night", Host: "jam.example.org", Port: 2049, MaxUsers: 4, Bpi: 32, Bpm: 80,
			PasswordProtected: true},
		{ID: 4, Name: "Empty Stage", Host: "jam.example.org", Port: 2051, MaxUsers: 6, Bpi: 8, Bpm: 120},
	}
}

type GatewayConfig struct {
	Latency time.Duration
	Rooms   []domain.RoomInfo
	// Passwords maps a room endpoint (host:port) to its password.
	Passwords map[string]string
	// IncompatibleHosts answer every entry with a protocol mismatch.
	IncompatibleHosts []string
}

// LoopbackGateway emulates a room server. Entry requests are answered after
// the configured latency; an answer that arrives after the request was
// withdrawn is dropped.
type LoopbackGateway struct {
	cfg    GatewayConfig
	logger *zap.SugaredLogger

	mu        sync.Mutex
	cb        GatewayCallbacks
	rooms     []domain.RoomInfo
	room      *domain.RoomInfo
	announced []string
	gen       uint64
	timer     *time.Timer
	beatStop  chan struct{}
}

// NewLoopbackGateway answers requests locally after cfg.Latency.
func NewLoopbackGateway(cfg GatewayConfig, logger *zap.SugaredLogger) *LoopbackGateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	rooms := cfg.Rooms
	if rooms == nil {
		rooms = DemoRooms()
	}
	return &LoopbackGateway{cfg: cfg, logger: logger, rooms: rooms}
}

// Bind sets the receiver of server callbacks. It must be called before the
// first request.
func (g *LoopbackGateway) Bind(cb GatewayCallbacks) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cb = cb
}

// RefreshRooms publishes the current directory.
func (g *LoopbackGateway) RefreshRooms() {
	g.mu.Lock()
	rooms := make([]domain.RoomInfo, len(g.rooms))
	copy(rooms, g.rooms)
	cb := g.cb
	g.mu.Unlock()

	if cb != nil {
		cb.OnRoomList(context.Background(), rooms)
	}
}

// RunDirectory refreshes the room list every interval until ctx is done.
func (g *LoopbackGateway) RunDirectory(ctx context.Context, interval time.Duration) {
	g.RefreshRooms()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.RefreshRooms()
		}
	}
}

func (g *LoopbackGateway) RequestEntry(_ context.Context, room domain.RoomInfo, password string) error {
	if room.Host == "" || room.Port <= 0 {
		return fmt.Errorf("invalid room endpoint %q: %w", room.Endpoint(), domain.ErrInvalidArgument)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopBeatLocked()
	g.room = nil
	gen := g.nextGenLocked()

	g.logger.Infow("Entry requested", "room_id", room.ID, "endpoint", room.Endpoint())
	g.timer = time.AfterFunc(g.cfg.Latency, func() { g.answerEntry(gen, room, password) })
	return nil
}

func (g *LoopbackGateway) answerEntry(gen uint64, room domain.RoomInfo, password string) {
	g.mu.Lock()
	if gen != g.gen || g.cb == nil {
		g.mu.Unlock()
		return
	}
	cb := g.cb

	for _, host := range g.cfg.IncompatibleHosts {
		if host == room.Host {
			g.mu.Unlock()
			cb.OnServerRejects(context.Background(), domain.RejectIncompatible, "server protocol version mismatch")
			return
		}
	}
	if want, ok := g.cfg.Passwords[room.Endpoint()]; ok && want != password {
		g.mu.Unlock()
		cb.OnServerRejects(context.Background(), domain.RejectWrongPassword, "invalid password")
		return
	}
	if room.MaxUsers > 0 && room.UserCount() >= room.MaxUsers {
		g.mu.Unlock()
		cb.OnServerRejects(context.Background(), domain.RejectOther, "room is full")
		return
	}

	entered := room
	g.room = &entered
	stop := make(chan struct{})
	g.beatStop = stop
	g.mu.Unlock()

	ctx := context.Background()
	cb.OnServerAccepts(ctx)
	if room.Bpi > 0 {
		cb.OnBpi(ctx, room.Bpi)
	}
	if room.Bpm > 0 {
		cb.OnBpm(ctx, room.Bpm)
		go g.runBeats(cb, room.Bpi, room.Bpm, stop)
	}
}

func (g *LoopbackGateway) runBeats(cb GatewayCallbacks, bpi, bpm int, stop <-chan struct{}) {
	if bpi <= 0 {
		bpi = 16
	}
	ticker := time.NewTicker(time.Minute / time.Duration(bpm))
	defer ticker.Stop()

	beat := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			beat = (beat + 1) % bpi
			cb.OnIntervalBeat(context.Background(), beat)
		}
	}
}

// RequestDisconnect withdraws a pending entry or leaves the current room;
// the normal disconnection is reported after the configured latency.
func (g *LoopbackGateway) RequestDisconnect(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopBeatLocked()
	if g.room != nil {
		g.logger.Infow("Leaving room", "room_id", g.room.ID)
	}
	g.room = nil
	gen := g.nextGenLocked()

	g.timer = time.AfterFunc(g.cfg.Latency, func() {
		g.mu.Lock()
		cb := g.cb
		current := gen == g.gen
		g.mu.Unlock()
		if current && cb != nil {
			cb.OnDisconnected(context.Background(), true)
		}
	})
	return nil
}

// Drop simulates losing the connection to the server.
func (g *LoopbackGateway) Drop() {
	g.mu.Lock()
	g.stopBeatLocked()
	g.room = nil
	g.nextGenLocked()
	cb := g.cb
	g.mu.Unlock()

	if cb != nil {
		cb.OnDisconnected(context.Background(), false)
	}
}

// AnnounceChannels records the names; the loopback server has no peers.
func (g *LoopbackGateway) AnnounceChannels(_ context.Context, names []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.room == nil {
		return domain.ErrNotInRoom
	}
	g.announced = append(g.announced[:0], names...)
	g.logger.Debugw("Channels announced", "room_id", g.room.ID, "channels", names)
	return nil
}

// Announced returns the channel names last sent to the server.
func (g *LoopbackGateway) Announced() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.announced...)
}

// Close cancels pending answers and stops beat reporting.
func (g *LoopbackGateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopBeatLocked()
	g.nextGenLocked()
}

func (g *LoopbackGateway) nextGenLocked() uint64 {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	return g.gen
}

func (g *LoopbackGateway) stopBeatLocked() {
	if g.beatStop != nil {
		close(g.beatStop)
		g.beatStop = nil
	}
}
