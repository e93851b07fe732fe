package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

type MockSessionGateway struct {
	mock.Mock
}

func (m *MockSessionGateway) RequestEntry(ctx context.Context, room domain.RoomInfo, password string) error {
	args := m.Called(ctx, room, password)
	return args.Error(0)
}

func (m *MockSessionGateway) RequestDisconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionGateway) AnnounceChannels(ctx context.Context, names []string) error {
	args := m.Called(ctx, names)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) ShowMessage(level domain.MessageLevel, title, text string) {
	m.Called(level, title, text)
}

func (m *MockNotifier) RequestPassword(room domain.RoomInfo) {
	m.Called(room)
}

type MockInputsPreparer struct {
	mock.Mock
}

func (m *MockInputsPreparer) PrepareInputs(ctx context.Context, cycle uint64, channels []domain.ChannelID) error {
	args := m.Called(ctx, cycle, channels)
	return args.Error(0)
}

type MockPluginScanner struct {
	mock.Mock
}

func (m *MockPluginScanner) StartScan(ctx context.Context, blacklist []string) error {
	args := m.Called(ctx, blacklist)
	return args.Error(0)
}

func (m *MockPluginScanner) Blacklist(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

type MockRoomStreamer struct {
	mock.Mock
}

func (m *MockRoomStreamer) Play(ctx context.Context, room domain.RoomInfo) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRoomStreamer) Stop() {
	m.Called()
}

type fakeRoomSession struct {
	room   domain.RoomInfo
	closed int
}

func (s *fakeRoomSession) Room() domain.RoomInfo { return s.room }

func (s *fakeRoomSession) Close() error {
	s.closed++
	return nil
}

type fakeHost struct {
	subchannels bool
	fullScreen  bool
	sessions    []*fakeRoomSession
}

func (h *fakeHost) Name() string { return "test" }

func (h *fakeHost) Capabilities(mode domain.ViewMode) domain.Capabilities {
	return domain.Capabilities{ViewMode: mode, SubchannelsSupported: h.subchannels, FullScreenSupported: h.fullScreen}
}

func (h *fakeHost) NewRoomSession(room domain.RoomInfo, _ []domain.ChannelID) (ports.RoomSession, error) {
	s := &fakeRoomSession{room: room}
	h.sessions = append(h.sessions, s)
	return s, nil
}

var (
	roomA = domain.RoomInfo{ID: 1, Name: "Room A", Host: "a.example.org", Port: 2049}
	roomB = domain.RoomInfo{ID: 2, Name: "Room B", Host: "b.example.org", Port: 2050}
	roomC = domain.RoomInfo{ID: 3, Name: "Room C", Host: "c.example.org", Port: 2051, PasswordProtected: true}
)

type fakePluginRepo struct {
	plugins   []domain.PluginDescriptor
	blacklist []string
	failAdd   error
}

func (r *fakePluginRepo) AddPlugin(_ context.Context, p domain.PluginDescriptor) error {
	r.plugins = append(r.plugins, p)
	return nil
}

func (r *fakePluginRepo) RemovePlugin(_ context.Context, path string) error {
	for i, p := range r.plugins {
		if p.Path == path {
			r.plugins = append(r.plugins[:i], r.plugins[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakePluginRepo) ListPlugins(context.Context) ([]domain.PluginDescriptor, error) {
	return append([]domain.PluginDescriptor(nil), r.plugins...), nil
}

func (r *fakePluginRepo) ClearPlugins(context.Context) error {
	r.plugins = nil
	return nil
}

func (r *fakePluginRepo) AddToBlacklist(_ context.Context, path string) error {
	if r.failAdd != nil {
		return r.failAdd
	}
	r.blacklist = append(r.blacklist, path)
	return nil
}

func (r *fakePluginRepo) IsBlacklisted(_ context.Context, path string) (bool, error) {
	for _, p := range r.blacklist {
		if p == path {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePluginRepo) Blacklist(context.Context) ([]string, error) {
	return append([]string(nil), r.blacklist...), nil
}

type fakeSettingsRepo struct {
	snapshot *domain.InputsSnapshot
	saves    int
}

func (r *fakeSettingsRepo) Save(_ context.Context, snapshot domain.InputsSnapshot) error {
	r.snapshot = &snapshot
	r.saves++
	return nil
}

func (r *fakeSettingsRepo) Load(context.Context) (domain.InputsSnapshot, error) {
	if r.snapshot == nil {
		return domain.InputsSnapshot{}, domain.ErrSnapshotNotFound
	}
	return *r.snapshot, nil
}

type recordingPublisher struct {
	events []*domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) count(t domain.EventType) int {
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) reset() {
	p.events = nil
}

// transmitMirror records the latest transmit state per channel.
type transmitMirror struct {
	state map[domain.ChannelID]bool
	calls int
}

func newTransmitMirror() *transmitMirror {
	return &transmitMirror{state: make(map[domain.ChannelID]bool)}
}

func (m *transmitMirror) TransmitChanged(id domain.ChannelID, transmitting bool) {
	m.state[id] = transmitting
	m.calls++
}
