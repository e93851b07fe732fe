package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
	"jamlink/pkg/cache"
	"jamlink/pkg/dispatch"
	"jamlink/pkg/validation"
)

type JamClientDeps struct {
	Dispatcher *dispatch.Dispatcher

	Gateway   ports.SessionGateway
	Preparer  ports.InputsPreparer
	Scanner   ports.PluginScanner
	Streamer  ports.RoomStreamer
	Notifier  ports.Notifier
	Host      ports.HostVariant
	Settings  ports.SettingsRepository
	Plugins   ports.PluginRepository
	Publisher ports.EventPublisher
	Transmit  ports.TransmitObserver
	Metrics   ports.MetricsRecorder
	Logger    *zap.SugaredLogger

	DefaultGroupName     string
	ViewMode             domain.ViewMode
	SubchannelsSupported bool
	RoomListTTL          time.Duration
}

// JamClient is the only mutation surface offered to presentation layers.
// Every call is marshaled onto the dispatcher's control goroutine; without a
// dispatcher calls run inline and the caller must serialize them.
type JamClient struct {
	dispatcher *dispatch.Dispatcher

	registry   *ChannelRegistry
	gate       *TransmissionGate
	controller *RoomController
	scan       *PluginScanService

	streamer  ports.RoomStreamer
	notifier  ports.Notifier
	host      ports.HostVariant
	settings  ports.SettingsRepository
	publisher ports.EventPublisher
	transmit  ports.TransmitObserver
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger

	defaultGroupName     string
	subchannelsSupported bool
	viewMode             domain.ViewMode

	rooms     *cache.Cache[domain.RoomID, domain.RoomInfo]
	previewed *domain.RoomInfo
	bpi       int
	bpm       int
	beat      int
}

var _ ports.ControlService = (*JamClient)(nil)

// NewJamClient wires the registry, gate, room controller and plugin scan
// service. Start must be called before use.
func NewJamClient(deps JamClientDeps) *JamClient {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetricsService()
	}
	host := deps.Host
	if host == nil {
		host = defaultHost{}
	}

	c := &JamClient{
		dispatcher:           deps.Dispatcher,
		streamer:             deps.Streamer,
		notifier:             deps.Notifier,
		host:                 host,
		settings:             deps.Settings,
		publisher:            deps.Publisher,
		transmit:             deps.Transmit,
		metrics:              metrics,
		logger:               logger,
		defaultGroupName:     deps.DefaultGroupName,
		subchannelsSupported: deps.SubchannelsSupported,
		viewMode:             deps.ViewMode,
		rooms:                cache.New[domain.RoomID, domain.RoomInfo](deps.RoomListTTL),
	}

	c.gate = NewTransmissionGate(logger.Named("gate"))
	c.registry = NewChannelRegistry(c.capabilities, c.gate, logger.Named("registry"))
	c.controller = NewRoomController(RoomControllerDeps{
		Gateway:          deps.Gateway,
		Registry:         c.registry,
		Gate:             c.gate,
		Preparer:         deps.Preparer,
		Notifier:         deps.Notifier,
		Host:             host,
		Metrics:          metrics,
		Logger:           logger.Named("rooms"),
		DefaultGroupName: deps.DefaultGroupName,
	})
	c.scan = NewPluginScanService(deps.Scanner, deps.Plugins, deps.Notifier, metrics, logger.Named("plugins"))
	return c
}

// Start restores saved inputs and plugins. A missing or unreadable snapshot
// leaves one default group.
func (c *JamClient) Start(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		snapshot, err := c.settings.Load(ctx)
		switch {
		case errors.Is(err, domain.ErrSnapshotNotFound):
			c.logger.Infow("No saved inputs, creating default group", "name", c.defaultGroupName)
		case err != nil:
			c.logger.Warnw("Failed to load saved inputs, creating default group", "error", err)
		default:
			c.registry.Restore(snapshot)
		}
		c.registry.EnsureDefaultGroup(c.defaultGroupName)

		if err := c.scan.Restore(ctx); err != nil {
			c.logger.Warnw("Failed to restore plugins", "error", err)
		}
		return nil
	})
}

// Close leaves any room, stops a preview and persists the inputs.
func (c *JamClient) Close(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		c.stopPreview()
		err := c.controller.Close(ctx)
		c.persist(ctx)
		return err
	})
}

// RestoreInputs replaces the local groups with a saved snapshot and returns
// how many groups were restored.
func (c *JamClient) RestoreInputs(ctx context.Context, snapshot domain.InputsSnapshot) (int, error) {
	var restored int
	err := c.mutateRegistry(ctx, func(ctx context.Context) error {
		restored = c.registry.Restore(snapshot)
		c.registry.EnsureDefaultGroup(c.defaultGroupName)
		c.controller.RefreshInputs(ctx)
		return nil
	})
	return restored, err
}

// Groups returns copies; mutating them has no effect.
func (c *JamClient) Groups() []domain.ChannelGroup {
	return query(c, c.registry.Groups)
}

func (c *JamClient) GroupCount() int {
	return query(c, c.registry.GroupCount)
}

// GroupName fails with ErrIndexOutOfRange for an unknown index.
func (c *JamClient) GroupName(index int) (string, error) {
	var name string
	err := c.do(context.Background(), func(context.Context) error {
		n, err := c.registry.GroupName(index)
		name = n
		return err
	})
	return name, err
}

func (c *JamClient) ChannelNames() []string {
	return query(c, c.registry.ChannelNames)
}

// IsTransmitting is false while inputs are being prepared.
func (c *JamClient) IsTransmitting(id domain.ChannelID) bool {
	return query(c, func() bool { return c.gate.IsTransmitting(id) })
}

func (c *JamClient) Status() domain.SessionStatus {
	return query(c, c.status)
}

// Rooms lists the cached public rooms, busiest first.
func (c *JamClient) Rooms() []domain.RoomInfo {
	return query(c, c.sortedRooms)
}

func (c *JamClient) Plugins() []domain.PluginDescriptor {
	return query(c, c.scan.Plugins)
}

// Capabilities combines the host variant with the subchannel setting.
func (c *JamClient) Capabilities() domain.Capabilities {
	return query(c, c.capabilities)
}

// Snapshot is what gets persisted after every structural change.
func (c *JamClient) Snapshot() domain.InputsSnapshot {
	return query(c, c.registry.Snapshot)
}

// AddGroup is rejected with ErrTransitionInFlight while joining or leaving a room.
func (c *JamClient) AddGroup(ctx context.Context, name string) (domain.GroupHandle, error) {
	var handle domain.GroupHandle
	err := c.mutateRegistry(ctx, func(ctx context.Context) error {
		h, err := c.registry.AddGroup(name)
		if err != nil {
			return err
		}
		handle = h
		c.controller.RefreshInputs(ctx)
		return nil
	})
	return handle, err
}

// RemoveGroup shifts later groups down and re-announces the channels when in a room.
func (c *JamClient) RemoveGroup(ctx context.Context, index int) error {
	return c.mutateRegistry(ctx, func(ctx context.Context) error {
		if err := c.registry.RemoveGroup(index); err != nil {
			return err
		}
		c.controller.RefreshInputs(ctx)
		return nil
	})
}

func (c *JamClient) RenameGroup(ctx context.Context, index int, name string) error {
	return c.mutateRegistry(ctx, func(ctx context.Context) error {
		if err := c.registry.RenameGroup(index, name); err != nil {
			return err
		}
		c.controller.AnnounceChannels(ctx)
		return nil
	})
}

// ResetGroup restores a group to one subchannel with no input. An unknown
// index is ignored. Like every structural change it returns
// ErrTransitionInFlight while a room transition is pending.
func (c *JamClient) ResetGroup(ctx context.Context, index int) error {
	return c.mutateRegistry(ctx, func(ctx context.Context) error {
		before := c.registry.Version()
		c.registry.ResetGroup(index)
		if c.registry.Version() != before {
			c.controller.RefreshInputs(ctx)
		}
		return nil
	})
}

// AddSubchannel fails with ErrCapabilityDenied when the host or view mode
// does not allow subchannels.
func (c *JamClient) AddSubchannel(ctx context.Context, groupIndex int, createAsPrimaryIfEmpty bool) (domain.ChannelID, error) {
	var id domain.ChannelID
	err := c.mutateRegistry(ctx, func(ctx context.Context) error {
		added, err := c.registry.AddSubchannel(groupIndex, createAsPrimaryIfEmpty)
		if err != nil {
			return err
		}
		id = added
		c.controller.RefreshInputs(ctx)
		return nil
	})
	return id, err
}

func (c *JamClient) RemoveSubchannel(ctx context.Context, id domain.ChannelID) error {
	return c.mutateRegistry(ctx, func(ctx context.Context) error {
		if err := c.registry.RemoveSubchannel(id); err != nil {
			return err
		}
		c.controller.RefreshInputs(ctx)
		return nil
	})
}

func (c *JamClient) SetInput(ctx context.Context, id domain.ChannelID, input domain.InputSelection) error {
	return c.mutateRegistry(ctx, func(ctx context.Context) error {
		before := c.registry.Version()
		if err := c.registry.SetInput(id, input); err != nil {
			return err
		}
		if c.registry.Version() != before {
			c.controller.RefreshInputs(ctx)
		}
		return nil
	})
}

// HighlightGroup only changes presentation state, so it is allowed during
// transitions.
func (c *JamClient) HighlightGroup(ctx context.Context, index int) error {
	return c.mutate(ctx, func(context.Context) error {
		return c.registry.HighlightGroup(index)
	})
}

// SetTransmitting toggles transmission of an existing channel. While inputs
// are preparing a start request is deferred.
func (c *JamClient) SetTransmitting(ctx context.Context, id domain.ChannelID, transmitting bool) error {
	return c.mutate(ctx, func(context.Context) error {
		if _, ok := c.registry.Channel(id); !ok {
			return fmt.Errorf("channel %d: %w", id, domain.ErrChannelNotFound)
		}
		if !c.gate.SetTransmitting(id, transmitting) && transmitting && c.gate.IsPreparing() {
			c.logger.Debugw("Transmit request deferred until inputs are ready", "channel_id", id)
		}
		return nil
	})
}

// EnterRoom joins a room from the last listing. A request made while another
// transition is in flight is queued and replaces any earlier queued one.
func (c *JamClient) EnterRoom(ctx context.Context, id domain.RoomID, password string) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		room, ok := c.rooms.Get(id)
		if !ok {
			return fmt.Errorf("room %d: %w", id, domain.ErrRoomNotFound)
		}
		if err := validation.ValidateRoomPassword(password); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		c.stopPreview()
		return c.controller.TryEnter(ctx, room, password)
	})
}

// ConnectPrivateServer joins an unlisted server by address.
func (c *JamClient) ConnectPrivateServer(ctx context.Context, host string, port int, password string) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		if err := validation.ValidateEndpoint(host, port); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		if err := validation.ValidateRoomPassword(password); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}

		room := domain.RoomInfo{
			ID:                PrivateRoomID(host, port),
			Name:              net.JoinHostPort(host, strconv.Itoa(port)),
			Host:              host,
			Port:              port,
			PasswordProtected: password != "",
		}
		c.stopPreview()
		return c.controller.TryEnter(ctx, room, password)
	})
}

// ExitFromRoom leaves the room and drops any queued jump.
func (c *JamClient) ExitFromRoom(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		return c.controller.ExitFromRoom(ctx, true)
	})
}

// PlayRoomStream starts the public preview of a listed room. Previews are
// only available outside rooms.
func (c *JamClient) PlayRoomStream(ctx context.Context, id domain.RoomID) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		room, ok := c.rooms.Get(id)
		if !ok {
			return fmt.Errorf("room %d: %w", id, domain.ErrRoomNotFound)
		}
		if c.controller.State() != domain.RoomIdle {
			return fmt.Errorf("room preview while connected: %w", domain.ErrCapabilityDenied)
		}
		if err := validation.ValidateStreamURL(room.StreamURL); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}

		c.stopPreview()
		if err := c.streamer.Play(ctx, room); err != nil {
			c.notifier.ShowMessage(domain.MessageError, "Room stream", err.Error())
			return fmt.Errorf("failed to play room stream: %w", err)
		}
		c.previewed = &room
		return nil
	})
}

func (c *JamClient) StopRoomStream(ctx context.Context) {
	_ = c.mutate(ctx, func(context.Context) error {
		c.stopPreview()
		return nil
	})
}

// SetViewMode refuses full-screen on hosts without it.
func (c *JamClient) SetViewMode(ctx context.Context, mode domain.ViewMode) error {
	return c.mutate(ctx, func(context.Context) error {
		if mode == domain.ViewFullScreen && !c.host.Capabilities(mode).FullScreenSupported {
			return fmt.Errorf("full-screen on %s host: %w", c.host.Name(), domain.ErrCapabilityDenied)
		}
		c.viewMode = mode
		return nil
	})
}

// StartScan fails with ErrScanInProgress while a scan runs.
func (c *JamClient) StartScan(ctx context.Context) error {
	return c.mutate(ctx, c.scan.StartScan)
}

// BlacklistPlugin excludes path from future scans.
func (c *JamClient) BlacklistPlugin(ctx context.Context, path string) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		return c.scan.Blacklist(ctx, path)
	})
}

// PrivateRoomID derives a stable negative id for a server that is not in
// the public directory.
func PrivateRoomID(host string, port int) domain.RoomID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(net.JoinHostPort(host, strconv.Itoa(port))))
	return domain.RoomID(-int64(h.Sum64()>>1) - 1)
}

// defaultHost stands in when no host variant is configured. Everything is
// supported and rooms open no host session.
type defaultHost struct{}

func (defaultHost) Name() string { return "default" }

func (defaultHost) Capabilities(mode domain.ViewMode) domain.Capabilities {
	return domain.Capabilities{ViewMode: mode, SubchannelsSupported: true, FullScreenSupported: true}
}

func (defaultHost) NewRoomSession(domain.RoomInfo, []domain.ChannelID) (ports.RoomSession, error) {
	return nil, nil
}

func (c *JamClient) capabilities() domain.Capabilities {
	caps := c.host.Capabilities(c.viewMode)
	caps.SubchannelsSupported = caps.SubchannelsSupported && c.subchannelsSupported
	return caps
}

func (c *JamClient) status() domain.SessionStatus {
	return domain.SessionStatus{
		State:     c.controller.State(),
		Room:      c.controller.CurrentRoom(),
		Queued:    c.controller.QueuedJump(),
		Preparing: c.gate.IsPreparing(),
		Previewed: c.previewedRoom(),
		Bpi:       c.bpi,
		Bpm:       c.bpm,
		Beat:      c.beat,
	}
}

func (c *JamClient) previewedRoom() *domain.RoomInfo {
	if c.previewed == nil {
		return nil
	}
	room := *c.previewed
	return &room
}

// sortedRooms orders rooms by user count, busiest first, then by name and id.
func (c *JamClient) sortedRooms() []domain.RoomInfo {
	rooms := c.rooms.Values()
	sort.Slice(rooms, func(i, j int) bool {
		a, b := rooms[i], rooms[j]
		if a.UserCount() != b.UserCount() {
			return a.UserCount() > b.UserCount()
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return rooms
}

func (c *JamClient) stopPreview() {
	if c.previewed == nil {
		return
	}
	c.streamer.Stop()
	c.previewed = nil
}

func (c *JamClient) persist(ctx context.Context) {
	if c.settings == nil {
		return
	}
	if err := c.settings.Save(ctx, c.registry.Snapshot()); err != nil {
		c.logger.Warnw("Failed to save inputs", "error", err)
	}
}

// do runs fn on the control goroutine.
func (c *JamClient) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.dispatcher == nil {
		return fn(ctx)
	}
	return c.dispatcher.Do(ctx, fn)
}

// mutate runs fn on the control goroutine and publishes what it changed.
func (c *JamClient) mutate(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.do(ctx, func(ctx context.Context) error {
		before := c.observe()
		err := fn(ctx)
		c.emit(ctx, before)
		return err
	})
}

// mutateRegistry rejects registry changes while a room transition is in
// flight; only the transition's own completion may touch the registry then.
func (c *JamClient) mutateRegistry(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		if c.controller.InFlight() {
			return fmt.Errorf("%s: %w", c.controller.State(), domain.ErrTransitionInFlight)
		}
		return fn(ctx)
	})
}

func query[T any](c *JamClient, fn func() T) T {
	if c.dispatcher == nil {
		return fn()
	}
	v, err := dispatch.Call(context.Background(), c.dispatcher, func(context.Context) (T, error) {
		return fn(), nil
	})
	if err != nil {
		c.logger.Debugw("Query dropped", "error", err)
	}
	return v
}
