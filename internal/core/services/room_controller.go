package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
	"jamlink/pkg/tracing"
)

type RoomControllerDeps struct {
	Gateway          ports.SessionGateway
	Registry         *ChannelRegistry
	Gate             *TransmissionGate
	Preparer         ports.InputsPreparer
	Notifier         ports.Notifier
	Host             ports.HostVariant
	Metrics          ports.MetricsRecorder
	Logger           *zap.SugaredLogger
	DefaultGroupName string
}

// RoomController serializes room transitions. At most one jump is queued;
// a newer request replaces it. All methods must run on the control thread.
type RoomController struct {
	gateway   ports.SessionGateway
	registry  *ChannelRegistry
	gate      *TransmissionGate
	preparer  ports.InputsPreparer
	notifier  ports.Notifier
	host      ports.HostVariant
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger
	groupName string

	state   domain.RoomState
	room    *domain.RoomInfo
	queued  *domain.RoomTransitionRequest
	session ports.RoomSession

	exitNormal    bool
	awaitingCycle uint64
}

// NewRoomController starts idle.
func NewRoomController(deps RoomControllerDeps) *RoomController {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetricsService()
	}
	return &RoomController{
		gateway:   deps.Gateway,
		registry:  deps.Registry,
		gate:      deps.Gate,
		preparer:  deps.Preparer,
		notifier:  deps.Notifier,
		host:      deps.Host,
		metrics:   metrics,
		logger:    logger,
		groupName: deps.DefaultGroupName,
		state:     domain.RoomIdle,
	}
}

func (c *RoomController) State() domain.RoomState {
	return c.state
}

// InFlight is true while a join or leave is awaiting the session layer.
func (c *RoomController) InFlight() bool {
	return c.state == domain.RoomAwaitingEntry || c.state == domain.RoomDisconnecting
}

// CurrentRoom is the room being joined, occupied or left.
func (c *RoomController) CurrentRoom() *domain.RoomInfo {
	if c.room == nil {
		return nil
	}
	room := *c.room
	return &room
}

// QueuedJump is the room to join once the current transition ends.
func (c *RoomController) QueuedJump() *domain.RoomTransitionRequest {
	if c.queued == nil {
		return nil
	}
	req := *c.queued
	return &req
}

// Session is the host session of the occupied room, or nil.
func (c *RoomController) Session() ports.RoomSession {
	return c.session
}

// TryEnter asks to join room. From a room it leaves first and queues the
// jump; while a transition is in flight it replaces the queued jump.
func (c *RoomController) TryEnter(ctx context.Context, room domain.RoomInfo, password string) error {
	ctx, span := tracing.TraceTransition(ctx, "try_enter", int64(room.ID), room.Name)
	defer func() {
		span.SetAttributes(tracing.ToStateKey.String(c.state.String()))
		span.End()
	}()
	tracing.AddSpanAttributes(ctx, tracing.FromStateKey.String(c.state.String()))

	req := domain.RoomTransitionRequest{Room: room, Password: password}

	switch c.state {
	case domain.RoomIdle:
		return c.beginEntry(ctx, req)

	case domain.RoomAwaitingEntry:
		if c.room.SameRoom(room) {
			c.logger.Debugw("Already joining room", "room_id", room.ID)
			return nil
		}
		c.queue(req)
		return nil

	case domain.RoomInRoom:
		if c.room.SameRoom(room) {
			c.logger.Debugw("Already in room", "room_id", room.ID)
			return nil
		}
		c.queue(req)
		return c.beginDisconnect(ctx, true)

	case domain.RoomDisconnecting:
		c.queue(req)
		return nil
	}
	return nil
}

// ServerAccepts completes a join. Local groups survive the room change; the
// gate stays closed until the inputs are ready.
func (c *RoomController) ServerAccepts(ctx context.Context) {
	if c.state != domain.RoomAwaitingEntry {
		c.logger.Warnw("Ignoring entry confirmation", "state", c.state)
		return
	}

	room := *c.room
	c.setState(domain.RoomInRoom)
	c.metrics.RecordEntryOutcome("accepted")
	c.logger.Infow("Entered room", "room_id", room.ID, "room", room.Name)

	if c.host != nil {
		session, err := c.host.NewRoomSession(room, c.registry.ChannelIDs())
		if err != nil {
			c.logger.Errorw("Failed to create room session", "room_id", room.ID, "host", c.host.Name(), "error", err)
		}
		c.session = session
	}

	if c.queued != nil {
		// a different room was requested while joining this one
		if err := c.beginDisconnect(ctx, true); err != nil {
			c.logger.Warnw("Failed to leave room for queued jump", "room_id", room.ID, "error", err)
		}
		return
	}

	c.registry.EnsureDefaultGroup(c.groupName)
	c.RefreshInputs(ctx)
}

// RefreshInputs re-announces the local channels and restarts input
// preparation. It is a no-op outside a room.
func (c *RoomController) RefreshInputs(ctx context.Context) {
	if c.state != domain.RoomInRoom {
		return
	}

	c.AnnounceChannels(ctx)

	c.gate.SetPreparing(true)
	c.awaitingCycle = c.gate.Cycle()
	c.metrics.SetPreparing(true)

	if c.preparer == nil {
		c.finishPreparing()
		return
	}
	if err := c.preparer.PrepareInputs(ctx, c.awaitingCycle, c.registry.ChannelIDs()); err != nil {
		c.logger.Warnw("Inputs preparation failed, reopening gate", "cycle", c.awaitingCycle, "error", err)
		c.finishPreparing()
	}
}

// AnnounceChannels sends the local channel names to the server while in a room.
func (c *RoomController) AnnounceChannels(ctx context.Context) {
	if c.state != domain.RoomInRoom {
		return
	}
	if err := c.gateway.AnnounceChannels(ctx, c.registry.ChannelNames()); err != nil {
		c.logger.Warnw("Failed to announce channels", "error", err)
	}
}

// InputsReady reopens the gate if cycle is the current preparation round and
// returns the channels that started transmitting.
func (c *RoomController) InputsReady(_ context.Context, cycle uint64) []domain.ChannelID {
	if !c.gate.IsPreparing() || cycle != c.awaitingCycle {
		c.logger.Debugw("Ignoring stale inputs-ready", "cycle", cycle, "current", c.awaitingCycle)
		return nil
	}
	return c.finishPreparing()
}

// ServerRejects ends a join attempt. A wrong password surfaces a retry prompt;
// nothing is retried automatically.
func (c *RoomController) ServerRejects(ctx context.Context, reason domain.RejectReason, message string) *domain.ServerRejection {
	if c.state != domain.RoomAwaitingEntry {
		c.logger.Warnw("Ignoring entry rejection", "state", c.state, "reason", reason)
		return nil
	}

	rejection := &domain.ServerRejection{Room: *c.room, Reason: reason, Message: message}
	c.room = nil
	c.setState(domain.RoomIdle)
	c.metrics.RecordEntryOutcome(reason.String())
	c.logger.Warnw("Room entry rejected", "room_id", rejection.Room.ID, "reason", reason, "message", message)

	switch reason {
	case domain.RejectWrongPassword:
		c.notifier.RequestPassword(rejection.Room)
	case domain.RejectIncompatible:
		c.notifier.ShowMessage(domain.MessageError, "Incompatible server",
			fmt.Sprintf("Room %q uses an incompatible protocol. Please update jamlink.", rejection.Room.Name))
	default:
		c.notifier.ShowMessage(domain.MessageError, "Connection rejected", rejection.Error())
	}

	c.consumeQueue(ctx)
	return rejection
}

// IncompatibleProtocol is a rejection that is never retried.
func (c *RoomController) IncompatibleProtocol(ctx context.Context) *domain.ServerRejection {
	return c.ServerRejects(ctx, domain.RejectIncompatible, "incompatible protocol version")
}

// Disconnected completes a leave, or reports a lost connection. After an
// abnormal disconnection the queued jump is discarded. How the exit was
// requested only tags the log.
func (c *RoomController) Disconnected(ctx context.Context, normal bool) {
	if c.state == domain.RoomIdle {
		c.logger.Debugw("Ignoring disconnection while idle", "normal", normal)
		return
	}

	requested := c.state == domain.RoomDisconnecting
	exitNormal := !requested || c.exitNormal
	room := *c.room

	c.closeSession()
	c.cancelPreparing()
	c.room = nil
	c.exitNormal = false
	c.setState(domain.RoomIdle)

	if !normal {
		if c.queued != nil {
			c.logger.Warnw("Discarding queued jump after abnormal disconnection",
				"room_id", room.ID, "queued_room_id", c.queued.Room.ID)
			c.queued = nil
		}
		disconnection := &domain.AbnormalDisconnection{Room: room}
		c.logger.Warnw("Disconnected abnormally", "room_id", room.ID, "room", room.Name)
		c.notifier.ShowMessage(domain.MessageWarning, "Disconnected", disconnection.Error())
		return
	}

	c.logger.Infow("Left room", "room_id", room.ID, "room", room.Name, "requested", requested, "exit_normal", exitNormal)
	if !exitNormal {
		disconnection := &domain.AbnormalDisconnection{Room: room}
		c.notifier.ShowMessage(domain.MessageWarning, "Disconnected", disconnection.Error())
	}
	c.consumeQueue(ctx)
}

// ExitFromRoom leaves the current room or abandons a join. An explicit exit
// also drops any queued jump.
func (c *RoomController) ExitFromRoom(ctx context.Context, normal bool) error {
	switch c.state {
	case domain.RoomIdle:
		return domain.ErrNotInRoom
	case domain.RoomDisconnecting:
		c.queued = nil
		c.exitNormal = c.exitNormal && normal
		return nil
	}

	c.queued = nil
	return c.beginDisconnect(ctx, normal)
}

// Close drops the queued jump and leaves any room.
func (c *RoomController) Close(ctx context.Context) error {
	c.queued = nil
	if c.state == domain.RoomInRoom || c.state == domain.RoomAwaitingEntry {
		return c.beginDisconnect(ctx, true)
	}
	return nil
}

func (c *RoomController) beginEntry(ctx context.Context, req domain.RoomTransitionRequest) error {
	room := req.Room
	c.room = &room
	c.setState(domain.RoomAwaitingEntry)
	c.logger.Infow("Requesting room entry", "room_id", room.ID, "room", room.Name, "endpoint", room.Endpoint())

	if err := c.gateway.RequestEntry(ctx, room, req.Password); err != nil {
		c.room = nil
		c.setState(domain.RoomIdle)
		c.metrics.RecordEntryOutcome("request_failed")
		c.logger.Errorw("Room entry request failed", "room_id", room.ID, "error", err)
		tracing.RecordError(ctx, err)
		return fmt.Errorf("request entry to room %d: %w", room.ID, err)
	}
	return nil
}

func (c *RoomController) beginDisconnect(ctx context.Context, normal bool) error {
	room := *c.room
	c.exitNormal = normal
	c.setState(domain.RoomDisconnecting)
	c.closeSession()
	c.cancelPreparing()
	c.logger.Infow("Leaving room", "room_id", room.ID, "normal", normal)

	if err := c.gateway.RequestDisconnect(ctx); err != nil {
		c.logger.Warnw("Disconnect request failed, treating as lost connection", "room_id", room.ID, "error", err)
		c.Disconnected(ctx, false)
		return fmt.Errorf("request disconnect from room %d: %w", room.ID, err)
	}
	return nil
}

func (c *RoomController) queue(req domain.RoomTransitionRequest) {
	if c.queued != nil {
		c.logger.Infow("Replacing queued jump", "from_room_id", c.queued.Room.ID, "to_room_id", req.Room.ID)
	} else {
		c.logger.Infow("Queued jump", "room_id", req.Room.ID, "state", c.state)
	}
	c.queued = &req
}

func (c *RoomController) consumeQueue(ctx context.Context) {
	if c.queued == nil {
		return
	}
	req := *c.queued
	c.queued = nil
	c.logger.Infow("Consuming queued jump", "room_id", req.Room.ID)

	if err := c.beginEntry(ctx, req); err != nil {
		c.notifier.ShowMessage(domain.MessageError, "Connection failed", err.Error())
	}
}

func (c *RoomController) finishPreparing() []domain.ChannelID {
	started := c.gate.SetPreparing(false)
	c.metrics.SetPreparing(false)
	return started
}

// cancelPreparing abandons the current round without releasing deferred
// starts; they wait for the next ready cycle.
func (c *RoomController) cancelPreparing() {
	if c.gate.IsPreparing() {
		c.gate.Cancel()
		c.metrics.SetPreparing(false)
	}
	c.awaitingCycle = 0
}

func (c *RoomController) closeSession() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.logger.Warnw("Failed to close room session", "error", err)
	}
	c.session = nil
}

func (c *RoomController) setState(to domain.RoomState) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.metrics.RecordTransition(from, to)
	c.logger.Debugw("Room state changed", "from", from, "to", to)
}
