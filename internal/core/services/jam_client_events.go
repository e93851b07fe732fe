package services

import (
	"context"

	"jamlink/internal/core/domain"
)

// clientView is what observers can see; emit diffs two of them.
type clientView struct {
	version      uint64
	highlighted  int
	transmitting map[domain.ChannelID]bool
	preparing    bool
	state        domain.RoomState
	roomID       domain.RoomID
	queuedID     domain.RoomID
	hasQueued    bool
	viewMode     domain.ViewMode
	previewID    domain.RoomID
	previewing   bool
	bpi, bpm     int
}

func (c *JamClient) observe() clientView {
	v := clientView{
		version:      c.registry.Version(),
		highlighted:  c.registry.Highlighted(),
		transmitting: make(map[domain.ChannelID]bool),
		preparing:    c.gate.IsPreparing(),
		state:        c.controller.State(),
		viewMode:     c.viewMode,
		bpi:          c.bpi,
		bpm:          c.bpm,
	}
	for _, id := range c.gate.TransmittingChannels() {
		v.transmitting[id] = true
	}
	if room := c.controller.CurrentRoom(); room != nil {
		v.roomID = room.ID
	}
	if q := c.controller.QueuedJump(); q != nil {
		v.queuedID, v.hasQueued = q.Room.ID, true
	}
	if c.previewed != nil {
		v.previewID, v.previewing = c.previewed.ID, true
	}
	return v
}

func (c *JamClient) emit(ctx context.Context, before clientView) {
	after := c.observe()

	if after.version != before.version {
		groups := c.registry.Groups()
		c.publish(ctx, domain.EventGroupsChanged, map[string]any{"groups": groups})
		c.metrics.SetGroupCount(len(groups), len(c.registry.ChannelIDs()))
		c.persist(ctx)
	}
	if after.highlighted != before.highlighted {
		c.publish(ctx, domain.EventHighlightChanged, map[string]any{"index": after.highlighted})
	}

	changed := false
	for id := range before.transmitting {
		if !after.transmitting[id] {
			c.publishChannel(ctx, id, false)
			changed = true
		}
	}
	for _, id := range c.gate.TransmittingChannels() {
		if !before.transmitting[id] {
			c.publishChannel(ctx, id, true)
			changed = true
		}
	}
	if changed {
		c.metrics.SetTransmitting(len(after.transmitting))
	}

	if after.preparing != before.preparing {
		c.publish(ctx, domain.EventPreparingChanged, map[string]any{"preparing": after.preparing})
	}
	if after.state != before.state || after.roomID != before.roomID ||
		after.queuedID != before.queuedID || after.hasQueued != before.hasQueued ||
		after.bpi != before.bpi || after.bpm != before.bpm {
		status := c.status()
		event := domain.NewEvent(domain.EventRoomStateChanged, map[string]any{"status": status})
		if status.Room != nil {
			event.RoomID = status.Room.ID
		}
		c.send(ctx, event)
	}
	if after.viewMode != before.viewMode {
		c.publish(ctx, domain.EventViewModeChanged, map[string]any{
			"mode":         after.viewMode.String(),
			"capabilities": c.capabilities(),
		})
	}
	if after.previewing != before.previewing || after.previewID != before.previewID {
		c.publish(ctx, domain.EventRoomStreamChanged, map[string]any{"previewed": c.previewedRoom()})
	}
}

func (c *JamClient) publishChannel(ctx context.Context, id domain.ChannelID, transmitting bool) {
	if c.transmit != nil {
		c.transmit.TransmitChanged(id, transmitting)
	}
	event := domain.NewEvent(domain.EventTransmitChanged, map[string]any{"transmitting": transmitting})
	event.ChannelID = id
	c.send(ctx, event)
}

func (c *JamClient) publish(ctx context.Context, t domain.EventType, payload map[string]any) {
	c.send(ctx, domain.NewEvent(t, payload))
}

func (c *JamClient) send(ctx context.Context, event *domain.Event) {
	if c.publisher == nil {
		return
	}
	event.Source = "client"
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warnw("Failed to publish event", "type", event.Type, "error", err)
	}
}
