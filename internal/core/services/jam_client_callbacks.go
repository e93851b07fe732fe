package services

import (
	"context"
	"fmt"

	"jamlink/internal/core/domain"
)

// Callbacks from the session layer, the plugin scanner and the audio side.
// Collaborators post them through the dispatcher; calling them from another
// goroutine blocks until the control goroutine has handled them.

func (c *JamClient) OnRoomList(ctx context.Context, rooms []domain.RoomInfo) {
	_ = c.mutate(ctx, func(ctx context.Context) error {
		c.rooms.Purge()
		for _, room := range rooms {
			c.rooms.Set(room.ID, room)
		}
		c.publish(ctx, domain.EventRoomListChanged, map[string]any{"rooms": c.sortedRooms()})
		return nil
	})
}

func (c *JamClient) OnServerAccepts(ctx context.Context) {
	_ = c.mutate(ctx, func(ctx context.Context) error {
		c.controller.ServerAccepts(ctx)
		return nil
	})
}

func (c *JamClient) OnServerRejects(ctx context.Context, reason domain.RejectReason, message string) {
	_ = c.mutate(ctx, func(ctx context.Context) error {
		c.controller.ServerRejects(ctx, reason, message)
		return nil
	})
}

func (c *JamClient) OnIncompatibleProtocol(ctx context.Context) {
	_ = c.mutate(ctx, func(ctx context.Context) error {
		c.controller.IncompatibleProtocol(ctx)
		return nil
	})
}

func (c *JamClient) OnDisconnected(ctx context.Context, normal bool) {
	_ = c.mutate(ctx, func(ctx context.Context) error {
		c.controller.Disconnected(ctx, normal)
		return nil
	})
}

// OnInputsReady completes the preparation round identified by cycle.
func (c *JamClient) OnInputsReady(ctx context.Context, cycle uint64) {
	_ = c.mutate(ctx, func(ctx context.Context) error {
		c.controller.InputsReady(ctx, cycle)
		return nil
	})
}

func (c *JamClient) OnBpi(ctx context.Context, bpi int) {
	_ = c.mutate(ctx, func(context.Context) error {
		c.bpi = bpi
		return nil
	})
}

func (c *JamClient) OnBpm(ctx context.Context, bpm int) {
	_ = c.mutate(ctx, func(context.Context) error {
		c.bpm = bpm
		return nil
	})
}

// OnIntervalBeat is frequent and is not published as an event.
func (c *JamClient) OnIntervalBeat(ctx context.Context, beat int) {
	_ = c.do(ctx, func(context.Context) error {
		c.beat = beat
		return nil
	})
}

func (c *JamClient) OnNewVersionAvailable(ctx context.Context, version string) {
	_ = c.do(ctx, func(context.Context) error {
		c.notifier.ShowMessage(domain.MessageInfo, "New version",
			fmt.Sprintf("jamlink %s is available.", version))
		return nil
	})
}

// OnServerConnectionError reports a transport failure. Any join or room in
// progress ends as an abnormal disconnection.
func (c *JamClient) OnServerConnectionError(ctx context.Context, message string) {
	_ = c.mutate(ctx, func(ctx context.Context) error {
		c.logger.Errorw("Server connection error", "message", message, "state", c.controller.State())
		c.notifier.ShowMessage(domain.MessageError, "Connection error", message)
		c.controller.Disconnected(ctx, false)
		return nil
	})
}

func (c *JamClient) OnRoomStreamError(ctx context.Context, message string) {
	_ = c.mutate(ctx, func(context.Context) error {
		if c.previewed == nil {
			return nil
		}
		c.logger.Warnw("Room stream failed", "room_id", c.previewed.ID, "message", message)
		c.previewed = nil
		c.notifier.ShowMessage(domain.MessageError, "Room stream", message)
		return nil
	})
}

func (c *JamClient) OnScanProgress(ctx context.Context, path string) {
	_ = c.do(ctx, func(ctx context.Context) error {
		if c.scan.OnScanProgress(path) {
			c.publish(ctx, domain.EventScanProgress, map[string]any{"path": path})
		}
		return nil
	})
}

func (c *JamClient) OnScanFound(ctx context.Context, name, group, path string) {
	_ = c.do(ctx, func(ctx context.Context) error {
		if plugin, added := c.scan.OnScanFound(ctx, name, group, path); added {
			c.publish(ctx, domain.EventPluginFound, map[string]any{"plugin": plugin})
		}
		return nil
	})
}

func (c *JamClient) OnScanBlacklisted(ctx context.Context, path string) {
	_ = c.do(ctx, func(ctx context.Context) error {
		if err := c.scan.OnBlacklisted(ctx, path); err != nil {
			c.logger.Errorw("Failed to record blacklisted plugin", "path", path, "error", err)
		}
		return nil
	})
}

func (c *JamClient) OnScanFinished(ctx context.Context, withoutError bool) {
	_ = c.do(ctx, func(ctx context.Context) error {
		report := c.scan.OnScanFinished(ctx, withoutError)
		c.publish(ctx, domain.EventScanFinished, map[string]any{
			"report":  report,
			"plugins": c.scan.Plugins(),
		})
		return nil
	})
}
