package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

// Command is a request sent by a websocket client. ID is echoed in the reply.
type Command struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type commandHandler struct {
	role domain.ClientRole
	run  func(ctx context.Context, control ports.ControlService, payload json.RawMessage) (any, error)
}

type indexPayload struct {
	Index int `json:"index"`
}

type groupPayload struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type subchannelPayload struct {
	GroupIndex     int  `json:"group_index"`
	PrimaryIfEmpty bool `json:"primary_if_empty"`
}

type channelPayload struct {
	ChannelID    domain.ChannelID `json:"channel_id"`
	Transmitting bool             `json:"transmitting"`
	Kind         string           `json:"kind"`
	FirstChannel int              `json:"first_channel"`
	MidiDevice   int              `json:"midi_device"`
}

type roomPayload struct {
	RoomID   domain.RoomID `json:"room_id"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Password string        `json:"password"`
}

type valuePayload struct {
	Mode string `json:"mode"`
	Path string `json:"path"`
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("invalid payload: %w", domain.ErrInvalidArgument)
	}
	return v, nil
}

func query(fn func(control ports.ControlService) any) commandHandler {
	return commandHandler{
		role: domain.RoleObserver,
		run: func(_ context.Context, control ports.ControlService, _ json.RawMessage) (any, error) {
			return fn(control), nil
		},
	}
}

func mutation[T any](fn func(ctx context.Context, control ports.ControlService, p T) (any, error)) commandHandler {
	return commandHandler{
		role: domain.RoleController,
		run: func(ctx context.Context, control ports.ControlService, payload json.RawMessage) (any, error) {
			p, err := decode[T](payload)
			if err != nil {
				return nil, err
			}
			return fn(ctx, control, p)
		},
	}
}

var commands = map[string]commandHandler{
	"status":       query(func(c ports.ControlService) any { return c.Status() }),
	"groups":       query(func(c ports.ControlService) any { return c.Groups() }),
	"rooms":        query(func(c ports.ControlService) any { return c.Rooms() }),
	"plugins":      query(func(c ports.ControlService) any { return c.Plugins() }),
	"capabilities": query(func(c ports.ControlService) any { return c.Capabilities() }),

	"add_group": mutation(func(ctx context.Context, c ports.ControlService, p groupPayload) (any, error) {
		return c.AddGroup(ctx, p.Name)
	}),
	"remove_group": mutation(func(ctx context.Context, c ports.ControlService, p indexPayload) (any, error) {
		return nil, c.RemoveGroup(ctx, p.Index)
	}),
	"rename_group": mutation(func(ctx context.Context, c ports.ControlService, p groupPayload) (any, error) {
		return nil, c.RenameGroup(ctx, p.Index, p.Name)
	}),
	"reset_group": mutation(func(ctx context.Context, c ports.ControlService, p indexPayload) (any, error) {
		return nil, c.ResetGroup(ctx, p.Index)
	}),
	"highlight_group": mutation(func(ctx context.Context, c ports.ControlService, p indexPayload) (any, error) {
		return nil, c.HighlightGroup(ctx, p.Index)
	}),
	"add_subchannel": mutation(func(ctx context.Context, c ports.ControlService, p subchannelPayload) (any, error) {
		id, err := c.AddSubchannel(ctx, p.GroupIndex, p.PrimaryIfEmpty)
		if err != nil {
			return nil, err
		}
		return map[string]any{"channel_id": id}, nil
	}),
	"remove_subchannel": mutation(func(ctx context.Context, c ports.ControlService, p channelPayload) (any, error) {
		return nil, c.RemoveSubchannel(ctx, p.ChannelID)
	}),
	"set_input": mutation(func(ctx context.Context, c ports.ControlService, p channelPayload) (any, error) {
		kind, err := domain.ParseInputKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidArgument)
		}
		input := domain.InputSelection{Kind: kind, FirstChannel: p.FirstChannel, MidiDevice: p.MidiDevice}
		if kind == domain.NoInput {
			input = domain.NoInputSelection()
		}
		return nil, c.SetInput(ctx, p.ChannelID, input)
	}),
	"transmit": mutation(func(ctx context.Context, c ports.ControlService, p channelPayload) (any, error) {
		return nil, c.SetTransmitting(ctx, p.ChannelID, p.Transmitting)
	}),
	"enter_room": mutation(func(ctx context.Context, c ports.ControlService, p roomPayload) (any, error) {
		return nil, c.EnterRoom(ctx, p.RoomID, p.Password)
	}),
	"connect_private": mutation(func(ctx context.Context, c ports.ControlService, p roomPayload) (any, error) {
		return nil, c.ConnectPrivateServer(ctx, p.Host, p.Port, p.Password)
	}),
	"exit_room": mutation(func(ctx context.Context, c ports.ControlService, _ struct{}) (any, error) {
		return nil, c.ExitFromRoom(ctx)
	}),
	"play_stream": mutation(func(ctx context.Context, c ports.ControlService, p roomPayload) (any, error) {
		return nil, c.PlayRoomStream(ctx, p.RoomID)
	}),
	"stop_stream": mutation(func(ctx context.Context, c ports.ControlService, _ struct{}) (any, error) {
		c.StopRoomStream(ctx)
		return nil, nil
	}),
	"view_mode": mutation(func(ctx context.Context, c ports.ControlService, p valuePayload) (any, error) {
		mode, err := domain.ParseViewMode(p.Mode)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidArgument)
		}
		return nil, c.SetViewMode(ctx, mode)
	}),
	"scan_plugins": mutation(func(ctx context.Context, c ports.ControlService, _ struct{}) (any, error) {
		return nil, c.StartScan(ctx)
	}),
	"blacklist_plugin": mutation(func(ctx context.Context, c ports.ControlService, p valuePayload) (any, error) {
		return nil, c.BlacklistPlugin(ctx, p.Path)
	}),
}
