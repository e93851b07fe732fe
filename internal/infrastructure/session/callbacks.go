// Package session holds loopback implementations of the collaborators the
// client talks to: the room server, the plugin scanner, the audio inputs and
// the room stream player. They complete asynchronously the way the real ones
// do and report back through the client's callbacks.
package session

import (
	"context"

	"jamlink/internal/core/domain"
)

// Callbacks are always invoked with a fresh background context from a
// goroutine owned by the collaborator, never with the caller's context: that
// one may belong to the control goroutine and would make the callback run
// inline.

type GatewayCallbacks interface {
	OnRoomList(ctx context.Context, rooms []domain.RoomInfo)
	OnServerAccepts(ctx context.Context)
	OnServerRejects(ctx context.Context, reason domain.RejectReason, message string)
	OnDisconnected(ctx context.Context, normal bool)
	OnBpi(ctx context.Context, bpi int)
	OnBpm(ctx context.Context, bpm int)
	OnIntervalBeat(ctx context.Context, beat int)
}

type ScanCallbacks interface {
	OnScanProgress(ctx context.Context, path string)
	OnScanFound(ctx context.Context, name, group, path string)
	OnScanBlacklisted(ctx context.Context, path string)
	OnScanFinished(ctx context.Context, withoutError bool)
}

type InputsCallbacks interface {
	OnInputsReady(ctx context.Context, cycle uint64)
}

type StreamCallbacks interface {
	OnRoomStreamError(ctx context.Context, message string)
}
