package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName      = errors.New("channel group name already in use")
	ErrIndexOutOfRange    = errors.New("channel group index out of range")
	ErrCapabilityDenied   = errors.New("operation not permitted by current capabilities")
	ErrTransitionInFlight = errors.New("room transition in progress")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrPrimarySubchannel  = errors.New("primary subchannel can only be removed with its group")
	ErrInvalidName        = errors.New("invalid channel group name")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrScanInProgress     = errors.New("plugin scan already running")
	ErrPathBlacklisted    = errors.New("plugin path is blacklisted")
	ErrNotInRoom          = errors.New("not in a room")
	ErrRoomNotFound       = errors.New("room not found")
	ErrSnapshotNotFound   = errors.New("inputs snapshot not found")

	ErrServerRejected     = errors.New("server rejected room entry")
	ErrAbnormalDisconnect = errors.New("abnormal disconnection")
)

// ServerRejection is surfaced to the user; only the wrong-password case is
// recoverable through a retry prompt.
type ServerRejection struct {
	Room    RoomInfo
	Reason  RejectReason
	Message string
}

func (e *ServerRejection) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("room %q rejected entry (%s): %s", e.Room.Name, e.Reason, e.Message)
	}
	return fmt.Sprintf("room %q rejected entry (%s)", e.Room.Name, e.Reason)
}

func (e *ServerRejection) Is(target error) bool {
	return target == ErrServerRejected
}

// Retryable is true only for a wrong password.
func (e *ServerRejection) Retryable() bool {
	return e.Reason == RejectWrongPassword
}

type AbnormalDisconnection struct {
	Room RoomInfo
}

func (e *AbnormalDisconnection) Error() string {
	return fmt.Sprintf("connection to room %q lost", e.Room.Name)
}

func (e *AbnormalDisconnection) Is(target error) bool {
	return target == ErrAbnormalDisconnect
}
