package domain

import (
	"net"
	"strconv"
)

type RoomID int64

// RoomInfo identifies a joinable room. Values are treated as immutable once
// they come out of the directory or the session layer.
type RoomInfo struct {
	ID                RoomID   `json:"id"`
	Name              string   `json:"name"`
	Host              string   `json:"host"`
	Port              int      `json:"port"`
	PasswordProtected bool     `json:"password_protected"`
	Users             []string `json:"users,omitempty"`
	MaxUsers          int      `json:"max_users"`
	Bpi               int      `json:"bpi"`
	Bpm               int      `json:"bpm"`
	StreamURL         string   `json:"stream_url,omitempty"`
}

// Endpoint is host:port.
func (r RoomInfo) Endpoint() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

func (r RoomInfo) UserCount() int {
	return len(r.Users)
}

func (r RoomInfo) IsEmpty() bool {
	return len(r.Users) == 0
}

// SameRoom compares identity only; user lists and tempo change between refreshes.
func (r RoomInfo) SameRoom(other RoomInfo) bool {
	return r.ID == other.ID
}

// RoomTransitionRequest is a pending jump to another room.
type RoomTransitionRequest struct {
	Room     RoomInfo `json:"room"`
	Password string   `json:"-"`
}

type RoomState int

const (
	RoomIdle RoomState = iota
	RoomAwaitingEntry
	RoomInRoom
	RoomDisconnecting
)

func (s RoomState) String() string {
	switch s {
	case RoomIdle:
		return "idle"
	case RoomAwaitingEntry:
		return "awaiting_entry"
	case RoomInRoom:
		return "in_room"
	case RoomDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

func (s RoomState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type RejectReason int

const (
	RejectOther RejectReason = iota
	RejectWrongPassword
	RejectIncompatible
)

func (r RejectReason) String() string {
	switch r {
	case RejectWrongPassword:
		return "wrong_password"
	case RejectIncompatible:
		return "incompatible"
	default:
		return "other"
	}
}

// SessionStatus is the read-only view of the room side of the client.
type SessionStatus struct {
	State     RoomState              `json:"state"`
	Room      *RoomInfo              `json:"room,omitempty"`
	Queued    *RoomTransitionRequest `json:"queued,omitempty"`
	Preparing bool                   `json:"preparing"`
	Previewed *RoomInfo              `json:"previewed,omitempty"`
	Bpi       int                    `json:"bpi"`
	Bpm       int                    `json:"bpm"`
	Beat      int                    `json:"beat"`
}
