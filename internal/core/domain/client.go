package domain

import "time"

// ClientID identifies a paired presentation client (UI window, remote
// control surface).
type ClientID string

type ClientRole string

const (
	// RoleObserver may read state and subscribe to events.
	RoleObserver ClientRole = "observer"
	// RoleController may additionally mutate channels and rooms.
	RoleController ClientRole = "controller"
)

func (r ClientRole) Valid() bool {
	return r == RoleObserver || r == RoleController
}

// Allows reports whether r covers everything required grants.
func (r ClientRole) Allows(required ClientRole) bool {
	levels := map[ClientRole]int{
		RoleObserver:   1,
		RoleController: 2,
	}
	return levels[r] > 0 && levels[r] >= levels[required]
}

type Client struct {
	ID       ClientID   `json:"id"`
	Name     string     `json:"name"`
	Role     ClientRole `json:"role"`
	PairedAt time.Time  `json:"paired_at"`
}
