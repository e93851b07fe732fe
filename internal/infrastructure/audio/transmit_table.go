package audio

import (
	"sync"

	"jamlink/internal/core/domain"
)

// TransmitTable mirrors the client's transmit state so the packet path can
// consult it without a round trip to the control goroutine.
type TransmitTable struct {
	mu    sync.RWMutex
	state map[domain.ChannelID]bool
}

// NewTransmitTable starts with every channel muted.
func NewTransmitTable() *TransmitTable {
	return &TransmitTable{state: make(map[domain.ChannelID]bool)}
}

// Allowed is the GateFunc for the track bank.
func (t *TransmitTable) Allowed(id domain.ChannelID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state[id]
}

func (t *TransmitTable) Set(id domain.ChannelID, transmitting bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if transmitting {
		t.state[id] = true
		return
	}
	delete(t.state, id)
}

// TransmitChanged is called synchronously by the client, so the table never
// misses a change.
func (t *TransmitTable) TransmitChanged(id domain.ChannelID, transmitting bool) {
	t.Set(id, transmitting)
}
