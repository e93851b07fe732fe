package services

import (
	"sort"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
)

// TransmissionGate vetoes audio transmission while inputs are being
// reconfigured. While preparing no channel reports transmitting; requests to
// start are remembered and applied when preparation ends.
type TransmissionGate struct {
	transmitting map[domain.ChannelID]bool
	deferred     map[domain.ChannelID]bool
	preparing    bool
	cycle        uint64
	logger       *zap.SugaredLogger
}

// NewTransmissionGate starts open with nothing transmitting.
func NewTransmissionGate(logger *zap.SugaredLogger) *TransmissionGate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TransmissionGate{
		transmitting: make(map[domain.ChannelID]bool),
		deferred:     make(map[domain.ChannelID]bool),
		logger:       logger,
	}
}

// SetPreparing toggles the global gate and returns the channels whose
// observable transmit state changed. Entering preparation again while already
// preparing restarts the cycle.
func (g *TransmissionGate) SetPreparing(preparing bool) []domain.ChannelID {
	if preparing {
		g.cycle++
		changed := make([]domain.ChannelID, 0, len(g.transmitting))
		for id := range g.transmitting {
			g.deferred[id] = true
			changed = append(changed, id)
		}
		g.transmitting = make(map[domain.ChannelID]bool)
		if !g.preparing {
			g.logger.Infow("Inputs preparing, transmission halted", "channels", len(changed), "cycle", g.cycle)
		}
		g.preparing = true
		return sortIDs(changed)
	}

	if !g.preparing {
		return nil
	}
	g.preparing = false

	changed := make([]domain.ChannelID, 0, len(g.deferred))
	for id, on := range g.deferred {
		if on {
			g.transmitting[id] = true
			changed = append(changed, id)
		}
	}
	g.deferred = make(map[domain.ChannelID]bool)
	g.logger.Infow("Inputs ready, transmission resumed", "channels", len(changed), "cycle", g.cycle)
	return sortIDs(changed)
}

// Cancel abandons preparation without reopening the gate. Deferred start
// requests are kept for the next round and nothing starts transmitting.
func (g *TransmissionGate) Cancel() {
	if !g.preparing {
		return
	}
	g.preparing = false
	g.logger.Infow("Inputs preparation cancelled", "deferred", len(g.deferred), "cycle", g.cycle)
}

// SetTransmitting applies a transmit request. A start request while preparing
// is deferred and reported as unchanged.
func (g *TransmissionGate) SetTransmitting(id domain.ChannelID, transmitting bool) bool {
	if g.preparing {
		if transmitting {
			g.deferred[id] = true
		} else {
			delete(g.deferred, id)
		}
		return false
	}

	delete(g.deferred, id)
	if g.transmitting[id] == transmitting {
		return false
	}
	if transmitting {
		g.transmitting[id] = true
	} else {
		delete(g.transmitting, id)
	}
	return true
}

// IsTransmitting is false for unknown channels.
func (g *TransmissionGate) IsTransmitting(id domain.ChannelID) bool {
	return g.transmitting[id]
}

func (g *TransmissionGate) IsPreparing() bool {
	return g.preparing
}

// Cycle identifies the current preparation round.
func (g *TransmissionGate) Cycle() uint64 {
	return g.cycle
}

// Forget drops every entry for the given channels, including deferred requests.
func (g *TransmissionGate) Forget(ids ...domain.ChannelID) {
	for _, id := range ids {
		delete(g.transmitting, id)
		delete(g.deferred, id)
	}
}

// TransmittingChannels is sorted by id.
func (g *TransmissionGate) TransmittingChannels() []domain.ChannelID {
	out := make([]domain.ChannelID, 0, len(g.transmitting))
	for id := range g.transmitting {
		out = append(out, id)
	}
	return sortIDs(out)
}

func sortIDs(ids []domain.ChannelID) []domain.ChannelID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
