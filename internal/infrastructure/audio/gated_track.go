package audio

import (
	"sync"

	"github.com/pion/rtp"

	"jamlink/internal/core/domain"
)

// GateFunc reports whether a channel may currently transmit.
type GateFunc func(id domain.ChannelID) bool

type rtpWriter interface {
	WriteRTP(p *rtp.Packet) error
}

type TrackStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// GatedTrack forwards RTP packets of one channel only while its gate is
// open. Outgoing sequence numbers stay contiguous across closed periods so
// receivers do not count gated silence as loss, and the first packet after
// reopening carries the marker bit (start of a talkspurt).
type GatedTrack struct {
	id   domain.ChannelID
	out  rtpWriter
	gate GateFunc

	mu        sync.Mutex
	open      bool
	started   bool
	seqOffset uint16
	lastSeq   uint16
	stats     TrackStats
}

func newGatedTrack(id domain.ChannelID, out rtpWriter, gate GateFunc) *GatedTrack {
	return &GatedTrack{id: id, out: out, gate: gate}
}

func (t *GatedTrack) ChannelID() domain.ChannelID {
	return t.id
}

// WriteRTP drops the packet while the gate is closed. Forwarded packets are
// renumbered so the receiver sees no gaps.
func (t *GatedTrack) WriteRTP(p *rtp.Packet) error {
	t.mu.Lock()
	if !t.gate(t.id) {
		t.open = false
		t.stats.Dropped++
		t.mu.Unlock()
		return nil
	}

	out := *p
	if !t.open {
		if t.started {
			t.seqOffset = t.lastSeq + 1 - p.SequenceNumber
		}
		out.Marker = true
		t.open = true
	}
	out.SequenceNumber = p.SequenceNumber + t.seqOffset
	t.lastSeq = out.SequenceNumber
	t.started = true
	t.stats.Written++
	t.mu.Unlock()

	return t.out.WriteRTP(&out)
}

func (t *GatedTrack) Stats() TrackStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
