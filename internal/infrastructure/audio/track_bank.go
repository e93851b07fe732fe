package audio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"jamlink/internal/core/domain"
)

// OpusCapability is the codec every outgoing channel track uses.
var OpusCapability = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypeOpus,
	ClockRate: 48000,
	Channels:  2,
}

type bankEntry struct {
	local *webrtc.TrackLocalStaticRTP
	gated *GatedTrack
}

// TrackBank owns one local Opus track per subchannel.
type TrackBank struct {
	streamID string
	gate     GateFunc
	logger   *zap.SugaredLogger

	mu     sync.RWMutex
	tracks map[domain.ChannelID]*bankEntry
}

// NewTrackBank gates every track through gate.
func NewTrackBank(streamID string, gate GateFunc, logger *zap.SugaredLogger) *TrackBank {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TrackBank{
		streamID: streamID,
		gate:     gate,
		logger:   logger,
		tracks:   make(map[domain.ChannelID]*bankEntry),
	}
}

// Sync makes the bank hold exactly one track per channel in channels.
func (b *TrackBank) Sync(channels []domain.ChannelID) (added, removed []domain.ChannelID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := make(map[domain.ChannelID]struct{}, len(channels))
	for _, id := range channels {
		want[id] = struct{}{}
		if _, ok := b.tracks[id]; ok {
			continue
		}
		local, err := webrtc.NewTrackLocalStaticRTP(OpusCapability, fmt.Sprintf("channel-%d", id), b.streamID)
		if err != nil {
			return added, removed, fmt.Errorf("failed to create track for channel %d: %w", id, err)
		}
		b.tracks[id] = &bankEntry{local: local, gated: newGatedTrack(id, local, b.gate)}
		added = append(added, id)
	}
	for id := range b.tracks {
		if _, ok := want[id]; !ok {
			delete(b.tracks, id)
			removed = append(removed, id)
		}
	}

	sortChannelIDs(added)
	sortChannelIDs(removed)
	if len(added) > 0 || len(removed) > 0 {
		b.logger.Infow("Channel tracks synced", "added", added, "removed", removed, "total", len(b.tracks))
	}
	return added, removed, nil
}

func (b *TrackBank) Track(id domain.ChannelID) (*GatedTrack, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.tracks[id]
	if !ok {
		return nil, false
	}
	return e.gated, true
}

// LocalTracks returns the tracks to attach to a peer connection, ordered by
// channel id.
func (b *TrackBank) LocalTracks() []webrtc.TrackLocal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]domain.ChannelID, 0, len(b.tracks))
	for id := range b.tracks {
		ids = append(ids, id)
	}
	sortChannelIDs(ids)

	out := make([]webrtc.TrackLocal, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.tracks[id].local)
	}
	return out
}

// Stats reports written and dropped packets per channel.
func (b *TrackBank) Stats() map[domain.ChannelID]TrackStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[domain.ChannelID]TrackStats, len(b.tracks))
	for id, e := range b.tracks {
		out[id] = e.gated.Stats()
	}
	return out
}

func sortChannelIDs(ids []domain.ChannelID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
