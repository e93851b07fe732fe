package audio

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jamlink/internal/core/domain"
)

type capture struct {
	packets []rtp.Packet
}

func (c *capture) WriteRTP(p *rtp.Packet) error {
	c.packets = append(c.packets, *p)
	return nil
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq, Timestamp: uint32(seq) * 960}, Payload: []byte{0xfc}}
}

func TestGatedTrack_DropsWhileClosedAndKeepsSequence(t *testing.T) {
	open := true
	out := &capture{}
	track := newGatedTrack(1, out, func(domain.ChannelID) bool { return open })

	require.NoError(t, track.WriteRTP(packet(100)))
	require.NoError(t, track.WriteRTP(packet(101)))
	open = false
	for seq := uint16(102); seq < 110; seq++ {
		require.NoError(t, track.WriteRTP(packet(seq)))
	}
	open = true
	require.NoError(t, track.WriteRTP(packet(110)))
	require.NoError(t, track.WriteRTP(packet(111)))

	require.Len(t, out.packets, 4)
	var seqs []uint16
	for _, p := range out.packets {
		seqs = append(seqs, p.SequenceNumber)
	}
	assert.Equal(t, []uint16{100, 101, 102, 103}, seqs)
	assert.True(t, out.packets[0].Marker)
	assert.False(t, out.packets[1].Marker)
	assert.True(t, out.packets[2].Marker, "talkspurt restarts after the gate reopens")
	assert.Equal(t, uint32(110*960), out.packets[2].Timestamp, "timestamps are not rewritten")

	assert.Equal(t, TrackStats{Written: 4, Dropped: 8}, track.Stats())
}

func TestGatedTrack_SequenceWraps(t *testing.T) {
	open := true
	out := &capture{}
	track := newGatedTrack(1, out, func(domain.ChannelID) bool { return open })

	require.NoError(t, track.WriteRTP(packet(65535)))
	open = false
	require.NoError(t, track.WriteRTP(packet(0)))
	open = true
	require.NoError(t, track.WriteRTP(packet(1)))

	assert.Equal(t, uint16(0), out.packets[1].SequenceNumber)
}

func TestTransmitTable(t *testing.T) {
	table := NewTransmitTable()

	table.TransmitChanged(5, true)
	assert.True(t, table.Allowed(5))
	assert.False(t, table.Allowed(6))

	table.TransmitChanged(5, false)
	assert.False(t, table.Allowed(5))
}

func TestTransmitTable_BurstKeepsEveryChannel(t *testing.T) {
	table := NewTransmitTable()
	const channels = 500
	for id := domain.ChannelID(1); id <= channels; id++ {
		table.TransmitChanged(id, true)
	}
	for id := domain.ChannelID(1); id <= channels; id++ {
		table.TransmitChanged(id, false)
	}
	for id := domain.ChannelID(1); id <= channels; id++ {
		assert.False(t, table.Allowed(id), "channel %d", id)
	}
}

func TestTrackBank_Sync(t *testing.T) {
	table := NewTransmitTable()
	bank := NewTrackBank("jamlink", table.Allowed, nil)

	added, removed, err := bank.Sync([]domain.ChannelID{3, 1})
	require.NoError(t, err)
	assert.Equal(t, []domain.ChannelID{1, 3}, added)
	assert.Empty(t, removed)

	added, removed, err = bank.Sync([]domain.ChannelID{1, 4})
	require.NoError(t, err)
	assert.Equal(t, []domain.ChannelID{4}, added)
	assert.Equal(t, []domain.ChannelID{3}, removed)

	tracks := bank.LocalTracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, "channel-1", tracks[0].ID())
	assert.Equal(t, "jamlink", tracks[0].StreamID())

	gated, ok := bank.Track(1)
	require.True(t, ok)
	require.NoError(t, gated.WriteRTP(packet(1)))
	table.Set(1, true)
	require.NoError(t, gated.WriteRTP(packet(2)))
	assert.Equal(t, TrackStats{Written: 1, Dropped: 1}, bank.Stats()[1])

	_, ok = bank.Track(3)
	assert.False(t, ok)
}
