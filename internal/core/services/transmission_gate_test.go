package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jamlink/internal/core/domain"
)

func TestTransmissionGate_UnknownChannelIsNotTransmitting(t *testing.T) {
	g := NewTransmissionGate(nil)
	assert.False(t, g.IsTransmitting(999))
}

func TestTransmissionGate_SetTransmitting(t *testing.T) {
	g := NewTransmissionGate(nil)

	assert.True(t, g.SetTransmitting(1, true))
	assert.True(t, g.IsTransmitting(1))
	assert.False(t, g.SetTransmitting(1, true), "repeated request is not a change")

	assert.True(t, g.SetTransmitting(1, false))
	assert.False(t, g.IsTransmitting(1))
	assert.Empty(t, g.TransmittingChannels())
}

func TestTransmissionGate_PreparingForcesAllOff(t *testing.T) {
	// every starting configuration ends with nothing transmitting
	configs := [][]domain.ChannelID{
		nil,
		{1},
		{1, 2, 3},
		{7, 42},
	}

	for _, on := range configs {
		for _, alreadyPreparing := range []bool{false, true} {
			g := NewTransmissionGate(nil)
			for _, id := range on {
				g.SetTransmitting(id, true)
			}
			if alreadyPreparing {
				g.SetPreparing(true)
			}

			g.SetPreparing(true)

			assert.True(t, g.IsPreparing())
			for _, id := range append(on, 100) {
				assert.False(t, g.IsTransmitting(id))
			}
			assert.Empty(t, g.TransmittingChannels())
		}
	}
}

func TestTransmissionGate_StartRequestWhilePreparingIsDeferred(t *testing.T) {
	g := NewTransmissionGate(nil)
	g.SetPreparing(true)

	assert.False(t, g.SetTransmitting(5, true), "silent no-op while preparing")
	assert.False(t, g.IsTransmitting(5))

	changed := g.SetPreparing(false)
	assert.Equal(t, []domain.ChannelID{5}, changed)
	assert.True(t, g.IsTransmitting(5))
}

func TestTransmissionGate_LatestRequestWinsDuringPreparation(t *testing.T) {
	g := NewTransmissionGate(nil)
	g.SetTransmitting(1, true)
	g.SetTransmitting(2, true)

	changed := g.SetPreparing(true)
	assert.Equal(t, []domain.ChannelID{1, 2}, changed)

	g.SetTransmitting(2, false)
	g.SetTransmitting(3, true)

	assert.Equal(t, []domain.ChannelID{1, 3}, g.SetPreparing(false))
	assert.True(t, g.IsTransmitting(1))
	assert.False(t, g.IsTransmitting(2))
	assert.True(t, g.IsTransmitting(3))
}

func TestTransmissionGate_RestartDoesNotStack(t *testing.T) {
	g := NewTransmissionGate(nil)
	g.SetTransmitting(1, true)

	g.SetPreparing(true)
	first := g.Cycle()
	g.SetPreparing(true)
	assert.Equal(t, first+1, g.Cycle())

	// one release is enough regardless of how many times preparation restarted
	g.SetPreparing(false)
	assert.False(t, g.IsPreparing())
	assert.True(t, g.IsTransmitting(1))

	assert.Nil(t, g.SetPreparing(false), "releasing an open gate changes nothing")
}

func TestTransmissionGate_Forget(t *testing.T) {
	g := NewTransmissionGate(nil)
	g.SetTransmitting(1, true)
	g.SetTransmitting(2, true)
	g.SetPreparing(true)
	g.SetTransmitting(3, true)

	g.Forget(1, 3)
	g.SetPreparing(false)

	assert.Equal(t, []domain.ChannelID{2}, g.TransmittingChannels())
}

func TestTransmissionGate_CancelKeepsGateClosed(t *testing.T) {
	g := NewTransmissionGate(nil)
	g.SetTransmitting(1, true)
	g.SetPreparing(true)
	g.SetTransmitting(2, true)

	g.Cancel()

	assert.False(t, g.IsPreparing())
	assert.Empty(t, g.TransmittingChannels(), "cancel promotes nothing")

	g.SetPreparing(true)
	assert.Equal(t, []domain.ChannelID{1, 2}, g.SetPreparing(false))
}

func TestTransmissionGate_ExplicitRequestOverridesKeptIntent(t *testing.T) {
	g := NewTransmissionGate(nil)
	g.SetPreparing(true)
	g.SetTransmitting(1, true)
	g.Cancel()

	assert.False(t, g.SetTransmitting(1, false), "already off")
	g.SetPreparing(true)
	assert.Empty(t, g.SetPreparing(false))
	assert.False(t, g.IsTransmitting(1))
}
