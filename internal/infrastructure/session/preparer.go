package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
)

// TrackSyncer rebuilds the outgoing audio tracks for a channel set.
type TrackSyncer interface {
	Sync(channels []domain.ChannelID) (added, removed []domain.ChannelID, err error)
}

// InputsPreparer rebuilds the outgoing tracks and reports readiness after a
// fixed delay. Starting a new round cancels the previous one.
type InputsPreparer struct {
	delay  time.Duration
	tracks TrackSyncer
	logger *zap.SugaredLogger

	mu    sync.Mutex
	cb    InputsCallbacks
	timer *time.Timer
}

// NewInputsPreparer syncs tracks and reports ready after delay.
func NewInputsPreparer(delay time.Duration, tracks TrackSyncer, logger *zap.SugaredLogger) *InputsPreparer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &InputsPreparer{delay: delay, tracks: tracks, logger: logger}
}

func (p *InputsPreparer) Bind(cb InputsCallbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
}

// PrepareInputs cancels any pending round and starts cycle.
func (p *InputsPreparer) PrepareInputs(_ context.Context, cycle uint64, channels []domain.ChannelID) error {
	if p.tracks != nil {
		if _, _, err := p.tracks.Sync(channels); err != nil {
			return fmt.Errorf("failed to prepare inputs: %w", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cb == nil {
		return fmt.Errorf("preparer has no callback receiver")
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	cb := p.cb
	p.logger.Debugw("Preparing inputs", "cycle", cycle, "channels", len(channels))
	p.timer = time.AfterFunc(p.delay, func() {
		cb.OnInputsReady(context.Background(), cycle)
	})
	return nil
}

// Close cancels a pending round.
func (p *InputsPreparer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
