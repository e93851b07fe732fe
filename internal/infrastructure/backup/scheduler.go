package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/pkg/backup"
)

// Source supplies the state captured by a backup.
type Source interface {
	Snapshot() domain.InputsSnapshot
	Plugins() []domain.PluginDescriptor
}

// BlacklistSource lists blacklisted plugin paths; ports.PluginRepository satisfies it.
type BlacklistSource interface {
	Blacklist(ctx context.Context) ([]string, error)
}

// Scheduler manages automatic backups
type Scheduler struct {
	backupService *backup.BackupService
	source        Source
	blacklist     BlacklistSource
	interval      time.Duration
	keep          int
	metadata      map[string]string
	logger        *zap.SugaredLogger

	mu       sync.Mutex
	last     []byte
	stopOnce sync.Once
	stopChan chan struct{}
}

type Config struct {
	Interval time.Duration
	// Keep is how many backups survive pruning; zero disables pruning.
	Keep     int
	Metadata map[string]string
}

// NewScheduler does nothing until Start is called.
func NewScheduler(
	backupService *backup.BackupService,
	source Source,
	blacklist BlacklistSource,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		backupService: backupService,
		source:        source,
		blacklist:     blacklist,
		interval:      cfg.Interval,
		keep:          cfg.Keep,
		metadata:      cfg.Metadata,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Warnw("backup scheduler disabled", "interval", s.interval)
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runBackup(ctx)

	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends Start. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Scheduler) runBackup(ctx context.Context) {
	name, err := s.BackupNow(ctx, false)
	if err != nil {
		s.logger.Errorw("scheduled backup failed", "error", err)
		return
	}
	if name == "" {
		s.logger.Debug("inputs unchanged, skipping scheduled backup")
	}
}

// BackupNow captures the current state. Unless force is set, an unchanged
// state since the previous backup is skipped and the returned name is empty.
func (s *Scheduler) BackupNow(ctx context.Context, force bool) (string, error) {
	data := &backup.Data{
		Inputs:   s.source.Snapshot(),
		Plugins:  s.source.Plugins(),
		Metadata: s.metadata,
	}
	if s.blacklist != nil {
		paths, err := s.blacklist.Blacklist(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read blacklist: %w", err)
		}
		data.Blacklist = paths
	}

	fingerprint, err := json.Marshal(struct {
		Inputs    domain.InputsSnapshot
		Plugins   []domain.PluginDescriptor
		Blacklist []string
	}{data.Inputs, data.Plugins, data.Blacklist})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && bytes.Equal(fingerprint, s.last) {
		return "", nil
	}

	name, err := s.backupService.CreateBackup(ctx, data)
	if err != nil {
		return "", err
	}
	s.last = fingerprint
	s.logger.Infow("backup created",
		"name", name,
		"groups", len(data.Inputs.Groups),
		"plugins", len(data.Plugins),
	)

	if s.keep > 0 {
		deleted, err := s.backupService.Prune(ctx, s.keep)
		if err != nil {
			s.logger.Warnw("failed to prune backups", "error", err)
		} else if len(deleted) > 0 {
			s.logger.Infow("pruned old backups", "deleted", len(deleted))
		}
	}
	return name, nil
}
