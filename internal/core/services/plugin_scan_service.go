package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
	"jamlink/pkg/validation"
)

// PluginScanService mirrors the external scanner's progress into local
// state. Blacklisted paths are excluded from every later scan.
type PluginScanService struct {
	scanner  ports.PluginScanner
	repo     ports.PluginRepository
	notifier ports.Notifier
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
	now      func() time.Time

	plugins   []domain.PluginDescriptor
	blacklist map[string]bool

	scanning        bool
	currentPath     string
	startedAt       time.Time
	scanBlacklisted []string
}

// NewPluginScanService keeps found plugins and the blacklist in repo.
func NewPluginScanService(
	scanner ports.PluginScanner,
	repo ports.PluginRepository,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *PluginScanService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = NewMetricsService()
	}
	return &PluginScanService{
		scanner:   scanner,
		repo:      repo,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		blacklist: make(map[string]bool),
	}
}

// Restore loads the plugin list and blacklist saved by earlier scans.
func (s *PluginScanService) Restore(ctx context.Context) error {
	blacklist, err := s.repo.Blacklist(ctx)
	if err != nil {
		return fmt.Errorf("failed to load plugin blacklist: %w", err)
	}
	for _, path := range blacklist {
		s.blacklist[path] = true
	}

	plugins, err := s.repo.ListPlugins(ctx)
	if err != nil {
		return fmt.Errorf("failed to load plugins: %w", err)
	}
	s.plugins = s.plugins[:0]
	for _, p := range plugins {
		if !s.blacklist[p.Path] {
			s.plugins = append(s.plugins, p)
		}
	}

	s.logger.Infow("Plugins restored", "plugins", len(s.plugins), "blacklisted", len(s.blacklist))
	return nil
}

// StartScan clears the stored plugins and asks the scanner for a fresh pass.
// Only one scan runs at a time.
func (s *PluginScanService) StartScan(ctx context.Context) error {
	if s.scanning {
		return domain.ErrScanInProgress
	}

	if err := s.repo.ClearPlugins(ctx); err != nil {
		s.logger.Warnw("Failed to clear stored plugins", "error", err)
	}
	s.plugins = nil
	s.scanBlacklisted = nil
	s.currentPath = ""
	s.scanning = true
	s.startedAt = s.now()

	blacklist := s.Blacklisted()
	if err := s.scanner.StartScan(ctx, blacklist); err != nil {
		s.scanning = false
		return fmt.Errorf("failed to start plugin scan: %w", err)
	}

	s.logger.Infow("Plugin scan started", "blacklisted", len(blacklist))
	return nil
}

// OnScanProgress records the path being scanned. It reports false for a
// blacklisted path, which the scanner should have skipped.
func (s *PluginScanService) OnScanProgress(path string) bool {
	if s.blacklist[path] {
		s.logger.Warnw("Scanner probing blacklisted plugin", "path", path)
		return false
	}
	s.currentPath = path
	return true
}

// OnScanFound appends a discovered plugin unless its path is blacklisted or
// already listed.
func (s *PluginScanService) OnScanFound(ctx context.Context, name, group, path string) (domain.PluginDescriptor, bool) {
	plugin := domain.PluginDescriptor{Name: name, Group: group, Path: path}
	if s.blacklist[path] {
		return plugin, false
	}
	for _, p := range s.plugins {
		if p.Path == path {
			return plugin, false
		}
	}

	s.plugins = append(s.plugins, plugin)
	if err := s.repo.AddPlugin(ctx, plugin); err != nil {
		s.logger.Warnw("Failed to store plugin", "path", path, "error", err)
	}
	return plugin, true
}

// OnScanFinished closes the scan. Blacklist entries recorded during the scan
// hold even when it did not finish cleanly.
func (s *PluginScanService) OnScanFinished(_ context.Context, withoutError bool) domain.ScanReport {
	report := domain.ScanReport{
		Clean:       withoutError,
		Found:       len(s.plugins),
		Blacklisted: append([]string(nil), s.scanBlacklisted...),
	}

	var took time.Duration
	if s.scanning {
		took = s.now().Sub(s.startedAt)
	}
	s.scanning = false
	s.currentPath = ""
	s.metrics.RecordScan(took, report.Found, report.Clean)

	if !withoutError {
		s.logger.Warnw("Plugin scan finished with errors", "found", report.Found, "blacklisted", len(report.Blacklisted))
		s.notifier.ShowMessage(domain.MessageWarning, "Plugin scan",
			"The plugin scan did not complete cleanly. Plugins that crashed the scanner were blacklisted.")
	} else {
		s.logger.Infow("Plugin scan finished", "found", report.Found, "took", took)
	}
	return report
}

// Blacklist excludes path from future scans at the user's request and tells
// the scanner.
func (s *PluginScanService) Blacklist(ctx context.Context, path string) error {
	if err := validation.ValidatePluginPath(path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := s.record(ctx, path); err != nil {
		return err
	}
	if err := s.scanner.Blacklist(path); err != nil {
		s.logger.Warnw("Scanner rejected blacklist entry", "path", path, "error", err)
	}
	return nil
}

// OnBlacklisted handles a blacklist event raised by the scanner itself.
func (s *PluginScanService) OnBlacklisted(ctx context.Context, path string) error {
	return s.record(ctx, path)
}

func (s *PluginScanService) IsBlacklisted(path string) bool {
	return s.blacklist[path]
}

// Plugins returns a copy of the plugins found so far.
func (s *PluginScanService) Plugins() []domain.PluginDescriptor {
	return append([]domain.PluginDescriptor(nil), s.plugins...)
}

// Blacklisted returns the blacklisted paths sorted.
func (s *PluginScanService) Blacklisted() []string {
	out := make([]string, 0, len(s.blacklist))
	for path := range s.blacklist {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// CurrentPath is the plugin being scanned by the running scan, if any.
func (s *PluginScanService) CurrentPath() string {
	return s.currentPath
}

func (s *PluginScanService) Scanning() bool {
	return s.scanning
}

func (s *PluginScanService) record(ctx context.Context, path string) error {
	if s.blacklist[path] {
		return nil
	}
	if err := s.repo.AddToBlacklist(ctx, path); err != nil {
		return fmt.Errorf("failed to store blacklist entry: %w", err)
	}
	s.blacklist[path] = true
	if s.scanning {
		s.scanBlacklisted = append(s.scanBlacklisted, path)
	}

	for i, p := range s.plugins {
		if p.Path == path {
			s.plugins = append(s.plugins[:i], s.plugins[i+1:]...)
			if err := s.repo.RemovePlugin(ctx, path); err != nil {
				s.logger.Warnw("Failed to remove blacklisted plugin", "path", path, "error", err)
			}
			break
		}
	}

	s.logger.Infow("Plugin blacklisted", "path", path)
	return nil
}
