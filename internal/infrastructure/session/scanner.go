package session

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
)

// pluginGroups maps plugin file or bundle extensions to the plugin family.
var pluginGroups = map[string]string{
	".vst3":      "VST3",
	".dll":       "VST",
	".so":        "VST",
	".component": "AU",
	".clap":      "CLAP",
}

// DirectoryScanner discovers plugins by walking directories. Empty plugin
// files are treated as plugins that fail to load and get blacklisted.
type DirectoryScanner struct {
	dirs   []string
	logger *zap.SugaredLogger

	mu        sync.Mutex
	cb        ScanCallbacks
	running   bool
	blacklist map[string]struct{}
	done      chan struct{}
}

// NewDirectoryScanner walks dirs for plugin files.
func NewDirectoryScanner(dirs []string, logger *zap.SugaredLogger) *DirectoryScanner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DirectoryScanner{
		dirs:      append([]string(nil), dirs...),
		logger:    logger,
		blacklist: make(map[string]struct{}),
	}
}

func (s *DirectoryScanner) Bind(cb ScanCallbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// StartScan walks in the background and reports through the bound callbacks.
func (s *DirectoryScanner) StartScan(_ context.Context, blacklist []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return domain.ErrScanInProgress
	}
	if s.cb == nil {
		return errors.New("scanner has no callback receiver")
	}

	skip := make(map[string]struct{}, len(blacklist)+len(s.blacklist))
	for _, path := range blacklist {
		skip[filepath.Clean(path)] = struct{}{}
	}
	for path := range s.blacklist {
		skip[path] = struct{}{}
	}

	s.running = true
	s.done = make(chan struct{})
	go s.scan(s.cb, skip, s.done)
	return nil
}

func (s *DirectoryScanner) Blacklist(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[filepath.Clean(path)] = struct{}{}
	return nil
}

// Wait blocks until the scan in progress, if any, has reported its end.
func (s *DirectoryScanner) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *DirectoryScanner) scan(cb ScanCallbacks, skip map[string]struct{}, done chan struct{}) {
	ctx := context.Background()
	clean := true
	found := 0

	for _, dir := range s.dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			group, ok := pluginGroups[strings.ToLower(filepath.Ext(path))]
			if !ok || path == dir {
				return nil
			}

			cb.OnScanProgress(ctx, path)
			if _, blacklisted := skip[filepath.Clean(path)]; blacklisted {
				return skipBundle(d)
			}

			if s.loadable(path, d) {
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				cb.OnScanFound(ctx, name, group, path)
				found++
			} else {
				s.logger.Warnw("Plugin failed to load", "path", path)
				cb.OnScanBlacklisted(ctx, path)
			}
			return skipBundle(d)
		})
		if err != nil {
			clean = false
			s.logger.Warnw("Plugin directory scan failed", "dir", dir, "error", err)
		}
	}

	s.logger.Infow("Plugin scan finished", "found", found, "clean", clean)
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	cb.OnScanFinished(ctx, clean)
	close(done)
}

// loadable treats bundles (directories) as loadable and plain files as
// loadable only when non-empty.
func (s *DirectoryScanner) loadable(path string, d fs.DirEntry) bool {
	if d.IsDir() {
		return true
	}
	info, err := d.Info()
	if err != nil {
		s.logger.Warnw("Failed to stat plugin", "path", path, "error", err)
		return false
	}
	return info.Size() > 0
}

func skipBundle(d fs.DirEntry) error {
	if d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}
