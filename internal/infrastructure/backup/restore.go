package backup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/pkg/backup"
)

// Target receives restored state; the jam client satisfies it.
type Target interface {
	RestoreInputs(ctx context.Context, snapshot domain.InputsSnapshot) (int, error)
	BlacklistPlugin(ctx context.Context, path string) error
}

type RestoreOptions struct {
	RestoreInputs    bool `json:"restore_inputs"`
	RestoreBlacklist bool `json:"restore_blacklist"`
}

func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{RestoreInputs: true, RestoreBlacklist: true}
}

type RestoreResult struct {
	Backup      string `json:"backup"`
	Version     string `json:"version"`
	Groups      int    `json:"groups"`
	Blacklisted int    `json:"blacklisted"`
}

// RestoreService handles restore operations
type RestoreService struct {
	backupService *backup.BackupService
	target        Target
	logger        *zap.SugaredLogger
}

func NewRestoreService(backupService *backup.BackupService, target Target, logger *zap.SugaredLogger) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		target:        target,
		logger:        logger,
	}
}

// RestoreFromBackup applies a stored backup. The plugin catalog is not
// restored; the next scan rebuilds it.
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, name string, options RestoreOptions) (RestoreResult, error) {
	rs.logger.Infow("starting restore", "backup_name", name, "options", options)

	data, err := rs.backupService.RestoreBackup(ctx, name)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("failed to load backup: %w", err)
	}

	result := RestoreResult{Backup: name, Version: data.Version}

	if options.RestoreInputs {
		if len(data.Inputs.Groups) == 0 {
			rs.logger.Warnw("backup holds no groups, inputs left untouched", "backup_name", name)
		} else {
			groups, err := rs.target.RestoreInputs(ctx, data.Inputs)
			if err != nil {
				return result, fmt.Errorf("failed to restore inputs: %w", err)
			}
			result.Groups = groups
		}
	}

	if options.RestoreBlacklist {
		var errs []error
		for _, path := range data.Blacklist {
			if err := rs.target.BlacklistPlugin(ctx, path); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			result.Blacklisted++
		}
		if err := errors.Join(errs...); err != nil {
			rs.logger.Warnw("some blacklist entries were not restored", "error", err)
		}
	}

	rs.logger.Infow("restore completed",
		"backup_name", name,
		"groups", result.Groups,
		"blacklisted", result.Blacklisted,
	)
	return result, nil
}

// RestoreLatest restores the newest backup.
func (rs *RestoreService) RestoreLatest(ctx context.Context, options RestoreOptions) (RestoreResult, error) {
	name, err := rs.backupService.LatestBackup(ctx)
	if err != nil {
		return RestoreResult{}, err
	}
	return rs.RestoreFromBackup(ctx, name, options)
}

func (rs *RestoreService) ListBackups(ctx context.Context) ([]string, error) {
	return rs.backupService.ListBackups(ctx)
}
