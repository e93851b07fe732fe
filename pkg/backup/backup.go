// Package backup keeps timestamped copies of the local inputs and the plugin
// catalog so a known-good setup can be brought back.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"jamlink/internal/core/domain"
)

const (
	namePrefix = "backup-"
	nameSuffix = ".json"
	timeLayout = "20060102-150405.000"
)

var (
	ErrNotFound    = errors.New("backup not found")
	ErrInvalidName = errors.New("invalid backup name")
	ErrNoBackups   = errors.New("no backups available")
)

// Data is what one backup holds.
type Data struct {
	Version   string                    `json:"version"`
	Timestamp time.Time                 `json:"timestamp"`
	Inputs    domain.InputsSnapshot     `json:"inputs"`
	Plugins   []domain.PluginDescriptor `json:"plugins,omitempty"`
	Blacklist []string                  `json:"blacklist,omitempty"`
	Metadata  map[string]string         `json:"metadata,omitempty"`
}

// Storage defines interface for backup storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

type BackupService struct {
	storage Storage
	version string
	now     func() time.Time
}

// NewBackupService stamps every backup with version.
func NewBackupService(storage Storage, version string) *BackupService {
	return &BackupService{
		storage: storage,
		version: version,
		now:     time.Now,
	}
}

// CreateBackup stamps data with the service version and the current time
// and stores it under a name derived from that time.
func (bs *BackupService) CreateBackup(ctx context.Context, data *Data) (string, error) {
	data.Version = bs.version
	data.Timestamp = bs.now().UTC()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup data: %w", err)
	}

	name := namePrefix + data.Timestamp.Format(timeLayout) + nameSuffix
	if err := bs.storage.Save(ctx, name, bytes.NewReader(jsonData)); err != nil {
		return "", fmt.Errorf("failed to save backup: %w", err)
	}
	return name, nil
}

// RestoreBackup loads and decodes a backup by name.
func (bs *BackupService) RestoreBackup(ctx context.Context, name string) (*Data, error) {
	if _, err := TimestampOf(name); err != nil {
		return nil, err
	}

	reader, err := bs.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup data: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup data: %w", err)
	}
	if data.Version == "" {
		return nil, fmt.Errorf("backup %s has no version", name)
	}
	return &data, nil
}

// ListBackups returns backup names, oldest first.
func (bs *BackupService) ListBackups(ctx context.Context) ([]string, error) {
	names, err := bs.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	valid := names[:0]
	for _, name := range names {
		if _, err := TimestampOf(name); err == nil {
			valid = append(valid, name)
		}
	}
	// the timestamp layout sorts lexically
	sort.Strings(valid)
	return valid, nil
}

// LatestBackup returns ErrNoBackups when the store is empty.
func (bs *BackupService) LatestBackup(ctx context.Context) (string, error) {
	names, err := bs.ListBackups(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoBackups
	}
	return names[len(names)-1], nil
}

func (bs *BackupService) DeleteBackup(ctx context.Context, name string) error {
	if _, err := TimestampOf(name); err != nil {
		return err
	}
	return bs.storage.Delete(ctx, name)
}

// Prune deletes all but the newest keep backups and returns the deleted names.
func (bs *BackupService) Prune(ctx context.Context, keep int) ([]string, error) {
	names, err := bs.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(names) <= keep {
		return nil, nil
	}

	var deleted []string
	var errs []error
	for _, name := range names[:len(names)-keep] {
		if err := bs.storage.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		deleted = append(deleted, name)
	}
	return deleted, errors.Join(errs...)
}

// TimestampOf parses the creation time encoded in a backup name.
func TimestampOf(name string) (time.Time, error) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return time.Time{}, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	ts, err := time.Parse(timeLayout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return ts, nil
}
