package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jamlink/internal/core/domain"
	"jamlink/pkg/backup"
)

type stubSource struct {
	snapshot domain.InputsSnapshot
	plugins  []domain.PluginDescriptor
}

func (s *stubSource) Snapshot() domain.InputsSnapshot    { return s.snapshot }
func (s *stubSource) Plugins() []domain.PluginDescriptor { return s.plugins }

type stubBlacklist []string

func (b stubBlacklist) Blacklist(context.Context) ([]string, error) { return b, nil }

type MockTarget struct {
	mock.Mock
}

func (m *MockTarget) RestoreInputs(ctx context.Context, snapshot domain.InputsSnapshot) (int, error) {
	args := m.Called(ctx, snapshot)
	return args.Int(0), args.Error(1)
}

func (m *MockTarget) BlacklistPlugin(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func newBackupService(t *testing.T) *backup.BackupService {
	t.Helper()
	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return backup.NewBackupService(storage, "test")
}

func guitarSnapshot() domain.InputsSnapshot {
	return domain.InputsSnapshot{Groups: []domain.GroupSnapshot{
		{Name: "Guitar", Subchannels: []domain.InputSelection{{Kind: domain.StereoInput, FirstChannel: 2, MidiDevice: -1}}},
	}}
}

func TestScheduler_SkipsUnchangedState(t *testing.T) {
	service := newBackupService(t)
	source := &stubSource{snapshot: guitarSnapshot()}
	scheduler := NewScheduler(service, source, stubBlacklist{"/p/bad.so"}, Config{Interval: time.Minute}, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	first, err := scheduler.BackupNow(ctx, false)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	skipped, err := scheduler.BackupNow(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	source.snapshot.Groups[0].Name = "Bass"
	time.Sleep(2 * time.Millisecond)
	second, err := scheduler.BackupNow(ctx, false)
	require.NoError(t, err)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	data, err := service.RestoreBackup(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "Bass", data.Inputs.Groups[0].Name)
	assert.Equal(t, []string{"/p/bad.so"}, data.Blacklist)
}

func TestScheduler_PrunesToKeep(t *testing.T) {
	service := newBackupService(t)
	source := &stubSource{snapshot: guitarSnapshot()}
	scheduler := NewScheduler(service, source, nil, Config{Interval: time.Minute, Keep: 2}, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := scheduler.BackupNow(ctx, true)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	names, err := service.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestScheduler_StartStops(t *testing.T) {
	service := newBackupService(t)
	scheduler := NewScheduler(service, &stubSource{snapshot: guitarSnapshot()}, nil, Config{Interval: time.Hour}, zaptest.NewLogger(t).Sugar())

	done := make(chan struct{})
	go func() {
		scheduler.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		names, _ := service.ListBackups(context.Background())
		return len(names) == 1
	}, time.Second, 10*time.Millisecond)

	scheduler.Stop()
	scheduler.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRestoreService_RestoreLatest(t *testing.T) {
	service := newBackupService(t)
	ctx := context.Background()
	_, err := service.CreateBackup(ctx, &backup.Data{
		Inputs:    guitarSnapshot(),
		Blacklist: []string{"/p/a.dll", "/p/b.dll"},
	})
	require.NoError(t, err)

	target := new(MockTarget)
	target.On("RestoreInputs", mock.Anything, guitarSnapshot()).Return(1, nil)
	target.On("BlacklistPlugin", mock.Anything, "/p/a.dll").Return(nil)
	target.On("BlacklistPlugin", mock.Anything, "/p/b.dll").Return(errors.New("denied"))

	rs := NewRestoreService(service, target, zaptest.NewLogger(t).Sugar())
	result, err := rs.RestoreLatest(ctx, DefaultRestoreOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Groups)
	assert.Equal(t, 1, result.Blacklisted)
	assert.Equal(t, "test", result.Version)
	target.AssertExpectations(t)
}

func TestRestoreService_InputsOnly(t *testing.T) {
	service := newBackupService(t)
	ctx := context.Background()
	name, err := service.CreateBackup(ctx, &backup.Data{Inputs: guitarSnapshot(), Blacklist: []string{"/p/a.dll"}})
	require.NoError(t, err)

	target := new(MockTarget)
	target.On("RestoreInputs", mock.Anything, guitarSnapshot()).Return(1, nil)

	rs := NewRestoreService(service, target, zaptest.NewLogger(t).Sugar())
	_, err = rs.RestoreFromBackup(ctx, name, RestoreOptions{RestoreInputs: true})
	require.NoError(t, err)
	target.AssertNotCalled(t, "BlacklistPlugin", mock.Anything, mock.Anything)
}

func TestRestoreService_InputsFailure(t *testing.T) {
	service := newBackupService(t)
	ctx := context.Background()
	name, err := service.CreateBackup(ctx, &backup.Data{Inputs: guitarSnapshot()})
	require.NoError(t, err)

	target := new(MockTarget)
	target.On("RestoreInputs", mock.Anything, mock.Anything).Return(0, domain.ErrTransitionInFlight)

	rs := NewRestoreService(service, target, zaptest.NewLogger(t).Sugar())
	_, err = rs.RestoreFromBackup(ctx, name, DefaultRestoreOptions())
	assert.ErrorIs(t, err, domain.ErrTransitionInFlight)
}

func TestRestoreService_NoBackups(t *testing.T) {
	rs := NewRestoreService(newBackupService(t), new(MockTarget), zaptest.NewLogger(t).Sugar())
	_, err := rs.RestoreLatest(context.Background(), DefaultRestoreOptions())
	assert.ErrorIs(t, err, backup.ErrNoBackups)
}
