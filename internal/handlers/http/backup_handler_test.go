package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	infrabackup "jamlink/internal/infrastructure/backup"
	"jamlink/internal/infrastructure/middleware"
	"jamlink/pkg/backup"
)

type MockBackups struct {
	mock.Mock
}

func (m *MockBackups) BackupNow(ctx context.Context, force bool) (string, error) {
	args := m.Called(ctx, force)
	return args.String(0), args.Error(1)
}

func (m *MockBackups) ListBackups(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockBackups) RestoreFromBackup(ctx context.Context, name string, options infrabackup.RestoreOptions) (infrabackup.RestoreResult, error) {
	args := m.Called(ctx, name, options)
	return args.Get(0).(infrabackup.RestoreResult), args.Error(1)
}

func (m *MockBackups) RestoreLatest(ctx context.Context, options infrabackup.RestoreOptions) (infrabackup.RestoreResult, error) {
	args := m.Called(ctx, options)
	return args.Get(0).(infrabackup.RestoreResult), args.Error(1)
}

func newBackupRouter(backups *MockBackups) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	NewBackupHandler(backups, backups, nil).SetupRoutes(router)
	return router
}

func TestBackupHandler_ListAndCreate(t *testing.T) {
	backups := &MockBackups{}
	router := newBackupRouter(backups)

	backups.On("ListBackups", mock.Anything).Return(nil, nil).Once()
	w := do(router, http.MethodGet, "/api/v1/backups", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"backups":[],"count":0}`, w.Body.String())

	backups.On("BackupNow", mock.Anything, true).Return("backup-20260301-120000.000.json", nil).Once()
	w = do(router, http.MethodPost, "/api/v1/backups", nil, "")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "backup-20260301-120000.000.json")

	backups.AssertExpectations(t)
}

func TestBackupHandler_Restore(t *testing.T) {
	backups := &MockBackups{}
	router := newBackupRouter(backups)
	name := "backup-20260301-120000.000.json"

	backups.On("RestoreFromBackup", mock.Anything, name, infrabackup.DefaultRestoreOptions()).
		Return(infrabackup.RestoreResult{Backup: name, Groups: 2}, nil).Once()
	w := do(router, http.MethodPost, "/api/v1/backups/"+name+"/restore", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"groups":2`)

	inputsOnly := infrabackup.RestoreOptions{RestoreInputs: true}
	backups.On("RestoreFromBackup", mock.Anything, name, inputsOnly).
		Return(infrabackup.RestoreResult{Backup: name, Groups: 1}, nil).Once()
	w = do(router, http.MethodPost, "/api/v1/backups/"+name+"/restore", map[string]any{"restore_inputs": true}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	backups.On("RestoreFromBackup", mock.Anything, "nope", mock.Anything).
		Return(infrabackup.RestoreResult{}, backup.ErrInvalidName).Once()
	w = do(router, http.MethodPost, "/api/v1/backups/nope/restore", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	backups.On("RestoreLatest", mock.Anything, infrabackup.DefaultRestoreOptions()).
		Return(infrabackup.RestoreResult{}, backup.ErrNoBackups).Once()
	w = do(router, http.MethodPost, "/api/v1/backups/latest/restore", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	backups.AssertExpectations(t)
}
