package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/services"
	infrabackup "jamlink/internal/infrastructure/backup"
	"jamlink/internal/infrastructure/middleware"
	"jamlink/pkg/backup"
	apperrors "jamlink/pkg/errors"
)

type BackupCreator interface {
	BackupNow(ctx context.Context, force bool) (string, error)
}

type BackupRestorer interface {
	ListBackups(ctx context.Context) ([]string, error)
	RestoreFromBackup(ctx context.Context, name string, options infrabackup.RestoreOptions) (infrabackup.RestoreResult, error)
	RestoreLatest(ctx context.Context, options infrabackup.RestoreOptions) (infrabackup.RestoreResult, error)
}

// BackupHandler lists, creates and restores input backups. Every route
// needs a controller token when auth is configured.
type BackupHandler struct {
	creator  BackupCreator
	restorer BackupRestorer
	auth     services.AuthService
}

func NewBackupHandler(creator BackupCreator, restorer BackupRestorer, auth services.AuthService) *BackupHandler {
	return &BackupHandler{creator: creator, restorer: restorer, auth: auth}
}

func (h *BackupHandler) SetupRoutes(router *gin.Engine) {
	group := router.Group("/api/v1/backups")
	if h.auth != nil {
		group.Use(middleware.AuthMiddleware(h.auth, domain.RoleController))
	}
	group.GET("", h.ListBackups)
	group.POST("", h.CreateBackup)
	group.POST("/latest/restore", h.RestoreLatest)
	group.POST("/:name/restore", h.RestoreBackup)
}

func (h *BackupHandler) ListBackups(c *gin.Context) {
	names, err := h.restorer.ListBackups(c.Request.Context())
	if err != nil {
		c.Error(backupError(err))
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"backups": names, "count": len(names)})
}

func (h *BackupHandler) CreateBackup(c *gin.Context) {
	name, err := h.creator.BackupNow(c.Request.Context(), true)
	if err != nil {
		c.Error(backupError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"backup": name})
}

func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	options, ok := restoreOptions(c)
	if !ok {
		return
	}
	result, err := h.restorer.RestoreFromBackup(c.Request.Context(), c.Param("name"), options)
	if err != nil {
		c.Error(backupError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *BackupHandler) RestoreLatest(c *gin.Context) {
	options, ok := restoreOptions(c)
	if !ok {
		return
	}
	result, err := h.restorer.RestoreLatest(c.Request.Context(), options)
	if err != nil {
		c.Error(backupError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// restoreOptions reads an optional body; an empty body restores everything.
func restoreOptions(c *gin.Context) (infrabackup.RestoreOptions, bool) {
	options := infrabackup.DefaultRestoreOptions()
	if c.Request.ContentLength == 0 {
		return options, true
	}
	return options, bind(c, &options)
}

func backupError(err error) error {
	switch {
	case errors.Is(err, backup.ErrNotFound), errors.Is(err, backup.ErrNoBackups):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, err.Error(), http.StatusNotFound)
	case errors.Is(err, backup.ErrInvalidName):
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, err.Error(), http.StatusBadRequest)
	}
	return apperrors.FromDomain(err)
}
