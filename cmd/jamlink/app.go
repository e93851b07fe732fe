package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
	"jamlink/internal/core/services"
	httphandlers "jamlink/internal/handlers/http"
	"jamlink/internal/infrastructure/audio"
	infrabackup "jamlink/internal/infrastructure/backup"
	"jamlink/internal/infrastructure/events"
	"jamlink/internal/infrastructure/middleware"
	"jamlink/internal/infrastructure/monitoring"
	"jamlink/internal/infrastructure/repositories"
	"jamlink/internal/infrastructure/session"
	wsbridge "jamlink/internal/infrastructure/signal"
	"jamlink/pkg/backup"
	"jamlink/pkg/circuitbreaker"
	"jamlink/pkg/config"
	"jamlink/pkg/dispatch"
	"jamlink/pkg/logger"
)

// app is the assembled client: the control core, its collaborators and the
// HTTP surface in front of it.
type app struct {
	cfg *config.Config
	log *zap.SugaredLogger

	instanceID   string
	repoFactory  *repositories.RepositoryFactory
	settings     ports.SettingsRepository
	plugins      ports.PluginRepository
	hub          *events.Hub
	dispatcher   *dispatch.Dispatcher
	tracks       *audio.TrackBank
	gateway      *session.LoopbackGateway
	preparer     *session.InputsPreparer
	client       *services.JamClient
	sessionStats *services.MetricsService
	auth         services.AuthService
	health       *monitoring.HealthChecker
	ws           *wsbridge.WebSocketServer
	backups      *backupStack
	router       *gin.Engine
}

type backupStack struct {
	scheduler *infrabackup.Scheduler
	restorer  *infrabackup.RestoreService
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, reg prometheus.Registerer) (*app, error) {
	a := &app{
		cfg:          cfg,
		log:          log,
		instanceID:   uuid.NewString(),
		sessionStats: services.NewMetricsService(),
	}
	metrics := services.MultiRecorder{monitoring.NewPrometheusCollector(reg), a.sessionStats}

	a.repoFactory = repositories.NewRepositoryFactory(ctx, cfg, log.Named("repositories"))
	a.settings = a.repoFactory.CreateSettingsRepository()
	a.plugins = a.repoFactory.CreatePluginRepository()

	a.hub = events.NewHub(cfg.WebSocket.SendBuffer, log.Named("events"))
	publisher := events.MultiPublisher{a.hub}
	if client := a.repoFactory.RedisClient(); client != nil {
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
		breaker.OnStateChange(func(from, to circuitbreaker.State) {
			log.Warnw("Event bus circuit breaker changed state", "from", from, "to", to)
		})
		bus := events.NewRedisBus(client, cfg.Redis.KeyPrefix, a.instanceID, breaker, log.Named("bus"))
		publisher = append(publisher, bus)
		log.Infow("Mirroring events to Redis", "channel", bus.Channel(), "instance_id", a.instanceID)
	}
	notifier := events.NewNotifier(publisher, log.Named("notifier"))

	a.dispatcher = dispatch.New(cfg.Session.DispatchBuffer, log.Named("dispatch"))
	go a.dispatcher.Run(ctx)

	host, err := session.NewHost(cfg.Session.HostVariant, log.Named("host"))
	if err != nil {
		return nil, err
	}
	viewMode, err := domain.ParseViewMode(cfg.Session.ViewMode)
	if err != nil {
		return nil, err
	}

	transmit := audio.NewTransmitTable()
	a.tracks = audio.NewTrackBank("jamlink-"+a.instanceID, transmit.Allowed, log.Named("audio"))

	a.gateway = session.NewLoopbackGateway(session.GatewayConfig{Latency: cfg.Session.LoopbackLatency}, log.Named("gateway"))
	scanner := session.NewDirectoryScanner(cfg.Plugins.Directories, log.Named("scanner"))
	a.preparer = session.NewInputsPreparer(cfg.Session.InputsPrepareDelay, a.tracks, log.Named("inputs"))
	streamer := session.NewPreviewStreamer(log.Named("stream"))

	a.client = services.NewJamClient(services.JamClientDeps{
		Dispatcher:           a.dispatcher,
		Gateway:              a.gateway,
		Preparer:             a.preparer,
		Scanner:              scanner,
		Streamer:             streamer,
		Notifier:             notifier,
		Host:                 host,
		Settings:             a.settings,
		Plugins:              a.plugins,
		Publisher:            publisher,
		Transmit:             transmit,
		Metrics:              metrics,
		Logger:               log.Named("client"),
		DefaultGroupName:     cfg.Session.DefaultGroupName,
		ViewMode:             viewMode,
		SubchannelsSupported: cfg.Session.SubchannelsSupported,
		RoomListTTL:          cfg.Session.RoomListTTL,
	})
	a.gateway.Bind(a.client)
	scanner.Bind(a.client)
	a.preparer.Bind(a.client)
	streamer.Bind(a.client)

	if cfg.Auth.Enabled {
		a.auth = services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.PairingCode, cfg.Auth.TokenTTL, cfg.Auth.RefreshTTL)
	}

	if cfg.Backup.Enabled {
		if a.backups, err = a.newBackupStack(); err != nil {
			return nil, err
		}
	}

	a.health = monitoring.NewHealthChecker()
	a.health.AddDispatcherCheck(a.dispatcher, 15*time.Second, 2*time.Second)
	a.health.AddPluginStoreCheck(a.plugins, 30*time.Second, 2*time.Second)
	if redisClient := a.repoFactory.RedisClient(); redisClient != nil {
		a.health.AddRedisCheck(redisClient, 15*time.Second, 2*time.Second)
	}

	a.ws = wsbridge.NewWebSocketServer(a.client, a.hub, a.auth, wsbridge.OptionsFromConfig(cfg), log.Named("websocket"))
	a.router = a.newRouter(time.Now())
	return a, nil
}

func (a *app) newBackupStack() (*backupStack, error) {
	storage, err := backup.NewFileStorage(a.cfg.Backup.Directory)
	if err != nil {
		return nil, err
	}
	service := backup.NewBackupService(storage, version)
	log := a.log.Named("backup")
	return &backupStack{
		scheduler: infrabackup.NewScheduler(service, a.client, a.plugins, infrabackup.Config{
			Interval: a.cfg.Backup.Interval,
			Keep:     a.cfg.Backup.Keep,
			Metadata: map[string]string{
				"instance_id": a.instanceID,
				"host":        a.cfg.Session.HostVariant,
			},
		}, log),
		restorer: infrabackup.NewRestoreService(service, a.client, log),
	}, nil
}

// start restores state and launches the background loops.
func (a *app) start(ctx context.Context) error {
	// a missing snapshot has to be detected before Start saves the default group
	_, loadErr := a.settings.Load(ctx)
	freshInputs := errors.Is(loadErr, domain.ErrSnapshotNotFound)

	if err := a.client.Start(ctx); err != nil {
		return err
	}
	for _, path := range a.cfg.Plugins.Blacklist {
		if err := a.client.BlacklistPlugin(ctx, path); err != nil {
			a.log.Warnw("Failed to blacklist configured plugin", "path", path, "error", err)
		}
	}
	if a.cfg.Plugins.ScanOnStart {
		if err := a.client.StartScan(ctx); err != nil {
			a.log.Warnw("Plugin scan not started", "error", err)
		}
	}
	go a.gateway.RunDirectory(ctx, directoryInterval(a.cfg.Session.RoomListTTL))

	if a.backups != nil {
		if a.cfg.Backup.RestoreOnStart && freshInputs {
			result, err := a.backups.restorer.RestoreLatest(ctx, infrabackup.DefaultRestoreOptions())
			switch {
			case errors.Is(err, backup.ErrNoBackups):
				a.log.Info("No backup to restore on start")
			case err != nil:
				a.log.Warnw("Failed to restore latest backup", "error", err)
			default:
				a.log.Infow("Restored inputs from backup", "backup", result.Backup, "groups", result.Groups)
			}
		}
		go a.backups.scheduler.Start(ctx)
	}

	go a.health.StartBackgroundChecks(ctx)
	return nil
}

// close stops everything in dependency order. The HTTP server must already
// be shut down.
func (a *app) close(ctx context.Context) {
	a.ws.Shutdown()

	if a.backups != nil {
		a.backups.scheduler.Stop()
		if _, err := a.backups.scheduler.BackupNow(ctx, false); err != nil {
			a.log.Warnw("Final backup failed", "error", err)
		}
	}
	if err := a.client.Close(ctx); err != nil {
		a.log.Errorw("Error closing client", "error", err)
	}
	a.gateway.Close()
	a.preparer.Close()
	a.dispatcher.Stop()
	a.hub.Close()

	if err := a.repoFactory.Close(); err != nil {
		a.log.Errorw("Error closing repository factory", "error", err)
	}
}

func directoryInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Minute
	}
	return ttl / 2
}

func (a *app) newRouter(startTime time.Time) *gin.Engine {
	cfg, log := a.cfg, a.log
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(log.Named("http").Desugar())),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
	)

	if a.auth != nil {
		httphandlers.NewAuthHandler(a.auth).SetupRoutes(router)
	}
	httphandlers.NewControlHandler(a.client, a.auth).SetupRoutes(router)
	if a.backups != nil {
		httphandlers.NewBackupHandler(a.backups.scheduler, a.backups.restorer, a.auth).SetupRoutes(router)
	}
	router.GET("/ws", gin.WrapF(a.ws.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		status := a.health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status.Status,
			"checks":      status.Checks,
			"timestamp":   status.Timestamp,
			"uptime":      time.Since(startTime).String(),
			"connections": a.ws.ConnectionCount(),
		})
	})
	router.GET("/ready", func(c *gin.Context) {
		if !a.health.IsReady(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": a.health.LastResults()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"session": a.sessionStats.Stats(),
			"tracks":  a.tracks.Stats(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}
	return router
}
