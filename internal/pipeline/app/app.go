package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"

	httpHandler "github.com/flipfile/flipfile/internal/pipeline/adapter/inbound/http"
	"github.com/flipfile/flipfile/internal/pipeline/adapter/outbound/blobfs"
	"github.com/flipfile/flipfile/internal/pipeline/adapter/outbound/kvstore"
	"github.com/flipfile/flipfile/internal/pipeline/adapter/outbound/screener"
	"github.com/flipfile/flipfile/internal/pipeline/config"
	"github.com/flipfile/flipfile/internal/pipeline/port"
	"github.com/flipfile/flipfile/internal/pipeline/service"
	"github.com/flipfile/flipfile/pkg/vault"
)

// App owns the wired pipeline: metadata store, blob store, screener,
// file service, HTTP server, and the background sweep scheduler.
type App struct {
	cfg       *config.Config
	server    *httpHandler.Server
	store     port.MetadataStore
	scheduler gocron.Scheduler
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Metadata store
	store, err := newMetadataStore(cfg)
	if err != nil {
		return nil, err
	}

	// 4. Blob store and vault
	blobs, err := blobfs.New(cfg.Storage.Root, cfg.Storage.StagingDir, cfg.Storage.WipePasses)
	if err != nil {
		return nil, fmt.Errorf("failed to init blob store: %w", err)
	}

	masterKey, err := cfg.Encryption.MasterKey()
	if err != nil {
		return nil, err
	}
	fileVault, err := vault.New(masterKey, cfg.App.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to init vault: %w", err)
	}

	// 5. Screener & Service
	svc := service.NewFileService(cfg, store, blobs, newScreener(cfg), fileVault)

	// 6. Sweep scheduler
	scheduler, err := newSweepScheduler(cfg, svc)
	if err != nil {
		return nil, err
	}

	// 7. HTTP Server
	httpServer := httpHandler.NewServer(cfg, svc)

	return &App{
		cfg:       cfg,
		server:    httpServer,
		store:     store,
		scheduler: scheduler,
	}, nil
}

// newMetadataStore builds the record store selected by the config.
func newMetadataStore(cfg *config.Config) (port.MetadataStore, error) {
	switch cfg.Metadata.Backend {
	case "", "memory":
		return kvstore.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Metadata.Redis.Addr,
			Password: cfg.Metadata.Redis.Password,
			DB:       cfg.Metadata.Redis.DB,
		})
		return kvstore.NewRedisStore(client), nil
	case "bolt":
		return kvstore.OpenBoltStore(cfg.Metadata.BoltPath)
	default:
		return nil, fmt.Errorf("unknown metadata backend: %q", cfg.Metadata.Backend)
	}
}

// newScreener builds the content screener selected by the config.
func newScreener(cfg *config.Config) port.Screener {
	if cfg.Screener.Backend == "clamav" {
		timeout := time.Duration(cfg.Screener.ClamAV.TimeoutMS) * time.Millisecond
		return screener.NewClamAV(cfg.Screener.ClamAV.Addr, timeout)
	}
	return screener.NewHeuristic()
}

// newSweepScheduler runs the expiry sweep on a fixed interval. Singleton
// mode keeps a slow sweep from overlapping the next one.
func newSweepScheduler(cfg *config.Config, svc port.FileService) (gocron.Scheduler, error) {
	interval := time.Duration(cfg.App.SweepIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to init scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			if _, err := svc.Sweep(ctx); err != nil {
				logger.Errorw("Sweep failed", "error", err.Error())
			}
		}, context.Background()),
		gocron.WithName("expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}

	return scheduler, nil
}

func (a *App) Run() error {
	// Start sweep scheduler
	a.scheduler.Start()

	// Start HTTP
	logger.Infow("Pipeline server starting", "addr", a.cfg.Server.Addr)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("http server failed: %w", err)
		logger.Errorw("Pipeline server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down pipeline services")
	if err := a.scheduler.Shutdown(); err != nil {
		logger.Errorw("Scheduler shutdown error", "error", err.Error())
	}
	if err := a.server.Stop(context.Background()); err != nil {
		logger.Errorw("Server shutdown error", "error", err.Error())
		if runErr == nil {
			runErr = err
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Errorw("Metadata store close error", "error", err.Error())
	}

	return runErr
}
