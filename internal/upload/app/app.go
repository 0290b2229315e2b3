package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	httpHandler "github.com/anthanhphan/go-upload-gateway/internal/upload/adapter/inbound/http"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/adapter/outbound/objectstore"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/adapter/outbound/recorder"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/config"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/service"
	"github.com/anthanhphan/go-upload-gateway/pkg/idgen"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/redis/go-redis/v9"
)

type App struct {
	cfg      *config.Config
	server   *httpHandler.Server
	service  *service.UploadServiceImpl
	recorder *recorder.PostgresRecorder
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Initialize Redis and Snowflake IDGen
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	redisClock := idgen.NewRedisClock(redisClient)
	idGen, err := idgen.New(cfg.Upload.NodeID, redisClock)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake: %w", err)
	}

	// 4. Outbound adapters
	ctx := context.Background()
	objects, err := objectstore.New(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("failed to init object store: %w", err)
	}

	fileRecorder, err := recorder.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init file recorder: %w", err)
	}

	// 5. Upload engine
	svc := service.NewUploadService(cfg, objects, idGen, service.SystemClock{})

	// 6. HTTP Server
	httpServer := httpHandler.NewServer(cfg, svc, fileRecorder)

	return &App{
		cfg:      cfg,
		server:   httpServer,
		service:  svc,
		recorder: fileRecorder,
	}, nil
}

func (a *App) Run() error {
	// Start expiry reaper
	a.service.StartReaper()

	// Start HTTP
	logger.Infow("Upload gateway starting", "addr", a.cfg.Server.Addr)
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
		logger.Errorw("Gateway server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down upload gateway")
	a.service.StopReaper()
	if err := a.server.Stop(context.Background()); err != nil {
		logger.Errorw("Gateway shutdown error", "error", err.Error())
		if runErr == nil {
			runErr = err
		}
	}
	if err := a.recorder.Close(); err != nil {
		logger.Errorw("Recorder close error", "error", err.Error())
	}

	return runErr
}
