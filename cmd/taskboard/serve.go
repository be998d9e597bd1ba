package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/taskboard/api/handler"
	"github.com/fastygo/taskboard/internal/config"
	boltInfra "github.com/fastygo/taskboard/internal/infrastructure/bolt"
	"github.com/fastygo/taskboard/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/taskboard/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/taskboard/internal/infrastructure/redis"
	"github.com/fastygo/taskboard/internal/middleware"
	"github.com/fastygo/taskboard/internal/notify"
	"github.com/fastygo/taskboard/internal/platform/auth"
	"github.com/fastygo/taskboard/internal/platform/realtime"
	"github.com/fastygo/taskboard/internal/platform/storage"
	"github.com/fastygo/taskboard/internal/router"
	"github.com/fastygo/taskboard/internal/services/lifecycle"
	"github.com/fastygo/taskboard/pkg/httpcontext"
	boltRepo "github.com/fastygo/taskboard/repository/bolt"
	"github.com/fastygo/taskboard/repository/postgres"
	redisRepo "github.com/fastygo/taskboard/repository/redis"
	"github.com/fastygo/taskboard/usecase/app"
	"github.com/fastygo/taskboard/usecase/board"
	"github.com/fastygo/taskboard/usecase/session"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task board HTTP shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, log)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, log); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}
	manager.Register("postgres", func(context.Context) error {
		pgInfra.Close(pool, log)
		return nil
	})

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, log)
	if err != nil {
		_ = manager.Shutdown(context.Background())
		return fmt.Errorf("redis connection failed: %w", err)
	}
	manager.Register("redis", func(context.Context) error {
		return redisClient.Close()
	})

	blobDB, err := boltInfra.Open(cfg.Storage.Path, boltRepo.ObjectsBucket)
	if err != nil {
		_ = manager.Shutdown(context.Background())
		return fmt.Errorf("open blob store: %w", err)
	}
	manager.Register("blob_store", func(context.Context) error {
		return blobDB.Close()
	})

	sessionDB, err := boltInfra.Open(cfg.Session.Path, boltRepo.SessionBucket)
	if err != nil {
		_ = manager.Shutdown(context.Background())
		return fmt.Errorf("open session store: %w", err)
	}
	manager.Register("session_store", func(context.Context) error {
		return sessionDB.Close()
	})

	center := notify.NewCenter(0, log.Named("notify"))

	provider := auth.NewProvider(
		postgres.NewUserRepository(pool),
		redisRepo.NewSessionRepository(redisClient, cfg.Auth.RefreshTTL),
		boltRepo.NewSessionCache(sessionDB),
		redisRepo.NewRevocationFeed(redisClient, cfg.Redis.RevocationChannel),
		auth.Config{
			JWTSecret:           cfg.Auth.Secret,
			Issuer:              cfg.Auth.Issuer,
			AccessTTL:           cfg.Auth.AccessTTL,
			RefreshInterval:     cfg.Auth.RefreshInterval,
			RequireConfirmation: cfg.Auth.RequireConfirmation,
			MinPasswordLength:   cfg.Auth.MinPasswordLength,
		},
		log.Named("auth"),
	)
	if err := manager.Start(appCtx, "auth_provider", provider.Start, func(ctx context.Context) error {
		provider.Stop(ctx)
		return nil
	}); err != nil {
		_ = manager.Shutdown(context.Background())
		return err
	}

	listener := realtime.NewListener(pool, cfg.Realtime.Channel, log.Named("realtime"))
	if err := manager.Start(appCtx, "realtime", listener.Start, func(context.Context) error {
		listener.Stop()
		return nil
	}); err != nil {
		// boards retry the subscription on mount and degrade to manual reloads
		log.Warn("realtime listener unavailable at boot", zap.Error(err))
		manager.Register("realtime", func(context.Context) error {
			listener.Stop()
			return nil
		})
	}

	blobRepo := boltRepo.NewBlobRepository(blobDB)
	blobs := storage.NewService(blobRepo, storage.Config{
		BaseURL:        cfg.Storage.PublicBaseURL,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}, log.Named("storage"))

	tasks := postgres.NewTaskRepository(pool)
	ctrl := session.New(provider, center, log.Named("session"))
	application := app.New(ctrl, func() *board.Board {
		return board.New(tasks, blobs, listener, ctrl, center, log.Named("board"), board.Config{
			Bucket: cfg.Storage.Bucket,
		})
	}, log.Named("app"))

	if err := manager.Start(appCtx, "app", application.Start, func(context.Context) error {
		application.Stop()
		return nil
	}); err != nil {
		_ = manager.Shutdown(context.Background())
		return err
	}

	mon := monitor.New(10*time.Second, log.Named("monitor"),
		monitor.PostgresCheck(pool),
		monitor.RedisCheck(redisClient),
		monitor.Check{Name: "blob_store", Count: blobRepo.Count},
		monitor.Check{Name: "realtime", Ping: listener.Ping},
	)
	mon.Start()
	manager.Register("monitor", func(context.Context) error {
		mon.Stop()
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)
	taskHandler := apiHandler.NewTaskHandler(cfg.Storage.MaxUploadBytes, ctxAdapter, log)
	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(ctrl, ctxAdapter, log),
		Task:    taskHandler,
		Compose: apiHandler.NewComposeHandler(taskHandler, ctxAdapter, log),
		View:    apiHandler.NewViewHandler(application, center, ctxAdapter, log),
		Storage: apiHandler.NewStorageHandler(blobs, ctxAdapter, log),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, log),
	}

	r := router.New(handlers, middleware.RequireSession(application, log))

	server := &fasthttp.Server{
		Handler:            middleware.AccessLog(log.Named("http"))(r.Handler),
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		MaxConnsPerIP:      cfg.HTTP.MaxConn,
		MaxRequestBodySize: cfg.HTTP.MaxBodySize,
		Name:               cfg.AppName,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			serveErr <- err
			cancel()
		}
	}()
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	var result error
	select {
	case result = <-serveErr:
		log.Error("server crashed", zap.Error(result))
	default:
	}

	if err := manager.Shutdown(context.Background()); err != nil {
		log.Error("graceful shutdown error", zap.Error(err))
	}
	return result
}
