// API-сервис: REST, WebSocket-шлюз, присутствие и уведомления.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/chatlink/internal/config"
	"github.com/chatlink/internal/fileserver"
	"github.com/chatlink/internal/friends"
	"github.com/chatlink/internal/groups"
	"github.com/chatlink/internal/handler"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/messaging"
	"github.com/chatlink/internal/presence"
	"github.com/chatlink/internal/push"
	"github.com/chatlink/internal/receipts"
	"github.com/chatlink/internal/registry"
	"github.com/chatlink/internal/repository"
	"github.com/chatlink/internal/startup"
	"github.com/chatlink/internal/storage"
	"github.com/chatlink/internal/storage/memory"
	"github.com/chatlink/internal/ws"
	"github.com/chatlink/migrations"
)

// Флаги командной строки.
var (
	devMode     bool
	migrateOnly bool
	memoryMode  bool
)

var rootCmd = &cobra.Command{
	Use:          "chatlink-api",
	Short:        "Realtime messaging API: REST endpoints and the WebSocket gateway.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().BoolVar(&devMode, "dev", false,
		"start with embedded PostgreSQL (no external DB required)")
	rootCmd.Flags().BoolVar(&migrateOnly, "migrate", false,
		"apply database migrations and exit")
	rootCmd.Flags().BoolVar(&memoryMode, "memory", false,
		"keep all data in process memory (no database); data is lost on exit")
	rootCmd.MarkFlagsMutuallyExclusive("memory", "dev")
	rootCmd.MarkFlagsMutuallyExclusive("memory", "migrate")
}

func main() {
	logger.SetPrefix("api")
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run() error {
	logger.Info("starting API service")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	var store storage.Gateway
	if memoryMode {
		logger.Info("memory mode: data is not persisted")
		store = memory.NewGateway()
	} else {
		if devMode {
			embeddedDB, err := startEmbeddedPostgres(cfg)
			if err != nil {
				return fmt.Errorf("embedded postgres: %w", err)
			}
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := embeddedDB.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
		if err != nil {
			return fmt.Errorf("parse db config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 4

		pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
		defer pool.Close()

		migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = startup.RunMigrations(migCtx, pool, migrations.Files)
		migCancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		if migrateOnly {
			return nil
		}
		logger.Info("database connected, migrations applied")
		store = repository.NewStore(pool)
	}
	startup.ResetPresence(store, 5*time.Second)

	var cache storage.PresenceCache
	if cfg.Redis.URL != "" {
		cache = startup.ConnectRedisWithRetry(cfg.Redis.URL, 30*time.Second, "")
	} else {
		cache = memory.NewPresenceCache()
	}
	defer cache.Close()

	reg := registry.New()
	pushClient := push.NewClient(cfg.PushServiceURL)
	if pushClient.Enabled() {
		logger.Infof("push notifications via %s", cfg.PushServiceURL)
	}

	tracker := presence.NewTracker(store, reg, cache, cfg.PresenceTTL)
	friendSvc := friends.NewService(store, reg)
	groupMgr := groups.NewManager(store, reg)
	router := messaging.NewRouter(store, groupMgr, reg, pushClient)
	receiptTracker := receipts.NewTracker(store)
	gw := ws.NewGateway(reg, tracker, router, receiptTracker, ws.Options{
		MaxConns:        cfg.MaxWSConnections,
		SendBufferSize:  cfg.WSSendBufferSize,
		FramesPerSecond: cfg.WSFramesPerSecond,
	})

	gwCtx, gwCancel := context.WithCancel(context.Background())
	var gwWg sync.WaitGroup
	gwWg.Add(1)
	go func() {
		defer gwWg.Done()
		gw.Run(gwCtx)
	}()

	r := handler.NewRouter(handler.Handlers{
		Users:    handler.NewUserHandler(friendSvc, tracker),
		Friends:  handler.NewFriendHandler(friendSvc),
		Messages: handler.NewMessageHandler(router, receiptTracker),
		Groups:   handler.NewGroupHandler(groupMgr),
		Files:    handler.NewFileHandler(fileserver.New(cfg.UploadDir, cfg.MaxUploadSize)),
		WS:       handler.NewWSHandler(gw, store, cfg.CORSAllowedOrigins),
		Config:   handler.NewConfigHandler(cfg),
		Push:     handler.NewPushHandler(pushClient),
	}, handler.RouterOptions{CORSAllowedOrigins: cfg.CORSAllowedOrigins})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	gwCancel()
	gwWg.Wait()
	logger.Info("gateway stopped")
	return serveErr
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chatlink"
		password = "chatlink_secret"
		database = "chatlink"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "chatlink-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
