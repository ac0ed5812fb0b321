package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"downloads-bridge/internal/channel"
	"downloads-bridge/internal/cleanup"
	"downloads-bridge/internal/config"
	"downloads-bridge/internal/downloads"
	grpcServer "downloads-bridge/internal/grpc"
	"downloads-bridge/internal/handlers"
	"downloads-bridge/internal/mediastore"
	"downloads-bridge/internal/platform"
	"downloads-bridge/internal/postgres"
	"downloads-bridge/internal/redis"
	"downloads-bridge/internal/saver"
	"downloads-bridge/internal/storage"
)

func main() {
	logger := hclog.Default().Named("bridge")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if level := hclog.LevelFromString(cfg.LogLevel); level != hclog.NoLevel {
		logger.SetLevel(level)
	}

	info, err := platform.New(cfg.Platform.Version, cfg.Platform.MediaStoreMinVersion, cfg.Platform.Mode)
	if err != nil {
		logger.Error("invalid platform configuration", "error", err)
		os.Exit(1)
	}

	legacy, err := storage.NewLegacyBackend(cfg.Storage.DownloadsDir)
	if err != nil {
		logger.Error("failed to initialize downloads directory", "error", err)
		os.Exit(1)
	}

	// The media store only exists on platforms that expose it
	var (
		modern storage.Backend
		store  *mediastore.Store
		lister handlers.Lister
		pinger handlers.Pinger
	)
	if info.ModernStorageAvailable() {
		catalog, closeCatalog, err := openCatalog(context.Background(), cfg)
		if err != nil {
			logger.Error("failed to open media catalog", "catalog", cfg.Media.Catalog, "error", err)
			os.Exit(1)
		}
		defer closeCatalog()
		if p, ok := catalog.(handlers.Pinger); ok {
			pinger = p
		}

		store, err = mediastore.NewStore(catalog, cfg.Media.VolumeDir, logger)
		if err != nil {
			logger.Error("failed to initialize media store", "error", err)
			os.Exit(1)
		}
		modern = storage.NewModernBackend(store, cfg.Media.MimeType, storage.WithRollbackPending(cfg.Media.RollbackPending))
		lister = store
	}

	fileSaver := saver.New(info, modern, legacy, logger)
	logger.Info("storage selected",
		"platform_version", info.Version(),
		"mode", info.Mode(),
		"backend", fileSaver.BackendName(),
	)

	// Channels, transports
	messenger := channel.NewMessenger(logger)
	server := grpcServer.NewServer(cfg.GRPC.Port, cfg.GRPC.MaxMessageBytes, messenger, logger)
	downloadChannel := downloads.NewChannel(fileSaver, server.GetStreamManager(), logger)
	messenger.SetMethodCallHandler(cfg.Channel.Name, downloadChannel)

	router := handlers.NewRouter(
		handlers.NewChannelHandler(messenger),
		handlers.NewFilesHandler(fileSaver, lister),
		handlers.NewStatusHandler(fileSaver.BackendName(), pinger, downloadChannel.Metrics()),
		logger,
	)

	httpMux := http.NewServeMux()
	httpMux.Handle("/debug/pprof/", http.DefaultServeMux)
	httpMux.Handle("/", router)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: httpMux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if store != nil {
		cleanup.RunPeriodic(ctx, store, cfg.Media.PendingTTL, cfg.Media.CleanupInterval, logger)
	}

	go func() {
		logger.Info("HTTP server starting", "port", cfg.HTTP.Port, "channel", cfg.Channel.Name)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("gRPC server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-quit
	if sig == syscall.SIGQUIT {
		dumpGoroutines(logger, "bridge-server")
		// After dump, wait for shutdown signal
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
	}

	logger.Info("shutting down servers")
	cancel()
	server.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}

	logger.Info("servers exited")
}

// openCatalog opens the configured media catalog and returns a function that releases it
func openCatalog(ctx context.Context, cfg *config.Config) (mediastore.Catalog, func(), error) {
	switch cfg.Media.Catalog {
	case "memory":
		return mediastore.NewMemoryCatalog(), func() {}, nil
	case "postgres":
		pgClient, err := postgres.NewClient(ctx, cfg.Postgres.URL, cfg.Postgres.PoolSize)
		if err != nil {
			return nil, nil, err
		}
		return pgClient, pgClient.Close, nil
	}

	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
	if err != nil {
		return nil, nil, err
	}
	return redisClient, func() { redisClient.Close() }, nil
}

// dumpGoroutines writes a goroutine dump to a file, falling back to stderr
func dumpGoroutines(logger hclog.Logger, serverName string) {
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("goroutine-dump-%s-%s.txt", serverName, timestamp)

	file, err := os.Create(filename)
	if err != nil {
		logger.Warn("failed to create goroutine dump file", "error", err)
		fmt.Fprintf(os.Stderr, "\n=== Goroutine Dump for %s at %s ===\n", serverName, time.Now().Format(time.RFC3339))
		pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		return
	}
	defer file.Close()

	fmt.Fprintf(file, "=== Goroutine Dump for %s at %s ===\n", serverName, time.Now().Format(time.RFC3339))
	fmt.Fprintf(file, "Total goroutines: %d\n\n", runtime.NumGoroutine())
	pprof.Lookup("goroutine").WriteTo(file, 2)

	logger.Info("goroutine dump written", "file", filename)
}
