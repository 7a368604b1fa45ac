package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"taleweaver/internal/adapter/repo"
	"taleweaver/internal/http/handlers"
	"taleweaver/internal/http/httpapi"
	"taleweaver/internal/infra"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/queue"
	"taleweaver/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	stories := repo.NewStoryRepository(dbpool)
	jobs := repo.NewJobRepository(dbpool)
	workQueue := queue.NewPostgresQueue(dbpool, cfg.QueueLeaseTimeout, cfg.QueuePollInterval)

	service := pipeline.NewService(stories, jobs, workQueue, logger)

	app := &handlers.App{
		Service:        service,
		Stories:        stories,
		Jobs:           jobs,
		Store:          fileStore,
		StorageBaseURL: cfg.StorageBaseURL,
		Logger:         logger,
	}

	router := httpapi.NewRouter(app, logger, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
