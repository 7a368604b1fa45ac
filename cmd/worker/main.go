package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taleweaver/internal/adapter/repo"
	"taleweaver/internal/infra"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/providers/narrative"
	"taleweaver/internal/providers/speech"
	"taleweaver/internal/providers/vision"
	"taleweaver/internal/queue"
	"taleweaver/internal/storage"
)

const retentionSweepInterval = time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	generator, err := narrative.NewOpenAIGenerator(narrative.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure narrative backend")
	}

	analyzer, err := vision.NewAzureAnalyzer(vision.AzureOptions{
		Endpoint: cfg.VisionEndpoint,
		APIKey:   cfg.VisionAPIKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure vision backend")
	}

	synthesizer, err := speech.NewAzureSynthesizer(speech.AzureOptions{
		Region:  cfg.SpeechRegion,
		APIKey:  cfg.SpeechAPIKey,
		BaseURL: cfg.SpeechBaseURL,
		Store:   fileStore,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure speech backend")
	}

	stories := repo.NewStoryRepository(pool)
	jobs := repo.NewJobRepository(pool)
	workQueue := queue.NewPostgresQueue(pool, cfg.QueueLeaseTimeout, cfg.QueuePollInterval)

	orchestrator := pipeline.NewOrchestrator(stories, jobs, generator, analyzer, synthesizer, pipeline.Timeouts{
		Narrative: cfg.NarrativeTimeout,
		Vision:    cfg.VisionTimeout,
		Speech:    cfg.SpeechTimeout,
	}, logger)

	go sweepTerminalJobs(ctx, jobs, cfg.JobRetention, logger)

	pipeline.NewWorker(workQueue, orchestrator, cfg.WorkerCount, logger).Run(ctx)
	logger.Info().Msg("worker: stopped")
}

// sweepTerminalJobs periodically deletes terminal jobs older than the
// retention window.
func sweepTerminalJobs(ctx context.Context, jobs *repo.JobRepositoryPG, retention time.Duration, logger infra.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := jobs.DeleteTerminalBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error().Err(err).Msg("worker: retention sweep failed")
				continue
			}
			if deleted > 0 {
				logger.Info().Int64("deleted", deleted).Msg("worker: swept expired jobs")
			}
		}
	}
}
