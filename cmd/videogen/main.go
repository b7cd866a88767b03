// videogen server provides the HTTP API, manages queue workers, and
// orchestrates video generation jobs end to end.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/streamgank/videogen/pkg/api"
	"github.com/streamgank/videogen/pkg/assets"
	"github.com/streamgank/videogen/pkg/cache"
	"github.com/streamgank/videogen/pkg/catalog"
	"github.com/streamgank/videogen/pkg/cloudinary"
	"github.com/streamgank/videogen/pkg/composition"
	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/creatomate"
	"github.com/streamgank/videogen/pkg/database"
	"github.com/streamgank/videogen/pkg/heygen"
	"github.com/streamgank/videogen/pkg/llm"
	"github.com/streamgank/videogen/pkg/media"
	"github.com/streamgank/videogen/pkg/metrics"
	"github.com/streamgank/videogen/pkg/progress"
	"github.com/streamgank/videogen/pkg/queue"
	"github.com/streamgank/videogen/pkg/script"
	"github.com/streamgank/videogen/pkg/version"
	"github.com/streamgank/videogen/pkg/vizard"
	"github.com/streamgank/videogen/pkg/workflow"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	// Parse command-line flags
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"),
		"Path to .env file")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting videogen",
		"version", version.Full(),
		"http_port", httpPort,
		"pod_id", podID)

	ctx := context.Background()

	// 1. Load configuration
	settings, err := config.Load()
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}
	queueCfg, err := config.LoadQueueConfig()
	if err != nil {
		slog.Error("Failed to load queue config", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	jobStore := queue.NewStore(dbClient.DB())

	// 3. One-time startup orphan cleanup
	if err := queue.CleanupStartupOrphans(ctx, jobStore, podID); err != nil {
		slog.Error("Failed to cleanup startup orphans", "error", err)
		// Non-fatal, continue
	}

	// 4. Shared service clients
	metricsReg := metrics.New()
	llmClient := llm.NewClient(settings.OpenAIAPIKey, settings.OpenAIModel,
		llm.WithTransport(metricsReg.Transport("openai")))
	heygenClient := heygen.NewClient(settings.HeyGenAPIKey,
		heygen.WithTransport(metricsReg.Transport("heygen")))
	vizardClient := vizard.NewClient(settings.VizardAPIKey,
		vizard.WithTransport(metricsReg.Transport("vizard")))
	creatomateClient := creatomate.NewClient(settings.CreatomateAPIKey,
		creatomate.WithTransport(metricsReg.Transport("creatomate")))
	cloudinaryClient := cloudinary.NewClient(
		settings.CloudinaryCloudName, settings.CloudinaryAPIKey, settings.CloudinaryAPISecret,
		cloudinary.WithTransport(metricsReg.Transport("cloudinary")))
	fetcher := media.NewFetcher()
	prober := media.NewProber(settings.FFprobeBin, nil)
	segmenter := media.NewExtractor(settings.FFmpegBin, prober, nil)
	catalogExtractor := catalog.NewExtractor(dbClient.DB(), nil)
	cacheStore := cache.NewStore(settings.CacheDir,
		settings.CacheReadEnabled(), settings.CacheWriteEnabled(), nil)
	builder := composition.NewBuilder(settings.PosterStrategy,
		settings.IntroImageURL, settings.OutroImageURL, settings.BrandBannerURL)
	slog.Info("Service clients initialized",
		"llm_model", settings.OpenAIModel,
		"poster_strategy", settings.PosterStrategy,
		"app_env", settings.AppEnv)

	// 5. Per-job pipeline factory: the progress emitter and render monitor
	// are keyed to one job, so each claim builds a fresh orchestrator.
	factory := func(jobID, workflowID string, logger *slog.Logger) (queue.WorkflowRunner, queue.RenderWatcher) {
		emitter := progress.NewEmitter(jobID, settings.WebhookBaseURL, logger)

		posters := assets.NewPosterRenderer(fetcher, cloudinaryClient, logger)
		clips := assets.NewClipPreparer(vizardClient, segmenter, fetcher, cloudinaryClient,
			settings.ClipExtractionTimeout, logger)
		scroll := assets.NewScrollRecorder(settings.ScreencastBin, cloudinaryClient, logger)
		preparer := assets.NewPreparer(posters, clips, scroll, fetcher, logger)

		orchestrator := workflow.New(workflow.Deps{
			Catalog:          catalogExtractor,
			Scripts:          script.NewGenerator(llmClient, logger),
			Assets:           preparer,
			Avatars:          heygen.NewRenderer(heygenClient, logger),
			Verifier:         fetcher,
			Prober:           prober,
			Builder:          builder,
			Compositor:       creatomateClient,
			Emitter:          emitter,
			Store:            cacheStore,
			Metrics:          metricsReg,
			Logger:           logger,
			PosterStrategy:   settings.PosterStrategy,
			TemplateOverride: settings.HeyGenTemplateOverride,
		})
		monitor := creatomate.NewMonitor(creatomateClient, emitter, logger)
		return orchestrator, monitor
	}
	executor := queue.NewWorkflowExecutor(factory, settings.LogDir, slog.Default().Handler(), metricsReg)

	// 6. Start worker pool (before HTTP server)
	workerPool := queue.NewWorkerPool(podID, jobStore, queueCfg, executor)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 7. Create HTTP server
	apiServer := api.NewServer(jobStore, workerPool, dbClient, metricsReg, slog.Default())
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 8. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("videogen started successfully",
		"pod_id", podID,
		"workers", queueCfg.WorkerCount)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: wait for active jobs, then stop HTTP.
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, queueCfg.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded; incomplete jobs will be orphan-recovered")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
