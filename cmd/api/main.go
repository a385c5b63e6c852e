package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"vidluxe/internal/bootstrap"
	"vidluxe/internal/credits"
	"vidluxe/internal/enhance"
	"vidluxe/internal/events"
	"vidluxe/internal/http/handlers"
	httpapi "vidluxe/internal/http/httpapi"
	"vidluxe/internal/infra"
	"vidluxe/internal/infra/geoip"
	"vidluxe/internal/jobs"
	"vidluxe/internal/providers/cutout"
	"vidluxe/internal/providers/dashscope"
	"vidluxe/internal/providers/scoring"
	"vidluxe/internal/storage"
	"vidluxe/internal/worker"
	"vidluxe/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open stores")
	}
	defer stores.Close()

	ledger := credits.NewLedger(stores.Accounts, stores.Locker, credits.Config{
		FreeMonthlyLimit:    cfg.FreeMonthlyCredits,
		InviteReferrerBonus: cfg.InviteReferrerBonus,
		InviteInviteeBonus:  cfg.InviteInviteeBonus,
		InviteExpiry:        cfg.InviteExpiry,
		MonthlyInviteCap:    cfg.MonthlyInviteCap,
	}, logger.With().Str("component", "ledger").Logger())

	queue, err := jobs.New(ctx, stores.Jobs, jobs.Config{
		Timeout:          cfg.JobTimeout,
		Retention:        cfg.JobRetention,
		SweepInterval:    cfg.JobSweepInterval,
		SnapshotInterval: cfg.JobSnapshotInterval,
	}, logger.With().Str("component", "jobs").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load job table")
	}

	media, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	orchestrator, err := newOrchestrator(cfg, queue, media, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	pool := worker.NewPool(orchestrator, cfg.WorkerConcurrency, 0, logger.With().Str("component", "worker").Logger())

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.DialKafka(cfg.KafkaBrokers, cfg.KafkaJobTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect kafka")
		}
		publisher = kafka
	}
	defer publisher.Close()

	svc := enhance.NewService(enhance.Options{
		Ledger:     ledger,
		Queue:      queue,
		Dispatcher: pool,
		Publisher:  publisher,
		Pricing:    enhance.Pricing{ImageCost: cfg.ImageCost, VideoCost: cfg.VideoCost},
		Logger:     logger.With().Str("component", "enhance").Logger(),
	})

	app := handlers.NewApp(svc, media, logger)
	for name, check := range stores.Checks {
		app.Checks[name] = check
	}

	routerOpts := httpapi.RouterOptions{
		JWTSecret:            cfg.JWTSecret,
		PaymentWebhookSecret: cfg.PaymentWebhookSecret,
		RateLimitPerMin:      cfg.RateLimitPerMin,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		StaticDir:            media.BasePath(),
		Logger:               logger,
	}
	countries, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if countries != nil {
		defer countries.Close()
		routerOpts.Countries = countries
	}
	router := httpapi.NewRouter(app, routerOpts)

	queueDone := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(queueDone)
	}()
	pool.Start(ctx)

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	pool.Wait()
	<-queueDone
	logger.Info().Msg("server stopped")
}

func newOrchestrator(cfg *infra.Config, queue *jobs.Queue, media *storage.FileStore, logger zerolog.Logger) (*workflow.Orchestrator, error) {
	generator, err := dashscope.NewClient(dashscope.Options{
		APIKey:     cfg.DashScopeAPIKey,
		BaseURL:    cfg.DashScopeBaseURL,
		ImageModel: cfg.DashScopeImageModel,
		EditModel:  cfg.DashScopeEditModel,
		VideoModel: cfg.DashScopeVideoModel,
		Logger:     &logger,
	})
	if err != nil {
		return nil, err
	}
	if !generator.HasCredentials() {
		logger.Warn().Msg("DASHSCOPE_API_KEY is empty; every job will fail at submission")
	}

	deps := workflow.Dependencies{
		Jobs:      queue,
		Generator: generator,
		Scorer:    scoring.Neutral{},
		Media:     media,
		Frames:    cutout.FFmpeg{Path: cfg.FFmpegPath},
		Policy: workflow.PollPolicy{
			Interval:      cfg.PollInterval,
			MaxAttempts:   cfg.PollMaxAttempts,
			Deadline:      cfg.PollDeadline,
			SubmitTimeout: cfg.SubmitTimeout,
		},
		Logger: logger.With().Str("component", "workflow").Logger(),
	}

	if cfg.ScoringURL != "" {
		scorer, err := scoring.NewClient(scoring.Options{URL: cfg.ScoringURL, APIKey: cfg.ScoringAPIKey})
		if err != nil {
			return nil, err
		}
		deps.Scorer = scorer
	}
	if cfg.CutoutURL != "" {
		remover, err := cutout.NewRemover(cutout.RemoverOptions{URL: cfg.CutoutURL, APIKey: cfg.CutoutAPIKey})
		if err != nil {
			return nil, err
		}
		deps.Remover = remover
	}

	return workflow.NewOrchestrator(deps)
}
