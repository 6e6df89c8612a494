package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opsmates/agentcore/internal/api"
	"github.com/opsmates/agentcore/internal/config"
	"github.com/opsmates/agentcore/internal/notify"
	"github.com/opsmates/agentcore/internal/repository/mongo"
	"github.com/opsmates/agentcore/internal/repository/postgres"
	"github.com/opsmates/agentcore/internal/repository/redis"
	"github.com/opsmates/agentcore/internal/service"
	"github.com/opsmates/agentcore/internal/worker"
)

func main() {
	godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("Starting agentcore worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// The log archive is optional; runs still complete without it.
	runLogs, err := mongo.NewRunLogStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Warn().Err(err).Msg("run log archive unavailable, continuing without it")
		runLogs = nil
	} else {
		defer runLogs.Close(context.Background())
	}

	agentRepo := postgres.NewAgentRepository(db)
	taskRepo := postgres.NewTaskRepository(db)
	jobRepo := postgres.NewJobRepository(db)
	runRepo := postgres.NewRunRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	threadRepo := postgres.NewThreadRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	billingRepo := postgres.NewBillingRepository(db)

	notifier := notify.NewNotifier(redisClient.Client())
	sessionCache := redis.NewSessionCache(redisClient)

	billingService := service.NewBillingService(billingRepo, jobRepo, cfg.Billing)
	jobService := service.NewJobService(jobRepo, runRepo, billingService, notifier)
	sessionService := service.NewSessionService(sessionRepo, sessionCache)
	chatService := service.NewChatService(threadRepo, messageRepo, jobService)

	providerRouter := api.NewProviderRouter(cfg)

	w := worker.New(jobService, sessionService, chatService, agentRepo, providerRouter, runLogs, cfg.Worker)
	scheduler := service.NewScheduler(taskRepo, jobService)

	go w.RunReaper(ctx)
	go sweepSessions(ctx, sessionService, cfg.Session.SweepInterval)
	go func() {
		if err := scheduler.Run(ctx, cfg.Worker.ScheduleRefresh); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Worker failed")
	}

	log.Info().Msg("Worker stopped")
}

// sweepSessions expires idle sessions on a fixed interval
func sweepSessions(ctx context.Context, sessions *service.SessionService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := sessions.SweepExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("failed to sweep sessions")
				continue
			}
			if count > 0 {
				log.Info().Int("count", count).Msg("sessions expired")
			}
		}
	}
}
