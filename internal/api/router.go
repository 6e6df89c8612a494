package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/opsmates/agentcore/internal/agentexec"
	"github.com/opsmates/agentcore/internal/agentexec/anthropic"
	"github.com/opsmates/agentcore/internal/agentexec/gemini"
	"github.com/opsmates/agentcore/internal/agentexec/openai"
	"github.com/opsmates/agentcore/internal/api/handler"
	custommiddleware "github.com/opsmates/agentcore/internal/api/middleware"
	"github.com/opsmates/agentcore/internal/config"
	"github.com/opsmates/agentcore/internal/notify"
	"github.com/opsmates/agentcore/internal/repository/mongo"
	"github.com/opsmates/agentcore/internal/repository/postgres"
	"github.com/opsmates/agentcore/internal/repository/redis"
	"github.com/opsmates/agentcore/internal/security"
	"github.com/opsmates/agentcore/internal/service"
)

// NewProviderRouter registers the configured model providers
func NewProviderRouter(cfg *config.Config) *agentexec.Router {
	router := agentexec.NewRouter(cfg.Providers.Default)

	if cfg.Providers.OpenAI.APIKey != "" {
		router.RegisterProvider(openai.NewProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.Model))
	}
	if cfg.Providers.Anthropic.APIKey != "" {
		router.RegisterProvider(anthropic.NewProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Model))
	}
	if cfg.Providers.Gemini.APIKey != "" {
		router.RegisterProvider(gemini.NewProvider(cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.Model))
	}

	log.Info().Strs("providers", router.ListProviders()).Str("default", router.DefaultProvider()).Msg("model providers registered")

	return router
}

// NewRouter creates and configures the HTTP router. runLogs may be nil when
// the archive is unavailable.
func NewRouter(cfg *config.Config, db *postgres.DB, redisClient *redis.Client, runLogs *mongo.RunLogStore) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	jwtManager := security.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	orgRepo := postgres.NewOrganizationRepository(db)
	agentRepo := postgres.NewAgentRepository(db)
	taskRepo := postgres.NewTaskRepository(db)
	jobRepo := postgres.NewJobRepository(db)
	runRepo := postgres.NewRunRepository(db)
	threadRepo := postgres.NewThreadRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	billingRepo := postgres.NewBillingRepository(db)

	rateLimiter := redis.NewRateLimiter(
		redisClient,
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst,
	)
	notifier := notify.NewNotifier(redisClient.Client())

	// Services
	authService := service.NewAuthService(userRepo, orgRepo, jwtManager)
	orgService := service.NewOrganizationService(orgRepo)
	agentService := service.NewAgentService(agentRepo)
	taskService := service.NewTaskService(taskRepo, agentRepo)
	billingService := service.NewBillingService(billingRepo, jobRepo, cfg.Billing)
	jobService := service.NewJobService(jobRepo, runRepo, billingService, notifier)
	chatService := service.NewChatService(threadRepo, messageRepo, jobService)

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	orgHandler := handler.NewOrganizationHandler(orgService)
	agentHandler := handler.NewAgentHandler(agentService)
	taskHandler := handler.NewTaskHandler(taskService)
	jobHandler := handler.NewJobHandler(jobService, runLogs)
	threadHandler := handler.NewThreadHandler(chatService)
	billingHandler := handler.NewBillingHandler(billingService)
	internalHandler := handler.NewInternalJobHandler(jobService)

	authMiddleware := custommiddleware.NewAuthMiddleware(jwtManager, cfg.Auth.InternalToken)
	rateLimitMiddleware := custommiddleware.NewRateLimitMiddleware(rateLimiter)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(db, redisClient))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Subscription provider webhooks (authenticated by dedupe + signature
		// at the gateway; events are applied at most once regardless)
		r.Post("/billing/webhook", billingHandler.Webhook)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit)

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", orgHandler.List)
				r.Post("/", orgHandler.Create)

				r.Route("/{orgID}", func(r chi.Router) {
					r.Use(custommiddleware.OrganizationContext)

					r.Get("/", orgHandler.Get)
					r.Patch("/", orgHandler.Update)
					r.Delete("/", orgHandler.Deactivate)
					r.Post("/members", orgHandler.AddMember)

					r.Get("/plan", billingHandler.GetPlan)
					r.Get("/usage", billingHandler.Usage)

					r.Route("/agents", func(r chi.Router) {
						r.Get("/", agentHandler.List)
						r.Post("/", agentHandler.Create)
						r.Get("/{agentKey}", agentHandler.Get)
						r.Patch("/{agentKey}", agentHandler.SetActive)
					})

					r.Route("/tasks", func(r chi.Router) {
						r.Get("/", taskHandler.List)
						r.Post("/", taskHandler.Create)
						r.Get("/{taskID}", taskHandler.Get)
						r.Patch("/{taskID}", taskHandler.SetActive)
					})

					r.Route("/jobs", func(r chi.Router) {
						r.Get("/", jobHandler.List)
						r.Post("/", jobHandler.Enqueue)
						r.Get("/{jobID}", jobHandler.Get)
						r.Post("/{jobID}/cancel", jobHandler.Cancel)
					})

					r.Route("/runs", func(r chi.Router) {
						r.Get("/", jobHandler.ListRuns)
						r.Get("/{runID}", jobHandler.GetRun)
						r.Get("/{runID}/logs", jobHandler.ListRunLogs)
					})

					r.Route("/threads", func(r chi.Router) {
						r.Get("/", threadHandler.List)
						r.Post("/", threadHandler.Create)
						r.Get("/{threadID}", threadHandler.Get)
						r.Delete("/{threadID}", threadHandler.Delete)
						r.Get("/{threadID}/messages", threadHandler.ListMessages)
						r.Post("/{threadID}/messages", threadHandler.PostMessage)
					})
				})
			})
		})

		// Internal worker protocol
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthenticateInternal)

			r.Route("/internal/jobs", func(r chi.Router) {
				r.Post("/claim", internalHandler.ClaimNext)
				r.Post("/{jobID}/claim", internalHandler.Claim)
				r.Post("/{jobID}/progress", internalHandler.Progress)
				r.Post("/{jobID}/heartbeat", internalHandler.Heartbeat)
				r.Post("/{jobID}/complete", internalHandler.Complete)
			})
		})
	})

	return r
}
