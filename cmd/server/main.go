package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yazamuk/stockgift/internal/auth"
	"github.com/yazamuk/stockgift/internal/broker"
	"github.com/yazamuk/stockgift/internal/claim"
	"github.com/yazamuk/stockgift/internal/config"
	"github.com/yazamuk/stockgift/internal/database"
	"github.com/yazamuk/stockgift/internal/gifts"
	"github.com/yazamuk/stockgift/internal/health"
	"github.com/yazamuk/stockgift/internal/logging"
	"github.com/yazamuk/stockgift/internal/notify"
	"github.com/yazamuk/stockgift/internal/orders"
	"github.com/yazamuk/stockgift/internal/store"
	"github.com/yazamuk/stockgift/internal/worker"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to initialize database: ", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("failed to run migrations: ", err)
	}
	if cfg.Env == "development" {
		if err := database.SeedDevData(db); err != nil {
			logger.Warn("failed to seed dev data", "error", err)
		}
	}

	if err := worker.InitClient(cfg.RedisURL); err != nil {
		log.Fatal("failed to initialize task client: ", err)
	}
	defer worker.CloseClient()

	notifier := notify.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, logger)

	// Embedded worker + scheduler: one process serves HTTP and drains tasks
	stopWorker, err := worker.Start(cfg, db, notifier)
	if err != nil {
		log.Fatal("failed to start worker: ", err)
	}
	defer stopWorker()

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		log.Fatal("failed to start scheduler: ", err)
	}
	defer stopScheduler()

	brokerClient := broker.NewClient(cfg.BrokerBaseURL, cfg.BrokerAPIKey, cfg.BrokerAPISecret)
	sessions := auth.NewSessions(cfg.JWTSecret, cfg.SecureCookies())

	giftStore := store.NewGifts(db)
	userStore := store.NewUsers(db)
	attemptStore := store.NewClaimAttempts(db)
	locks, err := store.NewClaimLocks(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to initialize claim locks: ", err)
	}
	defer locks.Close()

	workflow := claim.NewWorkflow(claim.WorkflowParams{
		Broker:        brokerClient,
		Gifts:         giftStore,
		Users:         userStore,
		Locks:         locks,
		Attempts:      attemptStore,
		Logger:        logger,
		FirmAccountID: cfg.FirmAccountID,
		MissingConfig: cfg.MissingBrokerVars(),
		Activation: claim.PollBudget{
			MaxAttempts: cfg.ActivationMaxAttempts,
			Interval:    cfg.ActivationInterval,
		},
		Settlement: claim.PollBudget{
			MaxAttempts: cfg.SettlementMaxAttempts,
			Interval:    cfg.SettlementInterval,
		},
		HashPassword: auth.HashPassword,
	})

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.GET("/health", gin.WrapF(health.Handler))

	api := router.Group("/api")
	{
		api.POST("/create-gift", gifts.CreateGiftHandler(giftStore, worker.EnqueueGiftNotification, logger))
		api.GET("/gift/:id", gifts.GetGiftHandler(giftStore))
		api.POST("/claim-gift", gifts.ClaimGiftHandler(workflow, sessions, logger))

		api.POST("/auth/register", auth.RegisterHandler(db, sessions))
		api.POST("/auth/login", auth.LoginHandler(db, sessions))
		api.POST("/auth/logout", auth.LogoutHandler(sessions))
		api.POST("/auth/check-user", auth.CheckUserHandler(db))

		protected := api.Group("/")
		protected.Use(auth.RequireAuth(sessions))
		{
			protected.GET("/auth/me", auth.MeHandler(db))
			protected.GET("/orders/:accountId", orders.ListOrdersHandler(brokerClient, logger))
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error: ", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Claim workflows can run for ~80s; give in-flight ones time to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}
