package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/yazamuk/stockgift/internal/config"
	"github.com/yazamuk/stockgift/internal/database"
	"github.com/yazamuk/stockgift/internal/logging"
	"github.com/yazamuk/stockgift/internal/notify"
	"github.com/yazamuk/stockgift/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to initialize database: ", err)
	}
	defer database.Close(db)

	notifier := notify.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, logger)

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		log.Fatal("failed to start scheduler: ", err)
	}
	defer stopScheduler()

	// Run blocks and handles its own signal interception
	if err := worker.Run(cfg, db, notifier); err != nil {
		log.Fatal("worker error: ", err)
	}
}
