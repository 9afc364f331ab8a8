package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/bauhaus93/wishlist-scrape/internal/config"
	"github.com/bauhaus93/wishlist-scrape/internal/notify"
	"github.com/bauhaus93/wishlist-scrape/internal/reconcile"
	"github.com/bauhaus93/wishlist-scrape/internal/scheduler"
	"github.com/bauhaus93/wishlist-scrape/internal/scraper"
	"github.com/bauhaus93/wishlist-scrape/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	// --- Configuration Loading ---
	_ = godotenv.Load() // .env is optional
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warn("Invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.WithFields(logrus.Fields{
		"store_driver":   cfg.StoreDriver,
		"scraper_engine": cfg.ScraperEngine,
		"sources":        len(cfg.Sources()),
		"interval":       cfg.ScrapeInterval.String(),
	}).Info("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Catalog ---
	catalog, err := openCatalog(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize catalog")
		return 1
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			log.WithError(err).Error("Error closing catalog")
		}
	}()

	// --- Scraper ---
	var fetcher scraper.Fetcher
	switch cfg.ScraperEngine {
	case "browser":
		fetcher = scraper.NewRodFetcher(cfg.ScrapeUserAgent, cfg.ScrapePageTimeout, log)
	default:
		fetcher = scraper.NewCollyFetcher(cfg.ScrapeUserAgent, cfg.ScrapePageTimeout, log)
	}
	producer := scraper.NewWishlistScraper(fetcher, cfg.ScrapeTries, cfg.ScrapeRetryDelay, log)

	// --- Observers ---
	observers := []reconcile.Observer{
		reconcile.NewLogObserver(log),
		reconcile.NewHistoryRecorder(catalog, log),
	}
	var telegram *notify.Telegram
	if cfg.TelegramBotToken != "" {
		telegram, err = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, catalog, log)
		if err != nil {
			log.WithError(err).Error("Telegram notifications disabled")
		} else {
			observers = append(observers, telegram)
		}
	}

	engine := reconcile.NewEngine(catalog, log, observers...)
	cycle := reconcile.NewCycle(producer, catalog, engine, cfg.Sources(), log)

	// --- Single run ---
	if cfg.ScrapeInterval == 0 {
		if !scheduler.RunOnce(ctx, cycle, log) {
			return 1
		}
		return 0
	}

	// --- Daemon ---
	if bc, ok := catalog.(*storage.BadgerCatalog); ok {
		go bc.RunGC(ctx, 10*time.Minute)
	}
	if telegram != nil {
		go telegram.Start(ctx)
	}
	scheduler.Run(ctx, cycle, cfg.ScrapeInterval, log)

	log.Info("Wishlist scraper shut down gracefully.")
	return 0
}

func openCatalog(cfg config.Config, log logrus.FieldLogger) (storage.Catalog, error) {
	if cfg.StoreDriver == "badger" {
		return storage.NewBadgerCatalog(cfg.BadgerDBPath, log)
	}
	db, err := storage.OpenGorm(cfg.StoreDriver, cfg.DatabaseDSN, log)
	if err != nil {
		return nil, err
	}
	return storage.NewGormCatalog(db, log)
}
