package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/ghola/internal/client"
	"github.com/digkill/ghola/internal/config"
	"github.com/digkill/ghola/internal/database"
	"github.com/digkill/ghola/internal/lemonsqueezy"
	"github.com/digkill/ghola/internal/ratelimit"
	"github.com/digkill/ghola/internal/repository"
	"github.com/digkill/ghola/internal/subscription"
	"github.com/digkill/ghola/internal/telegram"
	"github.com/digkill/ghola/internal/web3forms"
	"github.com/digkill/ghola/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		timestamps ratelimit.Store
		emails     subscription.EmailCache
	)
	if cfg.MySQLDSN != "" {
		db, err := database.Connect(cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database migrate: %v", err)
		}
		timestamps = repository.NewTimestampRepository(db)
		emails = repository.NewClientRepository(db)
	} else {
		fileStore, err := ratelimit.NewFileStore(cfg.ClientStateDir)
		if err != nil {
			log.Fatalf("timestamp store: %v", err)
		}
		emailCache, err := subscription.NewFileEmailCache(cfg.ClientStateDir)
		if err != nil {
			log.Fatalf("email cache: %v", err)
		}
		timestamps = fileStore
		emails = emailCache
	}

	limiter := ratelimit.New(timestamps, ratelimit.Options{
		Quota:  cfg.RateLimitQuota,
		Window: cfg.RateLimitWindow,
		Logger: logr,
	})

	billing := lemonsqueezy.New(lemonsqueezy.Options{
		APIKey:    cfg.LemonSqueezyAPIKey,
		BaseURL:   cfg.LemonSqueezyBaseURL,
		ProductID: cfg.LemonSqueezyProductID,
		Logger:    logr,
	})
	var checker subscription.Checker
	if cfg.BillingEnabled() {
		checker = billing
	} else {
		logr.Warn("subscription checks disabled, every client stays on the free tier")
	}
	gate := subscription.NewGate(subscription.Options{
		Checker:     checker,
		Licenses:    billing,
		Cache:       emails,
		CheckoutURL: cfg.LemonSqueezyCheckoutURL,
		Logger:      logr,
		OnResolve: func(key string, r subscription.Resolution) {
			logr.Info("subscription resolved", "client", key, "premium", r.IsPremium)
		},
	})

	forms := web3forms.New(web3forms.Options{AccessKey: cfg.Web3FormsKey, Logger: logr})

	functions := client.New(client.Options{
		BaseURL:    cfg.APIBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout + 30*time.Second},
		Logger:     logr,
	})

	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	bot := telegram.NewBot(botAPI, logr, functions, limiter, gate, forms)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
