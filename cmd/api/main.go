package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/digkill/ghola/internal/airtable"
	"github.com/digkill/ghola/internal/api"
	"github.com/digkill/ghola/internal/completion"
	"github.com/digkill/ghola/internal/config"
	"github.com/digkill/ghola/internal/contacts"
	"github.com/digkill/ghola/internal/database"
	"github.com/digkill/ghola/internal/replicate"
	"github.com/digkill/ghola/internal/repository"
	"github.com/digkill/ghola/internal/service"
	"github.com/digkill/ghola/internal/sink"
	"github.com/digkill/ghola/internal/storage"
	"github.com/digkill/ghola/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	var sinks []sink.Sink
	if cfg.MySQLDSN != "" {
		db, err := database.Connect(cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database migrate: %v", err)
		}
		sinks = append(sinks, repository.NewGenerationRepository(db))
	}
	if cfg.AirtableEnabled() {
		sinks = append(sinks, airtable.New(airtable.Options{
			APIKey: cfg.AirtableAPIKey,
			BaseID: cfg.AirtableBaseID,
			Table:  cfg.AirtableTableName,
			Logger: logr,
		}))
	}
	if cfg.LoopsAPIKey != "" {
		sinks = append(sinks, contacts.New(contacts.Options{APIKey: cfg.LoopsAPIKey, Logger: logr}))
	}
	dispatcher := sink.NewDispatcher(logr, sink.DefaultTimeout, sinks...)
	logr.Info("generation sinks configured", "sinks", dispatcher.Names())

	var archiver service.Archiver
	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		archiver = uploader
	}

	completer := completion.New(completion.Options{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		HTTPClient: httpClient,
		Logger:     logr,
	})
	runner := replicate.New(replicate.Options{
		APIKey:     cfg.ReplicateAPIToken,
		BaseURL:    cfg.ReplicateBaseURL,
		HTTPClient: httpClient,
		Logger:     logr,
	})

	prompts := service.NewPromptService(cfg, logr, completer)
	images := service.NewImageService(cfg, logr, runner, archiver, dispatcher)

	server := api.NewServer(api.Options{
		Addr:          cfg.APIListenAddr,
		RatePerMinute: cfg.APIRatePerMinute,
		WriteTimeout:  cfg.RequestTimeout + 30*time.Second,
	}, logr, prompts, images)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}
	dispatcher.Wait()
}
