package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreach/config"
	"outreach/sender"
	"outreach/store"
	"outreach/syncer"
	"outreach/utils"
	"outreach/warmup"
	"outreach/webhook"
	"outreach/worker"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadConfig(); err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logrus.WithError(err).Warn("sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}

	st := store.NewDB(config.DB)
	cipher := utils.NewCipher(config.AppConfig.EncryptionKey)
	mailer := utils.NewSMTPMailer(cipher)
	hooks := webhook.NewDispatcher(st)
	classifier := utils.NewHTTPClassifier(config.AppConfig.ClassifierURL)

	batch := sender.NewBatchSender(st, mailer, hooks, sender.Options{
		Budget:          time.Duration(config.AppConfig.SendBudgetSeconds) * time.Second,
		BatchSize:       config.AppConfig.SendBatchSize,
		TrackingBaseURL: config.AppConfig.TrackingBaseURL,
	})
	sync := syncer.New(st, cipher, classifier, hooks, syncer.Options{
		AccountLimit: config.AppConfig.SyncAccountLimit,
	})
	engine := warmup.NewEngine(st, mailer)
	mailbox := warmup.NewMailboxMaintainer(st, cipher, mailer)

	jobs := worker.NewJobs(batch, sync, engine, mailbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redis := config.AppConfig.Redis
	if worker.RedisAvailable(redis.Address, redis.Password, redis.DB) {
		taskServer := worker.NewTaskServer(redis.Address, redis.Password, redis.DB, jobs)
		if err := taskServer.Start(); err != nil {
			logrus.WithError(err).Fatal("failed to start task server")
		}
		defer taskServer.Shutdown()
	} else {
		go worker.NewRunner(jobs).Start(ctx)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
		app.Shutdown()
	}()

	logrus.WithField("port", config.AppConfig.ServerPort).Info("server starting")
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logrus.WithError(err).Fatal("failed to start server")
	}
}
