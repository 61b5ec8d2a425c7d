package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/config"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/database"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/router"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/logging"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/mailer"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/auth"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/notify"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/payments"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/refunds"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/users"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	notifier, closeNotifier, err := buildNotifier(cfg, logger, users.NewRepo(db))
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}
	defer closeNotifier()

	provider := payments.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	whSvc := payments.NewWebhookService(db, notifier)
	whSvc.SetLogger(logger)
	refundSvc := refunds.NewService(db, provider, files, notifier)
	refundSvc.SetLogger(logger)

	deps := router.Deps{
		Logger:     logger,
		DB:         db,
		Sessions:   auth.NewSessions(db),
		CookieName: cfg.Session.CookieName,
		Provider:   provider,
		Webhooks:   whSvc,
		Refunds:    refundSvc,
	}
	if cfg.Storage.Driver == "local" {
		deps.EvidenceDir = cfg.Storage.LocalDir
		deps.EvidenceURLPrefix = cfg.Storage.LocalURLPrefix
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "db_driver", cfg.DB.Driver, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

// buildNotifier fans out to every driver listed in NOTIFY_DRIVER.
func buildNotifier(cfg config.Config, logger *slog.Logger, recipients notify.Recipients) (notify.Notifier, func(), error) {
	var out notify.Multi
	var closers []func()
	for _, d := range cfg.NotifyDrivers {
		switch d {
		case "log":
			out = append(out, notify.Log{Logger: logger})
		case "smtp":
			out = append(out, notify.Email{
				Mailer:   mailer.NewSMTPMailer(cfg.SMTP),
				Users:    recipients,
				From:     cfg.SMTP.From,
				FromName: cfg.SMTP.FromName,
			})
		case "mailtrap":
			out = append(out, notify.Email{
				Mailer:   mailer.NewMailtrap(cfg.Mailtrap),
				Users:    recipients,
				From:     cfg.SMTP.From,
				FromName: cfg.SMTP.FromName,
			})
		case "kafka":
			if len(cfg.Kafka.Brokers) == 0 {
				return nil, nil, errors.New("NOTIFY_DRIVER=kafka needs KAFKA_BROKERS")
			}
			k := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			out = append(out, k)
			closers = append(closers, func() { _ = k.Close() })
		default:
			return nil, nil, errors.New("unknown NOTIFY_DRIVER: " + d)
		}
	}
	return out, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
