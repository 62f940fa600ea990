package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iudanet/securehub/internal/config"
	"github.com/iudanet/securehub/internal/server"
	"github.com/iudanet/securehub/internal/server/auth"
	"github.com/iudanet/securehub/internal/server/blob"
	"github.com/iudanet/securehub/internal/server/files"
	"github.com/iudanet/securehub/internal/server/jwt"
	"github.com/iudanet/securehub/internal/server/mailer"
	"github.com/iudanet/securehub/internal/server/metrics"
	"github.com/iudanet/securehub/internal/server/middleware"
	"github.com/iudanet/securehub/internal/server/notify"
	"github.com/iudanet/securehub/internal/server/storage/sqlite"
)

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, logger)
		},
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if cfg.Storage.Backend == config.BackendS3 {
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:   cfg.Storage.S3.Bucket,
			Region:   cfg.Storage.S3.Region,
			Endpoint: cfg.Storage.S3.Endpoint,
		})
	}
	return blob.NewLocal(cfg.Storage.LocalDir)
}

func newMailSender(cfg *config.Config, logger *slog.Logger) (mailer.Sender, error) {
	if !cfg.SMTPEnabled() {
		logger.Warn("mail.host is empty, device OTP mails will only be logged")
		return mailer.NewLogSender(logger), nil
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		SSL:      cfg.Mail.SSL,
	})
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	trustedProxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	store, err := sqlite.New(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init blob storage: %w", err)
	}

	m := metrics.New()

	sender, err := newMailSender(cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := mailer.NewDispatcher(sender, store, logger, m, mailer.DispatcherConfig{
		Workers:    cfg.Mail.Workers,
		QueueSize:  cfg.Mail.QueueSize,
		MaxRetries: cfg.Mail.MaxRetries,
		BaseDelay:  cfg.Mail.BaseDelay,
	})
	// Воркеры дочитывают очередь после остановки HTTP сервера
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Stop()

	authSvc := auth.NewService(logger, store, store, store,
		jwt.NewService(cfg.JWT.Secret, cfg.JWT.TTL), dispatcher,
		auth.WithOTPTTL(cfg.OTP.TTL),
		auth.WithMaxOTPAttempts(cfg.OTP.MaxAttempts),
		auth.WithMetrics(m),
	)

	if cfg.OTP.ReapInterval > 0 {
		go auth.NewReaper(store, logger, cfg.OTP.ReapInterval).Run(ctx)
	}

	hub := notify.NewHub(logger, authSvc,
		notify.WithOriginPatterns(cfg.WS.OriginPatterns),
		notify.WithDropCounter(m.WSDropped),
	)
	notifiers := notify.Multi{hub}
	if cfg.Notify.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.Notify.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer nc.Close()
		notifiers = append(notifiers, notify.NewNATSPublisher(nc, cfg.Notify.NATSSubjectPrefix, logger))
	}

	filesSvc := files.NewService(logger, store, store, store, blobs, notifiers, m)

	srv := server.New(server.Config{
		Address:         cfg.Server.Address,
		Version:         Version,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AuthRateLimit:   cfg.RateLimit.AuthRequests,
		AuthRateWindow:  cfg.RateLimit.AuthWindow,
		MaxUploadBytes:  cfg.Upload.MaxBytes,
		TrustedProxies:  trustedProxies,
	}, server.Deps{
		Logger:      logger,
		Auth:        authSvc,
		Files:       filesSvc,
		DeadLetters: store,
		DB:          store,
		Realtime:    hub,
		Metrics:     m,
	})

	logger.Info("SecureHub server starting",
		slog.String("version", Version),
		slog.String("storage", cfg.Storage.Backend),
		slog.Bool("smtp", cfg.SMTPEnabled()),
		slog.Bool("nats", cfg.Notify.NATSURL != ""))

	return srv.Run(ctx)
}
