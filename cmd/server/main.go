package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/ums/internal/audit"
	"github.com/Skotchmaster/ums/internal/config"
	"github.com/Skotchmaster/ums/internal/httpserver"
	"github.com/Skotchmaster/ums/internal/logging"
	"github.com/Skotchmaster/ums/internal/mail"
	mwauth "github.com/Skotchmaster/ums/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/ums/internal/middleware/logging"
	"github.com/Skotchmaster/ums/internal/mykafka"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/service/admin"
	"github.com/Skotchmaster/ums/internal/service/auth"
	"github.com/Skotchmaster/ums/internal/service/session"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).With("svc", "ums")
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid_config", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(httpserver.Common()...)
	e.Use(loggingmw.RequestLogger(logger))

	var producer *mykafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = mykafka.NewProducer(cfg.KafkaBrokers)
	}

	deps, err := buildDeps(cfg, logger, producer)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}
	httpserver.Register(e, deps)

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka_close_failed", "error", err)
		}
	}
	logger.Info("stopped")
}

// buildDeps wires the services. A disabled database yields degraded deps:
// the process stays up and the API answers 503.
func buildDeps(cfg config.Config, logger *slog.Logger, producer *mykafka.Producer) (*httpserver.Deps, error) {
	cookies := httpserver.NewCookies(cfg.Production())

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := config.InitDB(initCtx, cfg)
	if errors.Is(err, config.ErrDatabaseDisabled) {
		logger.Warn("database_disabled", "driver", cfg.DBDriver)
		return &httpserver.Deps{CSRF: cookies.CSRF}, nil
	}
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	rp := repo.New(db)
	sessions := session.New(rp, cfg.SessionTTL, cfg.SessionRememberTTL)

	var sender mail.Sender
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.SMTPInsecure)
	} else {
		logger.Warn("smtp_disabled", "reason", "SMTP_HOST is empty, mail stays in the outbox")
	}
	mailer := mail.New(sender, cfg.AppBaseURL)

	rec := audit.NewRecorder(nil, cfg.KafkaAuditTopic)
	if producer != nil {
		rec.Publisher = producer
	}

	authSvc := auth.New(rp, sessions, mailer, rec)
	authSvc.VerifyTTL = cfg.VerifyTokenTTL
	authSvc.InviteTTL = cfg.InviteTokenTTL
	authSvc.ResetTTL = cfg.ResetTokenTTL

	adminSvc := admin.New(rp, sessions, mailer, rec)
	adminSvc.InviteTTL = cfg.InviteTokenTTL

	if cfg.BootstrapAdminEmail != "" {
		created, err := adminSvc.EnsureBootstrapAdmin(initCtx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
		if err != nil {
			return nil, err
		}
		if created {
			logger.Info("bootstrap_admin_created", "email", cfg.BootstrapAdminEmail)
		}
	}

	return &httpserver.Deps{
		Account: &httpserver.AccountHTTP{Svc: authSvc, Sessions: sessions, Cookies: cookies},
		Admin:   &httpserver.AdminHTTP{Svc: adminSvc},
		Auth:    mwauth.NewSessionAuth(sessions),
		CSRF:    cookies.CSRF,
		Ready:   sqlDB.PingContext,
	}, nil
}
