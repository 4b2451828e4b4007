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

	"incident-portal/internal/assignments"
	"incident-portal/internal/audit"
	"incident-portal/internal/auth"
	"incident-portal/internal/commanders"
	"incident-portal/internal/config"
	"incident-portal/internal/dashboard"
	"incident-portal/internal/events"
	"incident-portal/internal/httpapi"
	"incident-portal/internal/metrics"
	"incident-portal/internal/notify"
	"incident-portal/internal/reports"
	"incident-portal/internal/scanner"
	"incident-portal/internal/storage"
	"incident-portal/pkg/logger"
	"incident-portal/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "api")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Register()

	settings, err := config.LoadSettings(cfg.App.SettingsFile)
	if err != nil {
		log.Error("settings load failed", "err", err)
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	objects, closeObjects, err := openObjectStore(rootCtx, cfg.Storage, log)
	if err != nil {
		log.Error("object storage init failed", "err", err)
		os.Exit(1)
	}
	defer closeObjects()

	bus := events.NewBus(log)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	var sender notify.Sender = notify.NewLogSender(log)
	if cfg.SendGrid.APIKey != "" {
		sender = notify.NewSendGridSender(cfg.SendGrid)
	}
	mailer := notify.NewMailer(sender, cfg.App.BaseURL)

	reportSvc := reports.NewService(reports.NewPostgresRepo(db), objects, auditSvc, bus, settings.Intake)
	commanderSvc := commanders.NewService(
		commanders.NewPostgresRepo(db),
		commanders.NewRedisTokenStore(rdb, ""),
		mailer,
		auditSvc,
		bus,
		cfg.App.BaseURL,
	)
	assignmentMgr := assignments.NewManager(assignments.NewPostgresStore(db), commanderSvc, auditSvc, bus).
		WithLocker(utils.NewKeyLock(rdb, "portal:assign-lock:"))
	dashboardSvc := dashboard.NewService(dashboard.NewPostgresRepo(db))

	// Change listeners.
	dashboardSvc.Subscribe(bus)
	notify.NewListener(mailer, commanderSvc, reportSvc, func() config.NotificationSettings {
		return settings.Notifications
	}).Subscribe(bus)
	if cfg.Scanner.URL != "" {
		scanner.NewListener(scanner.NewHTTPScanner(cfg.Scanner), auditSvc).Subscribe(bus)
	} else {
		log.Warn("attachment scanning disabled", "reason", "SCANNER_URL not set")
	}
	if cfg.AMQP.URL != "" {
		conn, ch, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Error("rabbitmq init failed", "err", err)
			os.Exit(1)
		}
		defer conn.Close()
		defer ch.Close()
		bus.OnEntityChanged(events.AllTables, "", events.NewAMQPForwarder(ch, cfg.AMQP.Exchange).Handle)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.MaxMultipartMemory = 32 << 20

	h := httpapi.Handlers{
		Auth:        authManager,
		Admin:       auth.NewAdminAccount(cfg.Auth),
		Reports:     reportSvc,
		Assignments: assignmentMgr,
		Commanders:  commanderSvc,
		Audit:       auditSvc,
		Dashboard:   dashboardSvc,
		Bus:         bus,
	}
	registerRoutes(r, h, db, auth.RequireAccessToken(authManager), httpapi.NewIPRateLimiter(settings.RateLimit).Middleware())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := bus.Drain(shutdownCtx); err != nil {
		log.Error("change listeners did not drain", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// openObjectStore returns GCS when a bucket is configured, otherwise an
// in-memory store (rejected by config validation in production).
func openObjectStore(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (storage.ObjectStore, func(), error) {
	if cfg.GCSBucket == "" {
		log.Warn("using in-memory attachment storage", "reason", "GCS_BUCKET not set")
		return storage.NewMemoryStore("local"), func() {}, nil
	}
	gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	return gcs, func() { _ = gcs.Close() }, nil
}
