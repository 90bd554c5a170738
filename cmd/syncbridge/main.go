package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/macjediwizard/syncbridge/internal/activity"
	"github.com/macjediwizard/syncbridge/internal/analytics"
	"github.com/macjediwizard/syncbridge/internal/auth"
	"github.com/macjediwizard/syncbridge/internal/broker"
	"github.com/macjediwizard/syncbridge/internal/config"
	"github.com/macjediwizard/syncbridge/internal/crypto"
	"github.com/macjediwizard/syncbridge/internal/db"
	"github.com/macjediwizard/syncbridge/internal/engine"
	"github.com/macjediwizard/syncbridge/internal/health"
	"github.com/macjediwizard/syncbridge/internal/notify"
	"github.com/macjediwizard/syncbridge/internal/scheduler"
	"github.com/macjediwizard/syncbridge/internal/web"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
	validateTimeout = 15 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting SyncBridge...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	validateCtx, cancelValidate := context.WithTimeout(context.Background(), validateTimeout)
	err = cfg.Validate(validateCtx)
	cancelValidate()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	encryptor, err := crypto.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize encryptor: %v", err)
	}

	analyticsClient, err := analytics.NewClient(cfg.Analytics.BaseURL, cfg.Analytics.Timeout)
	if err != nil {
		log.Fatalf("Failed to initialize analytics client: %v", err)
	}

	ctx := context.Background()
	oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCOptions{
		Issuer:         cfg.OIDC.Issuer,
		ClientID:       cfg.OIDC.ClientID,
		ClientSecret:   cfg.OIDC.ClientSecret,
		RedirectURL:    cfg.OIDC.RedirectURL,
		AllowedDomains: cfg.OIDC.AllowedDomains,
	})
	if err != nil {
		log.Fatalf("Failed to initialize OIDC provider: %v", err)
	}

	sessionManager := auth.NewSessionManager(cfg.Security.SessionSecret, cfg.IsProduction())
	tokenAuth := auth.NewTokenAuthenticator(cfg.Security.APIToken)
	if tokenAuth.Enabled() {
		log.Println("API token authentication enabled")
	}

	healthChecker := health.NewChecker(database)
	tracker := activity.NewTracker()
	syncEngine := engine.NewSyncEngine(database, encryptor, analyticsClient, tracker, cfg.Analytics.BatchSize)

	if cfg.BrokerEnabled() {
		publisher, err := broker.NewPublisher(cfg.BrokerConfig())
		if err != nil {
			log.Fatalf("Failed to connect to message broker: %v", err)
		}
		defer publisher.Close()
		syncEngine.SetPublisher(publisher)
		healthChecker.Register("broker", publisher)
		log.Printf("Publishing event log entries to %s", cfg.Broker.URL)
	}

	// The scheduler takes an interface; a nil *Notifier must not reach it.
	var notifier *notify.Notifier
	var alerter scheduler.Alerter
	if cfg.AlertsEnabled() {
		notifier = notify.New(cfg.NotifyConfig())
		alerter = notifier
		log.Printf("Alert notifications enabled (webhook: %v, email: %v, cooldown: %v)",
			cfg.Alerts.WebhookEnabled, cfg.Alerts.EmailEnabled, cfg.Alerts.Cooldown)
	}

	sched := scheduler.New(database, syncEngine, alerter, scheduler.Options{
		Interval:      cfg.Sync.Interval,
		RetentionDays: cfg.Sync.RetentionDays,
	})

	handlers := web.NewHandlers(
		cfg,
		database,
		oidcProvider,
		sessionManager,
		encryptor,
		analyticsClient,
		sched,
		healthChecker,
		tracker,
		notifier,
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(web.RequestLogger())
	router.Use(web.SecurityHeaders())

	web.SetupRoutes(router, handlers, sessionManager, tokenAuth, cfg.RateLimiting)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
