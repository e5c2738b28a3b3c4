package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/api"
	"github.com/kenneth/swift-decryption-gateway/internal/audit"
	"github.com/kenneth/swift-decryption-gateway/internal/cache"
	"github.com/kenneth/swift-decryption-gateway/internal/config"
	"github.com/kenneth/swift-decryption-gateway/internal/decrypt"
	"github.com/kenneth/swift-decryption-gateway/internal/keys"
	"github.com/kenneth/swift-decryption-gateway/internal/metrics"
	"github.com/kenneth/swift-decryption-gateway/internal/middleware"
	"github.com/kenneth/swift-decryption-gateway/internal/proxy"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level from config
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting Swift Decryption Gateway")

	// Initialize metrics
	m := metrics.NewMetrics()
	m.SetVersion(version)
	m.StartSystemMetricsCollector()

	// Initialize audit logger if enabled
	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
		logger.WithField("max_events", cfg.Audit.MaxEvents).Info("Audit logging enabled")
	}

	// Load root secrets, either inline or from a watchable secrets file
	encodedSecrets := cfg.Keymaster.Secrets
	activeID := cfg.Keymaster.ActiveSecretID
	if cfg.Keymaster.SecretsFile != "" {
		set, err := config.LoadSecretSet(cfg.Keymaster.SecretsFile)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load root secrets file")
		}
		encodedSecrets = set.Secrets
		activeID = set.Active
	}

	keymaster, err := keys.NewKeymaster(encodedSecrets, activeID, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize keymaster")
	}

	// Reload the secret file on change so rotation needs no restart
	if cfg.Keymaster.SecretsFile != "" && cfg.Keymaster.WatchSecrets {
		watcher, err := config.NewSecretsWatcher(cfg.Keymaster.SecretsFile, func(set *config.SecretSet) error {
			reloadErr := keymaster.Reload(set.Secrets, set.Active)
			if auditLogger != nil {
				auditLogger.LogSecretReload(set.Active, reloadErr == nil, reloadErr)
			}
			return reloadErr
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to watch root secrets file")
		}
		defer watcher.Stop()
		logger.WithField("file", cfg.Keymaster.SecretsFile).Info("Watching root secrets file")
	}

	// Next pipeline stage
	upstream, err := proxy.NewUpstream(cfg.Upstream.Endpoint, cfg.Upstream.Timeout, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create upstream client")
	}

	// Object-info cache
	var infoCache cache.Cache
	if cfg.Cache.Enabled {
		infoCache = cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.DefaultTTL)
		logger.WithFields(logrus.Fields{
			"max_items":   cfg.Cache.MaxItems,
			"default_ttl": cfg.Cache.DefaultTTL,
		}).Info("Object info cache enabled")
	}
	infoClient := proxy.NewInfoClient(upstream, infoCache, m, logger)

	// Per-account policies
	var policies *config.PolicyManager
	if len(cfg.PolicyFiles) > 0 {
		policies = config.NewPolicyManager()
		if err := policies.LoadPolicies(cfg.PolicyFiles); err != nil {
			logger.WithError(err).Fatal("Failed to load account policies")
		}
		logger.WithField("patterns", cfg.PolicyFiles).Info("Account policies loaded")
	}

	// Decryption stage
	resolver := &decrypt.Resolver{Keys: keymaster, Info: infoClient, Logger: logger}
	reconciler := &decrypt.Reconciler{Logger: logger}
	decrypter := api.NewDecrypter(keymaster, resolver, reconciler, policies, logger, m, auditLogger)

	// Setup router
	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods("GET")
	api.NewHealth(version, infoCache).RegisterRoutes(router)

	// Everything else is a storage request: decrypter in front, upstream behind
	router.PathPrefix("/").Handler(decrypter.Middleware(upstream))

	// Apply middleware
	var httpHandler http.Handler = router
	httpHandler = middleware.LoggingMiddleware(logger, &cfg.Logging)(httpHandler)
	httpHandler = middleware.SecurityHeadersMiddleware()(httpHandler)

	// Add rate limiting if enabled
	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			cfg.RateLimit.Limit,
			cfg.RateLimit.Window,
			logger,
		)
		defer rateLimiter.Stop()
		httpHandler = middleware.RateLimitMiddleware(rateLimiter)(httpHandler)
		logger.WithFields(logrus.Fields{
			"limit":  cfg.RateLimit.Limit,
			"window": cfg.RateLimit.Window,
		}).Info("Rate limiting enabled")
	}

	// Tracing is the outermost layer so every span covers the full request
	if cfg.Tracing.Enabled {
		shutdown, err := middleware.InitTracerProvider(context.Background(), &cfg.Tracing)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize tracing")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.WithError(err).Warn("Failed to flush traces")
			}
		}()
		httpHandler = middleware.TracingMiddleware(cfg.Tracing.RedactSensitive)(httpHandler)
		logger.WithFields(logrus.Fields{
			"exporter":       cfg.Tracing.Exporter,
			"sampling_ratio": cfg.Tracing.SamplingRatio,
		}).Info("Tracing enabled")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		var err error
		if cfg.TLS.Enabled {
			logger.WithFields(logrus.Fields{
				"addr":      cfg.ListenAddr,
				"cert_file": cfg.TLS.CertFile,
				"key_file":  cfg.TLS.KeyFile,
			}).Info("Starting HTTPS server")
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			logger.WithField("addr", cfg.ListenAddr).Info("Starting HTTP server")
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Server stopped gracefully")
	}
}
