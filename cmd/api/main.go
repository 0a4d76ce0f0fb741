package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/config"
	"github.com/retailbot/support-widget/internal/handler"
	"github.com/retailbot/support-widget/internal/logging"
	"github.com/retailbot/support-widget/internal/metrics"
	"github.com/retailbot/support-widget/internal/model/assistant"
	"github.com/retailbot/support-widget/internal/service/chat"
	"github.com/retailbot/support-widget/internal/service/engine"
	"github.com/retailbot/support-widget/internal/service/fallback"
	"github.com/retailbot/support-widget/internal/service/notify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	if envErr != nil {
		logger.WithError(envErr).Debug("no .env file, continuing with system environment variables only")
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	profile := assistant.Default()

	responder, err := fallback.NewFromConfig(ctx, cfg.Fallback, profile, cfg.Engine.HistoryLimit, logging.Component(logger, "fallback"))
	switch {
	case err != nil:
		logger.WithError(err).WithField("provider", cfg.Fallback.Provider).Warn("fallback responder unavailable, continuing with the rule table only")
	case responder != nil:
		logger.WithField("provider", cfg.Fallback.Provider).Info("fallback responder enabled")
	default:
		logger.Info("no fallback provider configured, using the rule table only")
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logging.Component(logger, "notify"))}
	if cfg.Redis.Enabled() {
		rdb, err := notify.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, hand-offs will only be logged")
		} else {
			defer rdb.Close()
			notifiers = append(notifiers, notify.NewRedisNotifier(rdb, cfg.Redis.HandoffStream, logging.Component(logger, "notify")))
			logger.WithField("stream", cfg.Redis.HandoffStream).Info("publishing hand-offs to Redis")
		}
	}

	chatService := chat.NewService(engine.Options{
		Responder:       responder,
		ThinkingDelay:   cfg.Engine.ThinkingDelay,
		ThinkingJitter:  cfg.Engine.ThinkingJitter,
		EscalationDelay: cfg.Engine.EscalationDelay,
		FallbackTimeout: cfg.Fallback.Timeout,
		HistoryLimit:    cfg.Engine.HistoryLimit,
		Notifier:        notifiers,
		Metrics:         m,
		Profile:         profile,
		Logger:          logging.Component(logger, "engine"),
	})
	defer chatService.Shutdown()

	go sweepIdleSessions(ctx, chatService, cfg.Engine.SessionIdleTTL, logger)

	router := handler.NewRouter(handler.Deps{
		Chat:            chatService,
		Profile:         profile,
		FallbackEnabled: responder != nil,
		Gatherer:        prometheus.DefaultGatherer,
		Logger:          logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func sweepIdleSessions(ctx context.Context, svc *chat.Service, ttl time.Duration, logger *logrus.Logger) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.ExpireIdle(ttl); n > 0 {
				logger.WithField("expired", n).Debug("idle session sweep")
			}
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *logrus.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", addr).Info("support widget backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
