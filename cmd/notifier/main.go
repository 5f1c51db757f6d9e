package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/notifier/internal/config"
	"github.com/jwalitptl/notifier/internal/connection"
	"github.com/jwalitptl/notifier/internal/handler"
	notificationHandler "github.com/jwalitptl/notifier/internal/handler/notification"
	promHandler "github.com/jwalitptl/notifier/internal/handler/prometheus"
	"github.com/jwalitptl/notifier/internal/router"
	"github.com/jwalitptl/notifier/internal/session"
	"github.com/jwalitptl/notifier/pkg/auth"
	"github.com/jwalitptl/notifier/pkg/logger"
	"github.com/jwalitptl/notifier/pkg/metrics"
	"github.com/jwalitptl/notifier/pkg/transport"
	"github.com/jwalitptl/notifier/pkg/transport/redis"
	"github.com/jwalitptl/notifier/pkg/transport/websocket"
)

const namespace = "notifier"

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("NOTIFIER_CONFIG"), "path to config.yml")
	pflag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.NewLogger(nil).Fatal(err, "Failed to load configuration")
	}

	log := newLogger(cfg.Logging)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(namespace, "", reg)

	// Session
	sess := session.New(newDialer(cfg, log), newCredentials(cfg.Auth), session.Config{
		Capacity:   cfg.Log.Capacity,
		Connection: connectionConfig(cfg),
	}, log, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.Start(ctx)

	// Setup router
	var limit rate.Limit
	if cfg.RateLimit.Enabled {
		limit = rate.Limit(cfg.RateLimit.RPS)
	}
	r := router.NewRouter(
		handler.NewHandler(sess, reg),
		notificationHandler.NewHandler(sess, log),
		promHandler.New(namespace, reg),
		log,
		router.RouterConfig{
			RateLimit:   limit,
			RateBurst:   cfg.RateLimit.Burst,
			CORSOrigins: cfg.Server.CORSOrigins,
		},
	)
	r.Setup()

	// A zero WriteTimeout keeps event streams open. Request contexts end
	// with ctx, which closes them on shutdown.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("Starting server", "addr", srv.Addr, "session_id", sess.ID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	sess.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited properly")
}

func newLogger(cfg config.LoggingConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Format == "json",
	})
}

// newCredentials picks the first configured source: an inline token, a
// token file, then an environment variable.
func newCredentials(cfg config.AuthConfig) auth.CredentialSource {
	switch {
	case cfg.Token != "":
		return auth.Static(cfg.Token)
	case cfg.TokenFile != "":
		return auth.File(cfg.TokenFile)
	case cfg.TokenEnv != "":
		return auth.Env(cfg.TokenEnv)
	default:
		return auth.None
	}
}

// newDialer returns nil when the client is disabled or has no endpoint, in
// which case the session never connects.
func newDialer(cfg *config.Config, log *logger.Logger) transport.Dialer {
	if !cfg.Enabled {
		log.Info("Notification client disabled")
		return nil
	}
	if cfg.Endpointless() {
		log.Warn("No notification endpoint configured", "transport", cfg.Transport.Kind)
		return nil
	}

	switch cfg.Transport.Kind {
	case "redis":
		return redis.NewDialer(redis.Config{
			URL:         cfg.Transport.URL,
			Channel:     cfg.Transport.Channel,
			DialTimeout: cfg.Transport.HandshakeTimeout,
		})
	default:
		return websocket.NewDialer(websocket.Config{
			URL:              cfg.Transport.URL,
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		})
	}
}

func connectionConfig(cfg *config.Config) connection.Config {
	return connection.Config{
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatTimeout:  cfg.Heartbeat.Timeout,
		AwaitAck:          cfg.Transport.AwaitAck,
		HandshakeTimeout:  cfg.Transport.HandshakeTimeout,
		Backoff: connection.Policy{
			Min:         cfg.Backoff.Min,
			Max:         cfg.Backoff.Max,
			Factor:      cfg.Backoff.Factor,
			Jitter:      cfg.Backoff.Jitter,
			MaxRetries:  cfg.Backoff.MaxRetries,
			StableAfter: cfg.Backoff.StableAfter,
		},
	}
}
