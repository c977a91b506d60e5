// tws-session keeps a session to the trading terminal open, follows
// positions and the account portfolio, and serves health and Prometheus
// metrics.
// Usage: go run ./cmd/tws-session --config configs/session.local.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tws-session/internal/config"
	"github.com/rickgao/tws-session/internal/connection"
	"github.com/rickgao/tws-session/internal/logging"
	"github.com/rickgao/tws-session/internal/metrics"
	"github.com/rickgao/tws-session/internal/session"
	"github.com/rickgao/tws-session/internal/transport"
	"github.com/rickgao/tws-session/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/session.local.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger, syncLogs, err := logging.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer syncLogs()
	slog.SetDefault(logger)

	logger.Info("starting tws-session", append(version.LogAttrs(), "config", *configPath)...)
	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"terminal_url", cfg.Terminal.URL,
		"client_id", cfg.Terminal.ClientID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	m := metrics.New()
	client := transport.NewClient(cfg.ClientConfig(), logger.With("component", "transport"))
	sess := session.New(cfg.SessionConfig(), client, logger, session.WithMetrics(m))
	sess.OnError(func(err error) {
		logger.Warn("connect attempt failed", "error", err)
	})

	if err := sess.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHandler(cfg.Metrics.Path, sess, m),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return follow(gctx, sess, cfg.Session.RequestTimeout, logger)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		if err := sess.Close(); err != nil {
			logger.Warn("session close", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("tws-session stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("tws-session stopped")
}

// follow connects, subscribes positions and account updates, and logs them
// until ctx ends.
func follow(ctx context.Context, sess *session.Session, timeout time.Duration, logger *slog.Logger) error {
	for {
		if err := sess.ConnectAndWait(timeout); err == nil {
			break
		}
		logger.Warn("terminal not reachable yet, retrying", "status", sess.Status())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(timeout):
		}
	}

	if req, err := sess.CurrentTime(); err == nil {
		if t, err := req.Wait(); err == nil {
			logger.Info("terminal clock", "time", t, "skew", time.Since(t).Round(time.Millisecond))
		}
	}

	positions, err := sess.Positions()
	if err != nil {
		return fmt.Errorf("subscribe positions: %w", err)
	}
	portfolio, err := sess.AccountUpdates("")
	if err != nil {
		return fmt.Errorf("subscribe account updates: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			p, err := positions.Next(gctx)
			if err != nil {
				return ignoreShutdown(gctx, err)
			}
			if p.SnapshotEnd {
				logger.Info("positions snapshot complete", "positions", len(sess.State().Positions()))
				continue
			}
			logger.Info("position", "account", p.Account, "symbol", p.Contract.Symbol, "quantity", p.Quantity, "avg_cost", p.AvgCost)
		}
	})
	g.Go(func() error {
		for {
			item, err := portfolio.Next(gctx)
			if err != nil {
				return ignoreShutdown(gctx, err)
			}
			if item.SnapshotEnd {
				logger.Info("portfolio snapshot complete", "account", item.Account, "rows", len(sess.State().Portfolio()))
				continue
			}
			logger.Debug("portfolio", "symbol", item.Contract.Symbol, "position", item.Position, "market_value", item.MarketValue, "unrealized_pnl", item.UnrealizedPNL)
		}
	})
	return g.Wait()
}

// ignoreShutdown hides the errors a stream returns because the process is
// stopping.
func ignoreShutdown(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// createHandler serves health and metrics.
func createHandler(metricsPath string, sess *session.Session, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, m.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := sess.Status()
		stats := sess.RouterStats()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status: "healthy",
			Components: map[string]any{
				"session": map[string]any{
					"status":     status.String(),
					"session_id": sess.SessionID(),
					"accounts":   sess.Accounts(),
					"operations": sess.Live(),
				},
				"router": stats,
			},
		}

		switch status {
		case connection.Connected:
		case connection.Connecting, connection.ReconnectWaiting:
			health.Status = "degraded"
		default:
			health.Status = "unhealthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
