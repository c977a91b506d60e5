// streamtest connects to the terminal and streams quotes and depth for one
// contract to the console.
// Usage: go run ./cmd/streamtest --config configs/session.local.yaml --symbol AAPL
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/tws-session/internal/config"
	"github.com/rickgao/tws-session/internal/connection"
	"github.com/rickgao/tws-session/internal/model"
	"github.com/rickgao/tws-session/internal/session"
	"github.com/rickgao/tws-session/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/session.example.yaml", "path to config file")
	symbol := flag.String("symbol", "AAPL", "contract symbol")
	conID := flag.Int64("conid", 0, "contract id (optional)")
	exchange := flag.String("exchange", "SMART", "routing exchange")
	rows := flag.Int("rows", 5, "depth rows per side, 0 disables depth")
	verbose := flag.Bool("verbose", false, "print full update JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := transport.NewClient(cfg.ClientConfig(), logger)
	sess := session.New(cfg.SessionConfig(), client, logger)
	sess.OnStatus(func(from, to connection.Status) {
		fmt.Printf("[STATUS] %s -> %s\n", from, to)
	})

	if err := sess.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	logger.Info("connecting", "url", cfg.Terminal.URL, "client_id", cfg.Terminal.ClientID)
	if err := sess.ConnectAndWait(cfg.Session.RequestTimeout); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "session_id", sess.SessionID(), "accounts", sess.Accounts())

	contract := model.Contract{
		ConID:    *conID,
		Symbol:   *symbol,
		SecType:  "STK",
		Exchange: *exchange,
		Currency: "USD",
	}

	quotes, err := sess.MarketData(contract, session.MarketDataOptions{})
	if err != nil {
		logger.Error("failed to subscribe market data", "error", err)
		os.Exit(1)
	}
	go printQuotes(ctx, quotes, *verbose)

	if *rows > 0 {
		depth, err := sess.MarketDepth(contract, *rows)
		if err != nil {
			logger.Error("failed to subscribe market depth", "error", err)
			os.Exit(1)
		}
		go printDepth(ctx, depth, *verbose)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sess.RouterStats()
				logger.Info("stats",
					"status", sess.Status(),
					"operations", sess.Live(),
					"events", stats.EventsReceived,
					"handshakes", stats.Handshakes,
					"connection_losses", stats.ConnectionLosses,
					"faults", stats.Faults,
					"stray_ends", stats.StrayEnds,
					"quote_backlog", quotes.Pending(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	if err := sess.Close(); err != nil {
		logger.Warn("session close", "error", err)
	}
	logger.Info("shutdown complete")
}

func printQuotes(ctx context.Context, sub *session.Subscription[model.QuoteSnapshot], verbose bool) {
	for {
		q, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				fmt.Printf("[QUOTE] stream ended: %v\n", err)
			}
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(q, "", "  ")
			fmt.Printf("[QUOTE] %s\n", data)
			continue
		}
		bid, _ := q.Price(model.TickBid)
		ask, _ := q.Price(model.TickAsk)
		last, _ := q.Price(model.TickLast)
		vol, _ := q.Size(model.TickVolume)
		fmt.Printf("[QUOTE] req=%d bid=%.4f ask=%.4f last=%.4f vol=%s\n",
			q.ReqID, bid, ask, last, vol)
	}
}

func printDepth(ctx context.Context, sub *session.Subscription[model.OrderBook], verbose bool) {
	for {
		book, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				fmt.Printf("[DEPTH] stream ended: %v\n", err)
			}
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(book, "", "  ")
			fmt.Printf("[DEPTH] %s\n", data)
			continue
		}
		fmt.Printf("[DEPTH] instrument=%d bids=%d asks=%d", book.Instrument, len(book.Bids), len(book.Asks))
		if len(book.Bids) > 0 {
			fmt.Printf(" best_bid=%.4f x %s", book.Bids[0].Price, book.Bids[0].Size)
		}
		if len(book.Asks) > 0 {
			fmt.Printf(" best_ask=%.4f x %s", book.Asks[0].Price, book.Asks[0].Size)
		}
		fmt.Println()
	}
}
