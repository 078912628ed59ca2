// Command gridbot runs the cancel-and-replace grid trader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/config"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/gateway"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/grid"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/ledger"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/metrics"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/mock"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/oracle"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/recorder"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/scheduler"
	"github.com/marcosgabbardo/mercadobitcoin-grid/pkg/logging"
)

const version = "1.1.0"

var (
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("gridbot %s\n", version)
		return
	}

	if envConfig := os.Getenv("GRIDBOT_CONFIG"); envConfig != "" {
		*configFile = envConfig
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting gridbot",
		"version", version,
		"exchange", cfg.Exchange.Name,
		"pair", cfg.Grid.Pair,
		"side", cfg.Grid.Side,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := buildGateway(cfg, logger)

	rec, cleanupRecorder := buildRecorder(cfg, logger)
	defer cleanupRecorder()

	priceOracle, stopOracle := buildOracle(cfg, gw, logger)
	defer stopOracle()

	side := core.Side(cfg.Grid.Side)
	planner := grid.NewPlanner(grid.Config{
		Pair:          cfg.Grid.Pair,
		Side:          side,
		SplitCount:    cfg.Grid.SplitCount,
		SpreadPercent: decimal.NewFromFloat(cfg.Grid.SpreadPercent),
		MinBalance:    decimal.NewFromFloat(cfg.Grid.MinBalance),
		MinQuantity:   decimal.NewFromFloat(cfg.Grid.MinQuantity),
		StartValue:    decimal.NewFromFloat(cfg.Grid.StartValue),
		PriceDecimals: int32(cfg.Grid.PriceDecimals),
		QtyDecimals:   int32(cfg.Grid.QtyDecimals),
	})

	sched := scheduler.New(scheduler.Config{
		Pair:          cfg.Grid.Pair,
		Side:          side,
		QuoteCurrency: cfg.Grid.QuoteCurrency(),
		BaseCurrency:  cfg.Grid.BaseCurrency(),
		PollInterval:  time.Duration(cfg.Grid.PollIntervalSeconds) * time.Second,
	}, planner, gw, priceOracle, rec, ledger.New(), logger)

	var metricsServer *metrics.Server
	if cfg.App.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.App.MetricsPort, logger)
		metricsServer.Start()
	}

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(runCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler exited", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.App.CancelOnExit {
		logger.Info("canceling open orders before exit")
		sched.CancelOpenOrders(shutdownCtx)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("gridbot stopped")
}

func buildGateway(cfg *config.Config, logger core.ILogger) core.IOrderGateway {
	switch cfg.Exchange.Name {
	case "binance":
		return gateway.NewBinance(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.BaseURL, logger)
	case "mock":
		logger.Warn("using mock exchange, no real orders will be placed")
		gw := mock.NewGateway()
		gw.SetBalance(cfg.Grid.QuoteCurrency(), decimal.NewFromInt(100000))
		gw.SetBalance(cfg.Grid.BaseCurrency(), decimal.NewFromInt(1))
		gw.SetTicker(&core.Ticker{
			Pair:    cfg.Grid.Pair,
			Last:    decimal.NewFromInt(50000),
			BestBid: decimal.NewFromInt(49950),
			BestAsk: decimal.NewFromInt(50050),
		})
		return gw
	default:
		return gateway.NewMercadoBitcoin(cfg.Exchange.APIID, cfg.Exchange.APISecret, cfg.Exchange.BaseURL, logger)
	}
}

func buildRecorder(cfg *config.Config, logger core.ILogger) (core.IEventRecorder, func()) {
	if !cfg.Storage.Enabled {
		return recorder.NewNopRecorder(), func() {}
	}

	sqlite, err := recorder.NewSQLiteRecorder(cfg.Storage.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to open audit database", "path", cfg.Storage.DatabasePath, "error", err)
	}

	async := recorder.NewAsyncRecorder(sqlite, logger)
	return async, func() {
		async.Close()
		_ = sqlite.Close()
	}
}

// buildOracle wires the reference price source. Mercado Bitcoin gets the
// websocket stream with a REST fallback; other venues poll the ticker.
func buildOracle(cfg *config.Config, gw core.IOrderGateway, logger core.ILogger) (core.IPriceOracle, func()) {
	rest := oracle.NewTickerOracle(gw, logger)

	if cfg.Exchange.Name != "mercadobitcoin" {
		return rest, func() {}
	}

	maxAge := time.Duration(cfg.Grid.PollIntervalSeconds) * time.Second
	stream := oracle.NewStreamOracle(
		gateway.DefaultMercadoBitcoinStreamURL,
		gateway.TickerSubscription(cfg.Grid.Pair),
		gateway.NewTickerParser(cfg.Grid.Pair),
		rest,
		maxAge,
		logger,
	)
	stream.Start()
	return stream, stream.Stop
}
