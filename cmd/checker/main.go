package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"reconciler/internal/application/checkers"
	"reconciler/internal/application/reconcile"
	"reconciler/internal/config"
	domain "reconciler/internal/domain/entity/ledger"
	"reconciler/internal/domain/interfaces"
	"reconciler/internal/infrastructure/accounts"
	"reconciler/internal/infrastructure/broker"
	"reconciler/internal/infrastructure/ledger"
	"reconciler/internal/infrastructure/relational"
	infrahttp "reconciler/internal/interfaces/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.LogLevel, logger.GetLevel())
	}

	db, err := relational.Open(cfg.Postgres, logger)
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := relational.Migrate(db); err != nil {
		logger.Fatalf("failed to migrate schema: %v", err)
	}

	dynamo, err := ledger.NewClient(ctx, cfg.Ledger.Region, cfg.Ledger.Endpoint)
	if err != nil {
		logger.Fatalf("failed to init ledger client: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var publisher interfaces.ReportPublisher
	if cfg.RabbitMQ.URL != "" {
		p, err := broker.NewPublisher(cfg.RabbitMQ, logger)
		if err != nil {
			logger.Fatalf("failed to init rabbitmq publisher: %v", err)
		}
		defer p.Close()
		publisher = p
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := reconcile.NewMetrics(registry)

	checkerList := buildCheckers(cfg, dynamo, db, redisClient, logger)
	orchestrator := reconcile.NewOrchestrator(checkerList, reconcile.OrchestratorConfig{
		MaxRetries: cfg.Schedule.MaxRetries,
		RetryDelay: cfg.Schedule.RetryDelay,
		Publisher:  publisher,
		Metrics:    metrics,
	}, logger)
	scheduler := reconcile.NewScheduler(orchestrator, cfg.Schedule.Interval, cfg.Schedule.RunOnStart, metrics, logger)

	handler := infrahttp.NewHandler(orchestrator, scheduler,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), redisClient, cfg.HTTP.CacheTTL)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("checker stopped with error: %v", err)
	}
	logger.Info("checker stopped")
}

// buildCheckers wires the checkers in the order they run: balances first, then cash,
// orders and trades, candles last.
func buildCheckers(cfg *config.Config, api ledger.API, db *gorm.DB, redisClient *redis.Client, logger *logrus.Logger) []reconcile.Checker {
	tables := cfg.Ledger.Tables
	table := func(name, partition, windowAttr string, rowKeyWindow bool) ledger.TableConfig {
		return ledger.TableConfig{
			Name:         name,
			Partition:    partition,
			WindowAttr:   windowAttr,
			RowKeyWindow: rowKeyWindow,
			PageSize:     cfg.Ledger.PageSize,
			ChunkSize:    cfg.Ledger.ChunkSize,
		}
	}

	limitTable := ledger.NewTable[domain.LimitOrderRecord](api, table(tables.LimitOrders, domain.OrderIDPartition, "CreatedAt", false), logger)
	marketTable := ledger.NewTable[domain.MarketOrderRecord](api, table(tables.MarketOrders, domain.OrderIDPartition, "CreatedAt", false), logger)
	tradeTable := ledger.NewTable[domain.ClientTradeRecord](api, table(tables.Trades, domain.TradesByDatePartition, "DateTime", false), logger)
	balanceTable := ledger.NewTable[domain.BalanceChangeRecord](api, table(tables.BalanceUpdates, "", "TransactionTimestamp", false), logger)
	cashTable := ledger.NewTable[domain.CashOperationRecord](api, table(tables.CashOperations, "", "DateTime", false), logger)
	transferTable := ledger.NewTable[domain.TransferRecord](api, table(tables.Transfers, "", "DateTime", false), logger)
	feedTable := ledger.NewTable[domain.FeedHistoryRecord](api, table(tables.FeedHistory, "", domain.RowKeyAttr, true), logger)

	ledgerOrders := ledger.NewOrders(limitTable, marketTable)
	ledgerTrades := ledger.NewTrades(tradeTable)
	resolver := checkers.NewOrderResolver(relational.NewOrders(db), ledgerOrders)

	var (
		wallets *checkers.WalletMapper
		pairs   interfaces.AssetPairLister
	)
	if cfg.Accounts.WalletsURL != "" || cfg.Accounts.AssetsURL != "" {
		client := accounts.NewClient(cfg.Accounts, logger)
		if cfg.Accounts.WalletsURL != "" {
			walletResolver := accounts.NewWalletResolver(client, cfg.Accounts.WalletsURL, redisClient, cfg.Redis.WalletTTL)
			wallets = checkers.NewWalletMapper(walletResolver, db, logger)
		}
		if cfg.Accounts.AssetsURL != "" {
			pairs = accounts.NewAssetPairs(client, cfg.Accounts.AssetsURL)
		}
	}

	deps := checkers.Deps{DB: db, CommandTimeout: cfg.Postgres.CommandTimeout, Logger: logger}
	return []reconcile.Checker{
		checkers.NewBalanceUpdates(balanceTable, deps),
		checkers.NewCashOperations(cashTable, deps),
		checkers.NewTransfers(transferTable, deps),
		checkers.NewMarketOrders(marketTable, ledgerTrades, resolver, deps),
		checkers.NewLimitOrders(limitTable, ledgerTrades, resolver, deps),
		checkers.NewTrades(tradeTable, wallets, deps),
		checkers.NewCandlesticks(checkers.NewCandleSource(feedTable, pairs, logger), deps),
	}
}
