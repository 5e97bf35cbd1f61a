package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/api"
	"dualinvest-core/internal/engine"
	"dualinvest-core/internal/events"
	"dualinvest-core/internal/scheduler"
	"dualinvest-core/internal/strategy"
	"dualinvest-core/internal/valuation"
	"dualinvest-core/pkg/config"
	"dualinvest-core/pkg/db"
	market "dualinvest-core/pkg/market/binance"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("[INFO] starting dual investment engine v%s (testnet=%v, symbols=%v)",
		version, cfg.BinanceTestnet, cfg.Symbols)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	client := market.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceTestnet)

	analyzer := analysis.NewAnalyzer(analysis.Config{})
	valuator := valuation.NewValuator(valuation.Config{})

	manager := strategy.NewManager(strategy.Options{
		Method:        strategy.EnsembleMethod(cfg.EnsembleMethod),
		MinConfidence: cfg.MinConfidence,
		Timeout:       cfg.StrategyTimeout,
	})
	if configs, err := strategy.LoadConfig(cfg.StrategiesPath); err != nil {
		log.Printf("[WARN] strategy config %s unavailable (%v), using defaults", cfg.StrategiesPath, err)
		manager.AddStrategy(strategy.NewDualInvestmentStrategy(valuator, cfg.MinConfidence), 1.0)
	} else {
		strategy.Register(manager, configs, valuator)
		if err := strategy.SyncConfigToDB(database.DB, configs); err != nil {
			log.Printf("[WARN] sync strategy config: %v", err)
		}
	}
	if len(manager.Strategies()) == 0 {
		log.Fatal("no strategies registered")
	}

	eng, err := engine.New(engine.Config{
		MarketData:    client,
		Analyzer:      analyzer,
		Manager:       manager,
		Bus:           bus,
		Store:         database,
		KlineInterval: cfg.KlineInterval,
		KlineLimit:    cfg.KlineLimit,
		TopN:          cfg.TopN,
		Portfolio: strategy.Portfolio{
			TotalValue:      cfg.PortfolioValue,
			MaxRiskPerTrade: cfg.MaxRiskPerTrade,
		},
	})
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	// Live price ticks feed the websocket fan-out; evaluation itself works
	// from REST klines.
	if cfg.EnableStream {
		go streamTicks(ctx, bus, cfg)
	}

	sched := scheduler.New(ctx, eng, database, cfg.Symbols, cfg.TopN, cfg.Retention)
	if err := sched.RegisterAll(cfg.EvaluationCron); err != nil {
		log.Fatalf("scheduler init failed: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	if cfg.RunOnStart {
		go sched.RunCycleNow()
	}

	server := api.NewServer(bus, database, eng, manager, api.SystemMeta{
		Version: version,
		Testnet: cfg.BinanceTestnet,
		Symbols: cfg.Symbols,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Printf("[ERROR] http server: %v", err)
			stop()
		}
	}()
	log.Printf("[INFO] listening on :%s", cfg.Port)

	<-ctx.Done()
	log.Println("[INFO] shutting down")
}

// streamTicks keeps a miniTicker subscription alive and republishes updates
// on the bus. Reconnects on stream failure until ctx is cancelled.
func streamTicks(ctx context.Context, bus *events.Bus, cfg *config.Config) {
	stream := market.NewStreamClient(cfg.BinanceTestnet)
	for ctx.Err() == nil {
		ticks, stop, err := stream.SubscribeMiniTickers(ctx, cfg.Symbols)
		if err != nil {
			log.Printf("[WARN] ticker stream: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for tick := range ticks {
			bus.Publish(events.EventPriceTick, tick)
		}
		stop()
		log.Println("[WARN] ticker stream closed, reconnecting")
	}
}
