package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the decision engine.
type Config struct {
	Port string

	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string
	Symbols          []string
	EnableStream     bool

	// Market analysis
	KlineInterval string
	KlineLimit    int

	// Strategy ensemble
	EnsembleMethod  string
	MinConfidence   float64
	StrategyTimeout time.Duration
	StrategiesPath  string

	// Position sizing
	PortfolioValue  float64
	MaxRiskPerTrade float64

	// Evaluation cycle
	EvaluationCron string
	TopN           int
	RunOnStart     bool

	// Database
	DBPath    string
	Retention time.Duration
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "true") == "true",
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		Symbols:          splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		EnableStream:     getEnv("ENABLE_STREAM", "true") == "true",

		KlineInterval: getEnv("KLINE_INTERVAL", "1h"),
		KlineLimit:    getEnvInt("KLINE_LIMIT", 168),

		EnsembleMethod:  getEnv("ENSEMBLE_METHOD", "weighted_average"),
		MinConfidence:   getEnvFloat("MIN_CONFIDENCE", 0.6),
		StrategyTimeout: getEnvDuration("STRATEGY_TIMEOUT", 10*time.Second),
		StrategiesPath:  getEnv("STRATEGIES_PATH", "./strategies.yaml"),

		PortfolioValue:  getEnvFloat("PORTFOLIO_VALUE", 10000.0),
		MaxRiskPerTrade: getEnvFloat("MAX_RISK_PER_TRADE", 0.02),

		// every hour at :05, after the hourly candle closes
		EvaluationCron: getEnv("EVALUATION_CRON", "0 5 * * * *"),
		TopN:           getEnvInt("TOP_N", 5),
		RunOnStart:     getEnv("RUN_ON_START", "true") == "true",

		DBPath:    getEnv("DB_PATH", "./data/dualinvest.db"),
		Retention: getEnvDuration("RETENTION", 30*24*time.Hour),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
