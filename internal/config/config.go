package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// NEAR RPC settings
	RPCUrl       string
	RPCRateLimit float64 // requests per second, 0 = unlimited

	// Ref Finance contracts
	ExchangeContract string
	DCLContract      string
	WrapNearContract string
	DefaultPoolID    string

	// Indexers
	IndexerURL      string
	IndexerTimeout  time.Duration
	IndexerMaxAge   time.Duration
	PriceIndexerURL string

	// Token registry
	TokenRegistryPath string

	// Swap settings
	DefaultSlippagePercent decimal.Decimal
	MaxQuoteAge            time.Duration
	ConfirmTimeout         time.Duration

	// Gas and deposit overrides, empty = built-in defaults
	FtTransferCallGas string
	StorageDepositGas string
	NearDepositGas    string
	StorageDepositFT  string

	// Risk policy
	MaxPriceImpactPercent decimal.Decimal
	RequireHighImpactAck  bool
	AllowedTokens         []string
	DailyPlanLimit        int

	// Pool refresher
	PoolIDs            []string
	RefreshInterval    time.Duration
	RefreshParallelism int

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// API server
	APIAddr        string
	APIKey         string
	APIRateLimit   float64 // quote and plan requests per second per client
	APIRateBurst   int
	MetricsEnabled bool
	DevMode        bool

	LogLevel string
}

func Load() *Config {
	return &Config{
		// RPC
		RPCUrl:       getEnv("NEAR_RPC_URL", "https://rpc.mainnet.near.org"),
		RPCRateLimit: getFloatEnv("NEAR_RPC_RATE_LIMIT", 10),

		// Ref
		ExchangeContract: getEnv("REF_EXCHANGE_CONTRACT", "v2.ref-finance.near"),
		DCLContract:      getEnv("REF_DCL_CONTRACT", "dclv2.ref-labs.near"),
		WrapNearContract: getEnv("WRAP_NEAR_CONTRACT", "wrap.near"),
		DefaultPoolID:    getEnv("REF_POOL_ID", "79"),

		// Indexers
		IndexerURL:      getEnv("REF_INDEXER_URL", "https://indexer.ref.finance"),
		IndexerTimeout:  getDurationEnv("REF_INDEXER_TIMEOUT", 3*time.Second),
		IndexerMaxAge:   getDurationEnv("REF_INDEXER_MAX_AGE", 60*time.Second),
		PriceIndexerURL: getEnv("PRICE_INDEXER_URL", "https://indexer.ref.finance"),

		TokenRegistryPath: getEnv("TOKEN_REGISTRY_PATH", ""),

		// Swap
		DefaultSlippagePercent: getDecimalEnv("DEFAULT_SLIPPAGE_PERCENT", decimal.RequireFromString("0.5")),
		MaxQuoteAge:            getDurationEnv("MAX_QUOTE_AGE", 30*time.Second),
		ConfirmTimeout:         getDurationEnv("CONFIRM_TIMEOUT", 60*time.Second),

		FtTransferCallGas: getEnv("FT_TRANSFER_CALL_GAS", ""),
		StorageDepositGas: getEnv("STORAGE_DEPOSIT_GAS", ""),
		NearDepositGas:    getEnv("NEAR_DEPOSIT_GAS", ""),
		StorageDepositFT:  getEnv("STORAGE_DEPOSIT_FT", ""),

		// Risk
		MaxPriceImpactPercent: getDecimalEnv("MAX_PRICE_IMPACT_PERCENT", decimal.NewFromInt(15)),
		RequireHighImpactAck:  getBoolEnv("REQUIRE_HIGH_IMPACT_ACK", true),
		AllowedTokens:         getListEnv("ALLOWED_TOKENS", nil),
		DailyPlanLimit:        getIntEnv("DAILY_PLAN_LIMIT", 0),

		// Refresher
		PoolIDs:            getListEnv("POOL_IDS", []string{"79"}),
		RefreshInterval:    getDurationEnv("REFRESH_INTERVAL", 30*time.Second),
		RefreshParallelism: getIntEnv("REFRESH_PARALLELISM", 4),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "ref"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 3),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 500*time.Millisecond),

		// API
		APIAddr:        getEnv("API_ADDR", ":8090"),
		APIKey:         getEnv("API_KEY", ""),
		APIRateLimit:   getFloatEnv("API_RATE_LIMIT", 5),
		APIRateBurst:   getIntEnv("API_RATE_BURST", 10),
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
		DevMode:        getBoolEnv("DEV_MODE", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCUrl) == "" {
		return fmt.Errorf("NEAR_RPC_URL is required")
	}
	if c.ExchangeContract == "" {
		return fmt.Errorf("REF_EXCHANGE_CONTRACT is required")
	}
	if c.WrapNearContract == "" {
		return fmt.Errorf("WRAP_NEAR_CONTRACT is required")
	}
	if c.DefaultSlippagePercent.IsNegative() || c.DefaultSlippagePercent.GreaterThan(decimal.NewFromInt(50)) {
		return fmt.Errorf("DEFAULT_SLIPPAGE_PERCENT must be within [0, 50], got %s", c.DefaultSlippagePercent)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be > 0")
	}
	if c.MaxQuoteAge <= 0 {
		return fmt.Errorf("MAX_QUOTE_AGE must be > 0")
	}
	if c.MaxPriceImpactPercent.IsNegative() {
		return fmt.Errorf("MAX_PRICE_IMPACT_PERCENT must be >= 0")
	}
	if c.DailyPlanLimit < 0 {
		return fmt.Errorf("DAILY_PLAN_LIMIT must be >= 0")
	}
	if c.RefreshParallelism <= 0 {
		return fmt.Errorf("REFRESH_PARALLELISM must be > 0")
	}
	if c.APIRateLimit < 0 || c.APIRateBurst < 0 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_BURST must be >= 0")
	}
	for _, v := range []struct{ key, val string }{
		{"FT_TRANSFER_CALL_GAS", c.FtTransferCallGas},
		{"STORAGE_DEPOSIT_GAS", c.StorageDepositGas},
		{"NEAR_DEPOSIT_GAS", c.NearDepositGas},
		{"STORAGE_DEPOSIT_FT", c.StorageDepositFT},
	} {
		if v.val == "" {
			continue
		}
		if !isDigits(v.val) {
			return fmt.Errorf("%s must be an unsigned integer, got %q", v.key, v.val)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// NewLogger builds the text logger used by the binaries.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getListEnv splits a comma separated value, dropping empty entries
func getListEnv(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func getDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}
