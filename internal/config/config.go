package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnv            = "development"
	defaultLogLevel       = "info"
	defaultHTTPHost       = "0.0.0.0"
	defaultHTTPPort       = 8080
	defaultHTTPCacheTTL   = 30 * time.Second
	defaultCommandTimeout = 12 * time.Minute
	defaultMaxIdleConns   = 2
	defaultMaxOpenConns   = 10

	defaultDynamoRegion = "eu-west-1"
	defaultPageSize     = 1000
	defaultChunkSize    = 75

	defaultCheckInterval = 12 * time.Hour
	defaultMaxRetries    = 5
	defaultRetryDelay    = 30 * time.Second

	defaultAccountsTimeout = 10 * time.Second
	defaultAccountsRPS     = 20
	defaultAccountsBurst   = 5

	defaultRedisDB      = 0
	defaultWalletTTL    = 24 * time.Hour
	defaultReportsTopic = "reconciler.reports"
)

// Config keeps the runtime configuration for the checker job.
type Config struct {
	Env      string
	LogLevel string
	HTTP     HTTPConfig
	Postgres PostgresConfig
	Ledger   LedgerConfig
	Schedule ScheduleConfig
	Accounts AccountsConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host     string
	Port     int
	CacheTTL time.Duration
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// PostgresConfig stores database connection parameters.
type PostgresConfig struct {
	DSN            string
	CommandTimeout time.Duration
	MaxIdleConns   int
	MaxOpenConns   int
}

// LedgerConfig points at the wide-column ledger tables.
type LedgerConfig struct {
	Region    string
	Endpoint  string
	PageSize  int
	ChunkSize int
	Tables    LedgerTables
}

// LedgerTables names every ledger table the checkers read.
type LedgerTables struct {
	LimitOrders    string
	MarketOrders   string
	Trades         string
	BalanceUpdates string
	CashOperations string
	Transfers      string
	FeedHistory    string
}

// ScheduleConfig controls how often the checkers run and how hard they retry.
type ScheduleConfig struct {
	Interval   time.Duration
	MaxRetries int
	RetryDelay time.Duration
	RunOnStart bool
}

// AccountsConfig stores the wallet and asset service endpoints.
type AccountsConfig struct {
	WalletsURL string
	AssetsURL  string
	Timeout    time.Duration
	RPS        int
	Burst      int
}

// RedisConfig stores Redis connection parameters for the wallet cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	WalletTTL time.Duration
}

// RabbitMQConfig stores the exchange run reports are published to.
type RabbitMQConfig struct {
	URL             string
	ReportsExchange string
}

// Load builds Config from environment variables, reading a .env file first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}
	cacheTTL, err := getDuration("HTTP_CACHE_TTL", defaultHTTPCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_CACHE_TTL: %w", err)
	}
	commandTimeout, err := getDuration("DATABASE_COMMAND_TIMEOUT", defaultCommandTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_COMMAND_TIMEOUT: %w", err)
	}
	maxIdle, err := getInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_MAX_IDLE_CONNS: %w", err)
	}
	maxOpen, err := getInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_MAX_OPEN_CONNS: %w", err)
	}

	ledger, err := loadLedger()
	if err != nil {
		return nil, err
	}
	schedule, err := loadSchedule()
	if err != nil {
		return nil, err
	}
	accounts, err := loadAccounts()
	if err != nil {
		return nil, err
	}

	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}
	walletTTL, err := getDuration("REDIS_WALLET_TTL", defaultWalletTTL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_WALLET_TTL: %w", err)
	}

	return &Config{
		Env:      getString("APP_ENV", defaultEnv),
		LogLevel: getString("LOG_LEVEL", defaultLogLevel),
		HTTP: HTTPConfig{
			Host:     getString("HTTP_HOST", defaultHTTPHost),
			Port:     port,
			CacheTTL: cacheTTL,
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			CommandTimeout: commandTimeout,
			MaxIdleConns:   maxIdle,
			MaxOpenConns:   maxOpen,
		},
		Ledger:   ledger,
		Schedule: schedule,
		Accounts: accounts,
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			WalletTTL: walletTTL,
		},
		RabbitMQ: RabbitMQConfig{
			URL:             os.Getenv("RABBITMQ_URL"),
			ReportsExchange: getString("RABBITMQ_REPORTS_EXCHANGE", defaultReportsTopic),
		},
	}, nil
}

func loadLedger() (LedgerConfig, error) {
	pageSize, err := getInt("LEDGER_PAGE_SIZE", defaultPageSize)
	if err != nil {
		return LedgerConfig{}, fmt.Errorf("parse LEDGER_PAGE_SIZE: %w", err)
	}
	chunkSize, err := getInt("LEDGER_CHUNK_SIZE", defaultChunkSize)
	if err != nil {
		return LedgerConfig{}, fmt.Errorf("parse LEDGER_CHUNK_SIZE: %w", err)
	}
	if chunkSize <= 0 {
		return LedgerConfig{}, errors.New("LEDGER_CHUNK_SIZE must be positive")
	}
	return LedgerConfig{
		Region:    getString("DYNAMODB_REGION", defaultDynamoRegion),
		Endpoint:  os.Getenv("DYNAMODB_ENDPOINT"),
		PageSize:  pageSize,
		ChunkSize: chunkSize,
		Tables: LedgerTables{
			LimitOrders:    getString("LEDGER_TABLE_LIMIT_ORDERS", "LimitOrders"),
			MarketOrders:   getString("LEDGER_TABLE_MARKET_ORDERS", "MarketOrders"),
			Trades:         getString("LEDGER_TABLE_TRADES", "Trades"),
			BalanceUpdates: getString("LEDGER_TABLE_BALANCE_UPDATES", "UpdateBalanceLog"),
			CashOperations: getString("LEDGER_TABLE_CASH_OPERATIONS", "OperationsCash"),
			Transfers:      getString("LEDGER_TABLE_TRANSFERS", "Transfers"),
			FeedHistory:    getString("LEDGER_TABLE_FEED_HISTORY", "FeedHistory"),
		},
	}, nil
}

func loadSchedule() (ScheduleConfig, error) {
	interval, err := getDuration("CHECK_INTERVAL", defaultCheckInterval)
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("parse CHECK_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return ScheduleConfig{}, errors.New("CHECK_INTERVAL must be positive")
	}
	maxRetries, err := getInt("CHECK_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("parse CHECK_MAX_RETRIES: %w", err)
	}
	retryDelay, err := getDuration("CHECK_RETRY_DELAY", defaultRetryDelay)
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("parse CHECK_RETRY_DELAY: %w", err)
	}
	runOnStart, err := getBool("CHECK_RUN_ON_START", true)
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("parse CHECK_RUN_ON_START: %w", err)
	}
	return ScheduleConfig{
		Interval:   interval,
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		RunOnStart: runOnStart,
	}, nil
}

func loadAccounts() (AccountsConfig, error) {
	timeout, err := getDuration("ACCOUNTS_TIMEOUT", defaultAccountsTimeout)
	if err != nil {
		return AccountsConfig{}, fmt.Errorf("parse ACCOUNTS_TIMEOUT: %w", err)
	}
	rps, err := getInt("ACCOUNTS_RPS", defaultAccountsRPS)
	if err != nil {
		return AccountsConfig{}, fmt.Errorf("parse ACCOUNTS_RPS: %w", err)
	}
	burst, err := getInt("ACCOUNTS_BURST", defaultAccountsBurst)
	if err != nil {
		return AccountsConfig{}, fmt.Errorf("parse ACCOUNTS_BURST: %w", err)
	}
	return AccountsConfig{
		WalletsURL: strings.TrimRight(os.Getenv("ACCOUNTS_WALLETS_URL"), "/"),
		AssetsURL:  strings.TrimRight(os.Getenv("ACCOUNTS_ASSETS_URL"), "/"),
		Timeout:    timeout,
		RPS:        rps,
		Burst:      burst,
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to duration: %w", key, value, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("convert %s value %q to bool: %w", key, value, err)
	}
	return parsed, nil
}
