// Package config loads and validates the indexer's process configuration
// (spec §6 "Process configuration"): the recognized options plus the
// ambient logging and event-bus settings needed to run it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chainindex/evmindexer/internal/constants"
)

// Config holds all configuration for the indexer process.
type Config struct {
	Node     NodeInterfaceConfig `yaml:"node"`
	Store    StoreConfig         `yaml:"store"`
	Sync     SyncConfig          `yaml:"sync"`
	Log      LogConfig           `yaml:"log"`
	EventBus EventBusConfig      `yaml:"eventbus"`
}

// NodeInterfaceConfig describes the upstream JSON-RPC node this process
// connects to (spec §6: "node interface URI (HTTP/WS/IPC, required)").
type NodeInterfaceConfig struct {
	// URI is the HTTP, WS, or IPC endpoint of the upstream full node.
	URI     string        `yaml:"uri"`
	Timeout time.Duration `yaml:"timeout"`
	// WorkerConcurrency bounds the balance/trace RPC worker pool.
	WorkerConcurrency int     `yaml:"worker_concurrency"`
	RateLimit         float64 `yaml:"rate_limit"`
	RateBurst         int     `yaml:"rate_burst"`
}

// StoreConfig describes the embedded ordered KV store and the ETL staging
// area (spec §6: "KV store path", "data-directory path").
type StoreConfig struct {
	// Path is the KV store directory.
	Path string `yaml:"path"`
	// DataDir holds the extractor's per-batch CSV staging files and the
	// address spill file.
	DataDir      string `yaml:"data_dir"`
	CacheMB      int    `yaml:"cache_mb"`
	MaxOpenFiles int    `yaml:"max_open_files"`
	WriteBufferMB int   `yaml:"write_buffer_mb"`
	ReadOnly     bool   `yaml:"readonly"`
	// ExtractorPath is the path to the external ETL binary that produces
	// the canonical-chain CSVs (spec §4.3, §9 "Keep as a black box").
	ExtractorPath string `yaml:"extractor_path"`
}

// SyncConfig controls the Indexer's outer loop (spec §6, §4.4).
type SyncConfig struct {
	// Confirmations is the number of blocks below head considered final.
	Confirmations uint64 `yaml:"confirmations"`
	// BulkSize is the half-open window width processed per batch.
	BulkSize uint64 `yaml:"bulk_size"`
	// RefreshInterval is how long the loop sleeps when caught up with
	// head, and the delay before retrying a failed batch.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// GatherInternalTransactions enables the optional trace-derived
	// internal-transaction pass (spec §4.4 step 9).
	GatherInternalTransactions bool `yaml:"gather_internal_transactions"`
	// GatherTokens enables the optional tokens & token-transfers pass
	// (spec §4.4 step 7).
	GatherTokens bool `yaml:"gather_tokens"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EventBusConfig holds EventBus configuration for distributed notification
// of committed batches and resolved balance phases.
type EventBusConfig struct {
	// Type is the event bus type: "local", "redis", "kafka".
	Type  string              `yaml:"type"`
	Redis EventBusRedisConfig `yaml:"redis"`
	Kafka EventBusKafkaConfig `yaml:"kafka"`
}

// EventBusRedisConfig holds Redis Pub/Sub EventBus configuration.
type EventBusRedisConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addresses     []string      `yaml:"addresses"`
	Password      string        `yaml:"password,omitempty"`
	DB            int           `yaml:"db"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
}

// EventBusKafkaConfig holds Kafka EventBus configuration.
type EventBusKafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration.
func (c *Config) SetDefaults() {
	if c.Node.Timeout == 0 {
		c.Node.Timeout = constants.DefaultRPCTimeout
	}
	if c.Node.WorkerConcurrency == 0 {
		c.Node.WorkerConcurrency = constants.DefaultRPCWorkerConcurrency
	}
	if c.Node.RateLimit == 0 {
		c.Node.RateLimit = constants.DefaultRPCRateLimit
	}
	if c.Node.RateBurst == 0 {
		c.Node.RateBurst = constants.DefaultRPCRateBurst
	}

	if c.Store.CacheMB == 0 {
		c.Store.CacheMB = constants.DefaultCacheMB
	}
	if c.Store.MaxOpenFiles == 0 {
		c.Store.MaxOpenFiles = constants.DefaultMaxOpenFiles
	}
	if c.Store.WriteBufferMB == 0 {
		c.Store.WriteBufferMB = constants.DefaultWriteBufferMB
	}

	if c.Sync.Confirmations == 0 {
		c.Sync.Confirmations = constants.DefaultConfirmations
	}
	if c.Sync.BulkSize == 0 {
		c.Sync.BulkSize = constants.DefaultBulkSize
	}
	if c.Sync.RefreshInterval == 0 {
		c.Sync.RefreshInterval = constants.DefaultRefreshInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.EventBus.Type == "" {
		c.EventBus.Type = "local"
	}
	if c.EventBus.Redis.ChannelPrefix == "" {
		c.EventBus.Redis.ChannelPrefix = "indexer:events"
	}
	if c.EventBus.Redis.DialTimeout == 0 {
		c.EventBus.Redis.DialTimeout = 5 * time.Second
	}
	if c.EventBus.Kafka.Topic == "" {
		c.EventBus.Kafka.Topic = "indexer-events"
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over file configuration.
func (c *Config) LoadFromEnv() error {
	if uri := os.Getenv("INDEXER_NODE_URI"); uri != "" {
		c.Node.URI = uri
	}
	if timeout := os.Getenv("INDEXER_NODE_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_NODE_TIMEOUT: %w", err)
		}
		c.Node.Timeout = d
	}
	if workers := os.Getenv("INDEXER_NODE_WORKER_CONCURRENCY"); workers != "" {
		val, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_NODE_WORKER_CONCURRENCY: %w", err)
		}
		c.Node.WorkerConcurrency = val
	}

	if path := os.Getenv("INDEXER_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if dataDir := os.Getenv("INDEXER_STORE_DATA_DIR"); dataDir != "" {
		c.Store.DataDir = dataDir
	}
	if extractorPath := os.Getenv("INDEXER_STORE_EXTRACTOR_PATH"); extractorPath != "" {
		c.Store.ExtractorPath = extractorPath
	}
	if readonly := os.Getenv("INDEXER_STORE_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_STORE_READONLY: %w", err)
		}
		c.Store.ReadOnly = val
	}

	if confirmations := os.Getenv("INDEXER_SYNC_CONFIRMATIONS"); confirmations != "" {
		val, err := strconv.ParseUint(confirmations, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_SYNC_CONFIRMATIONS: %w", err)
		}
		c.Sync.Confirmations = val
	}
	if bulkSize := os.Getenv("INDEXER_SYNC_BULK_SIZE"); bulkSize != "" {
		val, err := strconv.ParseUint(bulkSize, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_SYNC_BULK_SIZE: %w", err)
		}
		c.Sync.BulkSize = val
	}
	if refresh := os.Getenv("INDEXER_SYNC_REFRESH_INTERVAL"); refresh != "" {
		d, err := time.ParseDuration(refresh)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_SYNC_REFRESH_INTERVAL: %w", err)
		}
		c.Sync.RefreshInterval = d
	}
	if gatherInternal := os.Getenv("INDEXER_SYNC_GATHER_INTERNAL_TRANSACTIONS"); gatherInternal != "" {
		val, err := strconv.ParseBool(gatherInternal)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_SYNC_GATHER_INTERNAL_TRANSACTIONS: %w", err)
		}
		c.Sync.GatherInternalTransactions = val
	}
	if gatherTokens := os.Getenv("INDEXER_SYNC_GATHER_TOKENS"); gatherTokens != "" {
		val, err := strconv.ParseBool(gatherTokens)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_SYNC_GATHER_TOKENS: %w", err)
		}
		c.Sync.GatherTokens = val
	}

	if level := os.Getenv("INDEXER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("INDEXER_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	if ebType := os.Getenv("INDEXER_EVENTBUS_TYPE"); ebType != "" {
		c.EventBus.Type = ebType
	}
	if redisAddrs := os.Getenv("INDEXER_EVENTBUS_REDIS_ADDRESSES"); redisAddrs != "" {
		addrs := make([]string, 0)
		for _, addr := range strings.Split(redisAddrs, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				addrs = append(addrs, addr)
			}
		}
		c.EventBus.Redis.Addresses = addrs
	}
	if redisPassword := os.Getenv("INDEXER_EVENTBUS_REDIS_PASSWORD"); redisPassword != "" {
		c.EventBus.Redis.Password = redisPassword
	}
	if kafkaBrokers := os.Getenv("INDEXER_EVENTBUS_KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := make([]string, 0)
		for _, broker := range strings.Split(kafkaBrokers, ",") {
			broker = strings.TrimSpace(broker)
			if broker != "" {
				brokers = append(brokers, broker)
			}
		}
		c.EventBus.Kafka.Brokers = brokers
	}
	if kafkaTopic := os.Getenv("INDEXER_EVENTBUS_KAFKA_TOPIC"); kafkaTopic != "" {
		c.EventBus.Kafka.Topic = kafkaTopic
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Node.URI == "" {
		return fmt.Errorf("node interface URI is required")
	}
	if c.Node.Timeout <= 0 {
		return fmt.Errorf("node timeout must be positive")
	}
	if c.Node.WorkerConcurrency <= 0 {
		return fmt.Errorf("node worker concurrency must be positive")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store data directory is required")
	}
	if c.Store.ExtractorPath == "" {
		return fmt.Errorf("store extractor path is required")
	}

	if c.Sync.BulkSize < constants.MinBulkSize || c.Sync.BulkSize > constants.MaxBulkSize {
		return fmt.Errorf("sync bulk size must be between %d and %d", constants.MinBulkSize, constants.MaxBulkSize)
	}
	if c.Sync.RefreshInterval <= 0 {
		return fmt.Errorf("sync refresh interval must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	validEventBusTypes := map[string]bool{"local": true, "redis": true, "kafka": true}
	if !validEventBusTypes[c.EventBus.Type] {
		return fmt.Errorf("invalid eventbus type %q, must be one of: local, redis, kafka", c.EventBus.Type)
	}
	if c.EventBus.Type == "redis" && len(c.EventBus.Redis.Addresses) == 0 {
		return fmt.Errorf("redis eventbus selected but no addresses configured")
	}
	if c.EventBus.Type == "kafka" && len(c.EventBus.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka eventbus selected but no brokers configured")
	}

	return nil
}

// Load loads configuration in the following order: defaults, file (if
// provided), environment variables (override file), then validates.
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
