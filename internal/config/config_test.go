package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Node: NodeInterfaceConfig{
			URI:               "http://localhost:8545",
			Timeout:           30 * time.Second,
			WorkerConcurrency: 16,
		},
		Store: StoreConfig{
			Path:          "/tmp/indexer-test/store",
			DataDir:       "/tmp/indexer-test/data",
			ExtractorPath: "/usr/local/bin/evm-extractor",
		},
		Sync: SyncConfig{
			Confirmations:   12,
			BulkSize:        10000,
			RefreshInterval: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		EventBus: EventBusConfig{
			Type: "local",
		},
	}
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, uint64(12), cfg.Sync.Confirmations)
	assert.Equal(t, uint64(10000), cfg.Sync.BulkSize)
	assert.Equal(t, 15*time.Second, cfg.Sync.RefreshInterval)
	assert.Equal(t, "local", cfg.EventBus.Type)
	assert.Equal(t, 16, cfg.Node.WorkerConcurrency)
}

func TestConfigValidateAcceptsValidConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfigValidateRejectsMissingNodeURI(t *testing.T) {
	cfg := validConfig()
	cfg.Node.URI = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node interface URI is required")
}

func TestConfigValidateRejectsMissingStorePath(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Path = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store path is required")
}

func TestConfigValidateRejectsMissingExtractorPath(t *testing.T) {
	cfg := validConfig()
	cfg.Store.ExtractorPath = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store extractor path is required")
}

func TestConfigValidateRejectsBulkSizeOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.BulkSize = 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync bulk size must be between")
}

func TestConfigValidateRejectsInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestConfigValidateRejectsKafkaWithoutBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.EventBus.Type = "kafka"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
node:
  uri: "http://localhost:8545"
  worker_concurrency: 8
store:
  path: /data/store
  data_dir: /data/staging
  extractor_path: /usr/local/bin/evm-extractor
sync:
  confirmations: 20
  bulk_size: 5000
log:
  level: debug
  format: console
eventbus:
  type: local
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.Node.URI)
	assert.Equal(t, 8, cfg.Node.WorkerConcurrency)
	assert.Equal(t, uint64(20), cfg.Sync.Confirmations)
	assert.Equal(t, uint64(5000), cfg.Sync.BulkSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
node:
  uri: "http://localhost:8545"
store:
  path: /data/store
  data_dir: /data/staging
sync:
  bulk_size: 5000
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	t.Setenv("INDEXER_STORE_EXTRACTOR_PATH", "/usr/local/bin/evm-extractor")
	t.Setenv("INDEXER_SYNC_BULK_SIZE", "2000")
	t.Setenv("INDEXER_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), cfg.Sync.BulkSize)
	assert.Equal(t, "warn", cfg.Log.Level)
}
