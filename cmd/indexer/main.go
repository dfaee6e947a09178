package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/balance"
	"github.com/chainindex/evmindexer/client"
	"github.com/chainindex/evmindexer/events"
	"github.com/chainindex/evmindexer/indexer"
	"github.com/chainindex/evmindexer/internal/config"
	"github.com/chainindex/evmindexer/internal/logger"
	"github.com/chainindex/evmindexer/metrics"
	"github.com/chainindex/evmindexer/progress"
	"github.com/chainindex/evmindexer/retriever"
	"github.com/chainindex/evmindexer/storage"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile    = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion   = flag.Bool("version", false, "Show version information and exit")
		nodeURI       = flag.String("node-uri", "", "Upstream JSON-RPC node URI")
		storePath     = flag.String("store-path", "", "Embedded KV store directory")
		dataDir       = flag.String("data-dir", "", "ETL CSV staging / spill-file directory")
		extractorPath = flag.String("extractor", "", "Path to the external ETL extractor binary")
		bulkSize      = flag.Uint64("bulk-size", 0, "Blocks per extraction window")
		logLevel      = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat     = flag.String("log-format", "", "Log format (json, console)")
		metricsAddr   = flag.String("metrics-addr", "", "Address to serve /metrics on (empty disables it)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("evmindexer version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *nodeURI, *storePath, *dataDir, *extractorPath, *bulkSize, *logLevel, *logFormat)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting indexer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("node_uri", cfg.Node.URI),
		zap.String("store_path", cfg.Store.Path),
		zap.Uint64("bulk_size", cfg.Sync.BulkSize),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	rpcClient, err := client.NewClient(&client.Config{
		Endpoint: cfg.Node.URI,
		Timeout:  cfg.Node.Timeout,
		Logger:   log,
	})
	if err != nil {
		log.Fatal("failed to connect to upstream node", zap.Error(err))
	}
	defer rpcClient.Close()

	backendCfg := &storage.BackendConfig{
		Type:         storage.BackendTypePebble,
		Path:         cfg.Store.Path,
		Cache:        cfg.Store.CacheMB,
		MaxOpenFiles: cfg.Store.MaxOpenFiles,
		WriteBuffer:  cfg.Store.WriteBufferMB,
		ReadOnly:     cfg.Store.ReadOnly,
	}
	backend, err := storage.NewPebbleBackend(backendCfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	facade := storage.NewFacade(backend, log)
	defer func() {
		if err := facade.Close(); err != nil {
			log.Error("failed to close store cleanly", zap.Error(err))
		}
	}()

	progressTracker, err := progress.Open(cfg.Store.DataDir)
	if err != nil {
		log.Fatal("failed to acquire progress lock", zap.Error(err))
	}
	defer progressTracker.Close()

	rpcGatherer, err := retriever.NewRPCGatherer(retriever.RPCGathererConfig{
		Client:    rpcClient,
		RateLimit: cfg.Node.RateLimit,
		RateBurst: cfg.Node.RateBurst,
		Logger:    log,
	})
	if err != nil {
		log.Fatal("failed to build rpc gatherer", zap.Error(err))
	}

	dataRetriever, err := retriever.New(retriever.Config{
		ExtractorPath:              cfg.Store.ExtractorPath,
		OutputDir:                  cfg.Store.DataDir,
		GatherInternalTransactions: cfg.Sync.GatherInternalTransactions,
		GatherTokens:               cfg.Sync.GatherTokens,
		Logger:                     log,
	})
	if err != nil {
		log.Fatal("failed to build data retriever", zap.Error(err))
	}

	balanceGatherer, err := balance.New(balance.Config{
		DataDir: cfg.Store.DataDir,
		RPC:     rpcGatherer,
		Facade:  facade,
		Logger:  log,
	})
	if err != nil {
		log.Fatal("failed to build balance gatherer", zap.Error(err))
	}

	eventBus, err := events.New(cfg.EventBus, log)
	if err != nil {
		log.Fatal("failed to build event bus", zap.Error(err))
	}
	defer eventBus.Close()

	ingestMetrics := metrics.New("indexer", "ingest")

	idx, err := indexer.New(indexer.Config{
		Client:          rpcClient,
		Facade:          facade,
		Retriever:       dataRetriever,
		Balance:         balanceGatherer,
		Progress:        progressTracker,
		Events:          eventBus,
		Metrics:         ingestMetrics,
		Confirmations:   cfg.Sync.Confirmations,
		BulkSize:        cfg.Sync.BulkSize,
		RefreshInterval: cfg.Sync.RefreshInterval,
		Logger:          log,
	})
	if err != nil {
		log.Fatal("failed to build indexer", zap.Error(err))
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("metrics server listening", zap.String("addr", *metricsAddr))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- idx.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
		if err := <-errChan; err != nil {
			log.Error("indexer stopped with error", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			log.Error("indexer stopped with error", zap.Error(err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop metrics server gracefully", zap.Error(err))
		}
	}

	log.Info("indexer stopped")
}

// applyFlags overrides configuration values with any flags the operator set.
func applyFlags(cfg *config.Config, nodeURI, storePath, dataDir, extractorPath string, bulkSize uint64, logLevel, logFormat string) {
	if nodeURI != "" {
		cfg.Node.URI = nodeURI
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	if extractorPath != "" {
		cfg.Store.ExtractorPath = extractorPath
	}
	if bulkSize > 0 {
		cfg.Sync.BulkSize = bulkSize
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
}

// initLogger builds the process logger from the resolved configuration.
func initLogger(level, format string) (*zap.Logger, error) {
	if format == "json" {
		return logger.NewProduction()
	}
	return logger.NewWithConfig(&logger.Config{
		Level:       level,
		Encoding:    "console",
		Development: true,
	})
}
