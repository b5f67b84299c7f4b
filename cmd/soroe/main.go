// Package main is the soroe CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/soroe/internal/cli"
	"github.com/hyperjump/soroe/internal/config"
	"github.com/hyperjump/soroe/internal/embedding"
	"github.com/hyperjump/soroe/internal/models"
	"github.com/hyperjump/soroe/internal/server"
	"github.com/hyperjump/soroe/internal/source"
	"github.com/hyperjump/soroe/internal/syncer"
	"github.com/hyperjump/soroe/internal/tracker"
	"github.com/hyperjump/soroe/internal/vecindex"
	"github.com/hyperjump/soroe/internal/watcher"
	"github.com/hyperjump/soroe/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/soroe/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "sync":
		runSync()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("soroe version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

type components struct {
	store        tracker.Store
	tracker      *tracker.Tracker
	embedder     embedding.Embedder
	index        vecindex.Index
	orchestrator *syncer.Orchestrator
	queue        *syncer.Queue
	scheduler    *syncer.Scheduler
	probes       map[string]server.Probe
}

func (c *components) Close() {
	if c.embedder != nil {
		_ = c.embedder.Close()
	}
	if c.index != nil {
		_ = c.index.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{probes: make(map[string]server.Probe)}

	var err error
	switch cfg.Tracker.Store {
	case "file":
		c.store, err = tracker.NewFileStore(cfg.Tracker.FilePath)
	default:
		c.store, err = tracker.NewSQLiteStore(cfg.Tracker.DatabasePath)
	}
	if err != nil {
		return nil, fmt.Errorf("open tracker store: %w", err)
	}
	c.tracker = tracker.NewTracker(c.store, logger)
	c.tracker.Load(context.Background())

	if cfg.Source.URL == "" {
		c.Close()
		return nil, fmt.Errorf("source.url is required")
	}
	src := source.NewHTTPSource(cfg.Source.URL, time.Duration(cfg.Source.Timeout)*time.Second)

	if cfg.Embedding.URL != "" {
		httpEmbedder := embedding.NewHTTPEmbedder(
			cfg.Embedding.URL,
			cfg.Embedding.APIKey,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.CacheSize,
			time.Duration(cfg.Embedding.Timeout)*time.Second,
		)
		c.embedder = httpEmbedder
		c.probes["embedding"] = httpEmbedder.Ping
	} else {
		logger.Warn("embedding.url not set, using deterministic mock embedder")
		c.embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	if cfg.Index.URL != "" {
		c.index = vecindex.NewHTTPIndex(cfg.Index.URL, cfg.Index.APIKey,
			time.Duration(cfg.Index.Timeout)*time.Second)
	} else {
		logger.Warn("index.url not set, using in-memory vector index")
		c.index, err = vecindex.NewMemoryIndex(cfg.Embedding.Dimensions)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("create memory index: %w", err)
		}
	}
	c.probes["index"] = func(ctx context.Context) error {
		_, err := c.index.Stats(ctx)
		return err
	}

	batcher := embedding.NewBatcher(c.embedder, cfg.Embedding.BatchSize, embedding.WithLogger(logger))
	syn := syncer.NewSynchronizer(c.index, c.tracker, syncer.SynchronizerOptions{
		MaxBatchSize: cfg.Index.MaxBatchSize,
		MaxAttempts:  cfg.Index.MaxAttempts,
		BaseDelay:    time.Duration(cfg.Index.BaseDelayMs) * time.Millisecond,
		RatePerSec:   cfg.Index.RatePerSec,
	}, logger)
	c.orchestrator = syncer.NewOrchestrator(src, c.tracker, batcher, syn, cfg.Sync, logger)
	c.queue = syncer.NewQueue(c.orchestrator, logger)
	c.scheduler = syncer.NewScheduler(c.queue,
		time.Duration(cfg.Sync.IntervalSeconds)*time.Second, logger)
	return c, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.queue.Run(ctx)
	go c.scheduler.Run(ctx)

	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	cfgWatch := watcher.NewConfigWatcher(resolvedConfigPath, func(next *config.Config) {
		c.scheduler.SetInterval(time.Duration(next.Sync.IntervalSeconds) * time.Second)
	}, watchOpts...)
	if err := cfgWatch.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", zap.Error(err))
	} else {
		defer cfgWatch.Stop()
	}

	srv := server.NewServer(c.orchestrator, c.queue, c.tracker, c.index, c.probes, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if err := c.tracker.Persist(shutdownCtx); err != nil {
		logger.Warn("final tracker persist failed", zap.Error(err))
	}
}

func runSync() {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	rebuild := fs.Bool("rebuild", false, "clear tracker state and re-embed everything")
	wait := fs.Bool("wait", true, "wait for the cycle to finish and print its stats")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	stats, queued, err := triggerSync(*serverURL, *rebuild, *wait)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		os.Exit(1)
	}
	if queued {
		fmt.Println("Sync queued")
		return
	}
	if err := cli.WriteRunStats(os.Stdout, stats, format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
	if stats.Failed > 0 {
		os.Exit(2)
	}
}

// triggerSync calls the server's sync or rebuild endpoint. queued is true when
// the trigger was accepted asynchronously.
func triggerSync(serverURL string, rebuild, wait bool) (stats *models.SyncRunStats, queued bool, err error) {
	path := "/api/v1/sync"
	if rebuild {
		path = "/api/v1/rebuild"
	}
	url := serverURL + path
	if wait {
		url += "?wait=true"
	}
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var s models.SyncRunStats
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return nil, false, fmt.Errorf("decode response: %w", err)
		}
		return &s, false, nil
	case http.StatusAccepted:
		return nil, true, nil
	case http.StatusConflict:
		return nil, false, fmt.Errorf("a sync cycle is already in progress")
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode status: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteJSON(os.Stdout, status)
}

func printUsage() {
	fmt.Println(`soroe - incremental vector index synchronization

Usage:
  soroe server [--config path] [--debug]   start the sync server
  soroe sync [--rebuild] [--wait=false]    trigger a sync cycle via the server
  soroe status                             show server status
  soroe version                            show version
  soroe help                               show this help

Common flags:
  --server URL    server base URL for client commands (default http://localhost:8080)
  --output FMT    sync output format: text or json`)
}
