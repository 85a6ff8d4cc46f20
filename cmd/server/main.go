package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/roadwatch/internal/api"
	"github.com/good-yellow-bee/roadwatch/internal/api/health"
	"github.com/good-yellow-bee/roadwatch/internal/detection"
	"github.com/good-yellow-bee/roadwatch/internal/enrichment"
	"github.com/good-yellow-bee/roadwatch/internal/events"
	"github.com/good-yellow-bee/roadwatch/internal/incident"
	"github.com/good-yellow-bee/roadwatch/internal/ingest"
	"github.com/good-yellow-bee/roadwatch/internal/metrics"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
	"github.com/good-yellow-bee/roadwatch/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "roadwatch-server",
	Short: "Roadwatch Server - Traffic incident detection service",
	Long: `Roadwatch Server ingests roadside sensor readings, detects traffic
incidents from flow, speed, and stopped-vehicle anomalies, and manages
the incident lifecycle with AI-assisted analysis.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("roadwatch-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runRetentionSweep deletes readings older than the retention period
// once an hour until ctx is canceled.
func runRetentionSweep(ctx context.Context, readings storage.ReadingRepository, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := readings.DeleteBefore(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				log.Printf("reading retention sweep error: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("reading retention sweep: deleted %d readings", deleted)
			}
		}
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.Address = httpAddr
	}
	cfg.Verbose = verbose

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Initialize primary storage
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Printf("database initialized at %s", cfg.Database.Path)

	// Seed road topology
	if cfg.Topology.Path != "" {
		topo, err := storage.LoadTopologyFromFile(cfg.Topology.Path)
		if err != nil {
			return fmt.Errorf("load topology: %w", err)
		}
		if err := storage.Seed(ctx, store, topo); err != nil {
			return fmt.Errorf("seed topology: %w", err)
		}
		log.Printf("topology seeded: %d segments, %d sensors", len(topo.Segments), len(topo.Sensors))
	}

	// Reading storage backend
	readings := store.Readings()
	var chStore *storage.ClickHouseStorage
	if cfg.Readings.Backend == "clickhouse" {
		chStore = storage.NewClickHouseStorage(&storage.ClickHouseConfig{
			Addresses:     cfg.Readings.ClickHouse.Addresses,
			Database:      cfg.Readings.ClickHouse.Database,
			Username:      cfg.Readings.ClickHouse.Username,
			Password:      cfg.Readings.ClickHouse.Password,
			RetentionDays: cfg.Readings.ClickHouse.RetentionDays,
		})
		if err := chStore.Open(); err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chStore.Close()
		if err := chStore.Migrate(); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		readings = chStore.Readings()
		log.Printf("reading storage: clickhouse at %v", cfg.Readings.ClickHouse.Addresses)
	}

	// Retention sweep for the SQLite reading store. ClickHouse expires
	// readings through its table TTL instead.
	if cfg.Readings.Backend == "sqlite" {
		go runRetentionSweep(ctx, store.Readings(), cfg.ReadingRetention())
	}

	// Metrics
	mc := metrics.NewCollector()

	// Detection
	tuning := detection.DefaultTuning()
	if cfg.Detection.TuningPath != "" {
		loaded, err := detection.LoadTuningFromFile(cfg.Detection.TuningPath)
		if err != nil {
			return fmt.Errorf("load detection tuning: %w", err)
		}
		tuning = loaded
	}
	evaluator := detection.NewEvaluator(tuning)
	collector := detection.NewCollector(readings)

	if cfg.Detection.TuningPath != "" {
		watcher, err := detection.NewTuningWatcher(cfg.Detection.TuningPath, evaluator)
		if err != nil {
			return fmt.Errorf("watch detection tuning: %w", err)
		}
		go watcher.Run(ctx)
	}

	// Incident ledger
	ledger := incident.NewLedger(store.Incidents())

	// Incident event publisher
	var publisher events.Publisher
	if cfg.Redis.URL != "" {
		redisPub, err := events.NewRedisPublisher(ctx, cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisPub.Close()
		publisher = redisPub
		log.Printf("incident events publishing to redis")
	}

	// AI enrichment
	var provider enrichment.Provider
	if cfg.Enrichment.Enabled {
		apiKey := os.Getenv("ROADWATCH_OPENAI_API_KEY")
		if apiKey == "" {
			return fmt.Errorf("ROADWATCH_OPENAI_API_KEY environment variable is required when enrichment is enabled")
		}
		p, err := enrichment.NewOpenAIProvider(enrichment.OpenAIConfig{
			BaseURL: cfg.Enrichment.BaseURL,
			APIKey:  apiKey,
			Model:   cfg.Enrichment.Model,
		})
		if err != nil {
			return fmt.Errorf("create enrichment provider: %w", err)
		}
		provider = p
		log.Printf("enrichment enabled: model=%s", cfg.Enrichment.Model)
	}

	coordOpts := enrichment.DefaultCoordinatorOptions()
	if cfg.Enrichment.MaxConcurrent > 0 {
		coordOpts.MaxConcurrent = cfg.Enrichment.MaxConcurrent
	}
	coordOpts.CallTimeout = cfg.EnrichmentCallTimeout()
	if cfg.Enrichment.RateLimit > 0 {
		coordOpts.RateLimit = cfg.Enrichment.RateLimit
	}
	enricher := enrichment.NewCoordinator(provider, store.Incidents(), mc, coordOpts)

	// Ingestion pipeline
	pipeline := ingest.NewPipeline(readings, collector, evaluator, ledger, enricher, publisher, mc)
	if err := pipeline.LoadTopology(ctx, store.Segments(), store.Sensors()); err != nil {
		return fmt.Errorf("load topology cache: %w", err)
	}

	// Optional MQTT reading source
	if cfg.MQTT.Enabled {
		source := ingest.NewMQTTSource(ingest.MQTTConfig{
			BrokerURL: cfg.MQTT.BrokerURL,
			Topic:     cfg.MQTT.Topic,
			ClientID:  cfg.MQTT.ClientID,
			QoS:       cfg.MQTT.QoS,
		}, pipeline)
		if err := source.Start(ctx); err != nil {
			return fmt.Errorf("start mqtt source: %w", err)
		}
		defer source.Stop()
	}

	// HTTP API
	apiCfg := &api.Config{
		Address:        cfg.Server.Address,
		QueryTimeout:   cfg.QueryTimeoutDuration(),
		RateLimitPerIP: cfg.Server.RateLimitPerIP,
		Verbose:        cfg.Verbose,
	}
	srv, err := api.New(apiCfg, api.Dependencies{
		Storage:   store,
		Readings:  readings,
		Pipeline:  pipeline,
		Ledger:    ledger,
		Enricher:  enricher,
		Publisher: publisher,
		Metrics:   mc,
	})
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	srv.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	if chStore != nil {
		srv.RegisterHealthChecker(health.NewClickHouseChecker(chStore))
	}
	if redisPub, ok := publisher.(*events.RedisPublisher); ok {
		srv.RegisterHealthChecker(health.NewRedisChecker(redisPub))
	}

	// Metrics server
	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics.Address, mc)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics server shutdown error: %v", err)
			}
		}()
	}

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	log.Printf("starting roadwatch-server %s", config.Version)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	// Let in-flight enrichment finish before closing stores.
	enricher.Close()

	log.Printf("server stopped")
	return nil
}
