package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowlens/config"
	"flowlens/internal/classify"
	"flowlens/internal/dedup"
	"flowlens/internal/devcache"
	"flowlens/internal/devices"
	"flowlens/internal/geo"
	"flowlens/internal/input"
	"flowlens/internal/logger"
	"flowlens/internal/pipeline"
	"flowlens/internal/publish"
	"flowlens/internal/store"
	"flowlens/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	if _, err := os.Stat("flowlens.yml"); err == nil {
		return "flowlens.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), "flowlens.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "flowlens.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.FlowLens.Redis.Addr == "" {
		cfg.FlowLens.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.FlowLens.Redis.KeyPrefix == "" {
		cfg.FlowLens.Redis.KeyPrefix = "flowlens"
	}

	if cfg.FlowLens.Input.TrafficKey == "" {
		cfg.FlowLens.Input.TrafficKey = "flowlens_traffic_events"
	}
	if cfg.FlowLens.Input.AlertKey == "" {
		cfg.FlowLens.Input.AlertKey = "flowlens_alert_events"
	}
	if cfg.FlowLens.Input.BatchSize <= 0 {
		cfg.FlowLens.Input.BatchSize = 1000
	}

	if cfg.FlowLens.Geo.Timeout <= 0 {
		cfg.FlowLens.Geo.Timeout = 3 * time.Second
	}
	if cfg.FlowLens.Devices.Timeout <= 0 {
		cfg.FlowLens.Devices.Timeout = 3 * time.Second
	}

	if cfg.FlowLens.Cache.Capacity <= 0 {
		cfg.FlowLens.Cache.Capacity = 1024
	}
	if cfg.FlowLens.Cache.NegativeTTL <= 0 {
		cfg.FlowLens.Cache.NegativeTTL = 30 * time.Second
	}

	if cfg.FlowLens.Dedup.Threshold <= 0 {
		cfg.FlowLens.Dedup.Threshold = 1000000
	}
	if cfg.FlowLens.Dedup.MaintainInterval <= 0 {
		cfg.FlowLens.Dedup.MaintainInterval = time.Hour
	}

	if cfg.FlowLens.Pipeline.Interval <= 0 {
		cfg.FlowLens.Pipeline.Interval = 10 * time.Second
	}
	if cfg.FlowLens.Pipeline.TopN <= 0 {
		cfg.FlowLens.Pipeline.TopN = 10
	}
	if cfg.FlowLens.Pipeline.QueueCapacity <= 0 {
		cfg.FlowLens.Pipeline.QueueCapacity = 10
	}

	if cfg.FlowLens.Publish.ChannelPrefix == "" {
		cfg.FlowLens.Publish.ChannelPrefix = "flowlens:views"
	}
	if cfg.FlowLens.Metrics.Listen == "" {
		cfg.FlowLens.Metrics.Listen = ":9310"
	}
	if cfg.FlowLens.Logging.Level == "" {
		cfg.FlowLens.Logging.Level = "info"
	}
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.FlowLens.Logging.Enabled, cfg.FlowLens.Logging.Level, cfg.FlowLens.Logging.File, cfg.FlowLens.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("FlowLens starting")
	logger.Infof("Config loaded from: %s", configPath)

	redisStore, err := store.NewRedis(store.RedisConfig{
		Addr:     cfg.FlowLens.Redis.Addr,
		Password: cfg.FlowLens.Redis.Password,
		DB:       cfg.FlowLens.Redis.DB,
	})
	if err != nil {
		log.Fatalf("Failed to connect counting store: %v", err)
	}
	defer redisStore.Close()

	var translations map[string]string
	if strings.TrimSpace(cfg.FlowLens.Geo.TranslationFile) != "" {
		translations, err = geo.LoadTranslations(cfg.FlowLens.Geo.TranslationFile)
		if err != nil {
			log.Fatalf("Failed to load country translations: %v", err)
		}
		logger.Infof("Country translations loaded: %d entries", len(translations))
	}

	localRecord := models.GeoRecord{Country: geo.DomesticCountry}
	if strings.TrimSpace(cfg.FlowLens.Geo.LocalFile) != "" {
		localRecord, err = geo.LoadLocalRecord(cfg.FlowLens.Geo.LocalFile)
		if err != nil {
			log.Fatalf("Failed to load local location record: %v", err)
		}
	}

	resolver, err := geo.NewHTTPResolver(geo.Config{
		URL:        cfg.FlowLens.Geo.URL,
		Token:      cfg.FlowLens.Geo.Token,
		Timeout:    cfg.FlowLens.Geo.Timeout,
		Normalizer: geo.NewNormalizer(translations),
	})
	if err != nil {
		log.Fatalf("Failed to create geography client: %v", err)
	}

	var deviceCache *devcache.Cache
	if strings.TrimSpace(cfg.FlowLens.Devices.URL) != "" {
		registry, err := devices.NewClient(devices.Config{
			URL:     cfg.FlowLens.Devices.URL,
			Token:   cfg.FlowLens.Devices.Token,
			Timeout: cfg.FlowLens.Devices.Timeout,
		})
		if err != nil {
			log.Fatalf("Failed to create device registry client: %v", err)
		}
		deviceCache, err = devcache.New(registry, cfg.FlowLens.Cache.Capacity, cfg.FlowLens.Cache.NegativeTTL)
		if err != nil {
			log.Fatalf("Failed to create device cache: %v", err)
		}
		logger.Infof("Device resolution enabled via %s", cfg.FlowLens.Devices.URL)
	} else {
		logger.Warnf("Device registry url is empty; destination-device resolution disabled")
	}

	var publisher publish.Publisher = publish.Nop{}
	if cfg.FlowLens.Publish.Enabled {
		publisher = publish.NewStorePublisher(redisStore, cfg.FlowLens.Publish.ChannelPrefix)
		logger.Infof("View publication enabled on channel prefix %s", cfg.FlowLens.Publish.ChannelPrefix)
	}

	registry := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(registry)

	prefix := cfg.FlowLens.Redis.KeyPrefix
	todayDedup := dedup.New(redisStore, prefix, "today", cfg.FlowLens.Dedup.Threshold)
	historyDedup := dedup.New(redisStore, prefix, "history", cfg.FlowLens.Dedup.Threshold)

	deps := pipeline.Deps{
		Store:         redisStore,
		Prefix:        prefix,
		Publisher:     publisher,
		Classifier:    classify.New(resolver, localRecord, deviceCache),
		TodayDedup:    todayDedup,
		HistoryDedup:  historyDedup,
		Metrics:       metrics,
		TopN:          cfg.FlowLens.Pipeline.TopN,
		QueueCapacity: cfg.FlowLens.Pipeline.QueueCapacity,
	}

	trafficConsumer, err := input.NewConsumer(redisStore, input.Config{
		Key:       cfg.FlowLens.Input.TrafficKey,
		BatchSize: cfg.FlowLens.Input.BatchSize,
	})
	if err != nil {
		log.Fatalf("Failed to create traffic consumer: %v", err)
	}
	alertConsumer, err := input.NewConsumer(redisStore, input.Config{
		Key:       cfg.FlowLens.Input.AlertKey,
		BatchSize: cfg.FlowLens.Input.BatchSize,
	})
	if err != nil {
		log.Fatalf("Failed to create alert consumer: %v", err)
	}

	trafficScheduler := pipeline.NewScheduler("traffic", trafficConsumer,
		func(now time.Time) *pipeline.Pipeline { return pipeline.NewTrafficChain(deps, now) },
		cfg.FlowLens.Pipeline.Interval, cfg.FlowLens.Dedup.MaintainInterval,
		todayDedup, historyDedup,
	)
	alertScheduler := pipeline.NewScheduler("alerts", alertConsumer,
		func(now time.Time) *pipeline.Pipeline { return pipeline.NewAlertChain(deps, now) },
		cfg.FlowLens.Pipeline.Interval, 0,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := trafficScheduler.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Traffic scheduler error: %v", err)
		}
	}()
	go func() {
		if err := alertScheduler.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Alert scheduler error: %v", err)
		}
	}()

	if cfg.FlowLens.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			logger.Infof("Metrics listening on %s", cfg.FlowLens.Metrics.Listen)
			if err := http.ListenAndServe(cfg.FlowLens.Metrics.Listen, mux); err != nil {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	logger.Infof("FlowLens stopped")
}
