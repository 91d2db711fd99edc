package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	FlowLens FlowLensConfig `yaml:"flowlens"`
}

// FlowLensConfig is the project configuration.
type FlowLensConfig struct {
	Redis    RedisConfig    `yaml:"redis"`
	Input    InputConfig    `yaml:"input"`
	Geo      GeoConfig      `yaml:"geo"`
	Devices  DevicesConfig  `yaml:"devices"`
	Cache    CacheConfig    `yaml:"cache"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Publish  PublishConfig  `yaml:"publish"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RedisConfig controls the counting store connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// InputConfig controls the ingestion lists.
type InputConfig struct {
	TrafficKey string `yaml:"traffic_key"`
	AlertKey   string `yaml:"alert_key"`
	BatchSize  int    `yaml:"batch_size"`
}

// GeoConfig controls the geography collaborator.
type GeoConfig struct {
	URL             string        `yaml:"url"`
	Token           string        `yaml:"token"`
	Timeout         time.Duration `yaml:"timeout"`
	LocalFile       string        `yaml:"local_file"`
	TranslationFile string        `yaml:"translation_file"`
}

// DevicesConfig controls the device-registry collaborator.
type DevicesConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig controls the device resolution cache.
type CacheConfig struct {
	Capacity    int           `yaml:"capacity"`
	NegativeTTL time.Duration `yaml:"negative_ttl"`
}

// DedupConfig controls the deduplication engines.
type DedupConfig struct {
	Threshold        int64         `yaml:"threshold"`
	MaintainInterval time.Duration `yaml:"maintain_interval"`
}

// PipelineConfig controls batch behavior.
type PipelineConfig struct {
	Interval      time.Duration `yaml:"interval"`
	TopN          int64         `yaml:"top_n"`
	QueueCapacity int           `yaml:"queue_capacity"`
}

// PublishConfig controls view publication.
type PublishConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
