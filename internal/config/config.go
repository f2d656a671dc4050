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

// Config holds the service-level settings, populated from environment variables.
// The filtering thresholds, datasets, and output targets live in the separate
// processing config file (see Processing).
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration
	BatchSize        int

	// ProcessingConfigPath points at the YAML file describing thresholds,
	// polygon datasets, identity-cache tuning, and output targets.
	ProcessingConfigPath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	// A local .env file overrides nothing already set in the environment.
	_ = godotenv.Load()

	shutdownTimeout, err := parseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := parseBatchSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:         parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:     envOrDefault("KAFKA_SOURCE_TOPIC", "viirs-af-passes"),
		KafkaSinkTopic:       envOrDefault("KAFKA_SINK_TOPIC", "active-fires-notifications"),
		KafkaGroupID:         envOrDefault("KAFKA_GROUP_ID", "activefires-pp"),
		HTTPAddr:             envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		LogFormat:            envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		BatchSize:            batchSize,
		ProcessingConfigPath: envOrDefault("PROCESSING_CONFIG", "processing.yaml"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.ProcessingConfigPath == "" {
		return nil, errors.New("PROCESSING_CONFIG is required")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseBatchSize() (int, error) {
	s := envOrDefault("BATCH_SIZE", "20")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid BATCH_SIZE: %q", s)
	}
	return n, nil
}

func parseShutdownTimeout() (time.Duration, error) {
	s := envOrDefault("SHUTDOWN_TIMEOUT", "10s")
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %q", s)
	}
	return d, nil
}
