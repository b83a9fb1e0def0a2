// Package config loads service configuration from defaults, an optional YAML
// file and the environment, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/logging"
	"github.com/denisok6893-rgb/property-ranking/internal/matching"
	"github.com/denisok6893-rgb/property-ranking/internal/ranking"
)

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"configs/config.yaml",
}

type Config struct {
	Server    ServerConfig            `koanf:"server"`
	Data      DataConfig              `koanf:"data"`
	Scoring   domain.WeightConfig     `koanf:"scoring"`
	Diversity ranking.DiversityConfig `koanf:"diversity"`
	Optimizer OptimizerConfig         `koanf:"optimizer"`
	Ingest    IngestConfig            `koanf:"ingest"`
	Logging   logging.Config          `koanf:"logging"`
}

type ServerConfig struct {
	Address string `koanf:"address" validate:"required"`
}

type DataConfig struct {
	// ListingsPath seeds an empty database. Optional.
	ListingsPath string `koanf:"listings_path"`
	// WeightsPath overrides scoring weights when the file exists.
	WeightsPath string `koanf:"weights_path"`
	SQLitePath  string `koanf:"sqlite_path" validate:"required"`
}

type OptimizerConfig struct {
	LearningRate float64 `koanf:"learning_rate" validate:"gt=0,lte=1"`
	MinSamples   int     `koanf:"min_samples" validate:"gte=1"`
	// RetrainSchedule is a cron expression; empty disables scheduled retraining.
	RetrainSchedule string `koanf:"retrain_schedule"`
}

type IngestConfig struct {
	Enabled  bool   `koanf:"enabled"`
	AMQPURL  string `koanf:"amqp_url" validate:"required_if=Enabled true"`
	Queue    string `koanf:"queue" validate:"required_if=Enabled true"`
	Prefetch int    `koanf:"prefetch" validate:"gte=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Address: ":8080"},
		Data: DataConfig{
			ListingsPath: "data/listings.json",
			WeightsPath:  "configs/weights.json",
			SQLitePath:   "data/listings.db",
		},
		Scoring:   matching.DefaultWeights(),
		Diversity: ranking.DefaultDiversityConfig(),
		Optimizer: OptimizerConfig{
			LearningRate:    0.1,
			MinSamples:      50,
			RetrainSchedule: "@every 1h",
		},
		Ingest: IngestConfig{
			Queue:    "listing.outcomes",
			Prefetch: 20,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
	}
}

// Load reads .env (if present) into the process environment, then layers
// defaults, the config file and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"api_address":   "server.address",
	"listings_path": "data.listings_path",
	"weights_path":  "data.weights_path",
	"sqlite_path":   "data.sqlite_path",

	"scoring_compatibility": "scoring.compatibility",
	"scoring_behavior":      "scoring.behavior",
	"scoring_temporal":      "scoring.temporal",

	"diversity_default_factor":    "diversity.default_factor",
	"diversity_penalty_scale":     "diversity.penalty_scale",
	"diversity_price_tolerance":   "diversity.price_tolerance",
	"diversity_geohash_precision": "diversity.geohash_precision",

	"optimizer_learning_rate":    "optimizer.learning_rate",
	"optimizer_min_samples":      "optimizer.min_samples",
	"optimizer_retrain_schedule": "optimizer.retrain_schedule",

	"ingest_enabled":  "ingest.enabled",
	"ingest_amqp_url": "ingest.amqp_url",
	"rabbitmq_url":    "ingest.amqp_url",
	"ingest_queue":    "ingest.queue",
	"ingest_prefetch": "ingest.prefetch",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known variables to config keys. Unknown variables are
// dropped so the rest of the environment does not leak into the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
