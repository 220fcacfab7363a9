// Package config resolves the server configuration and compensation plan.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/referralnet/internal/calculator"
	"github.com/mmynk/referralnet/internal/models"
)

// Config is the resolved runtime configuration.
type Config struct {
	HTTPAddr string `validate:"required"`
	DBPath   string `validate:"required"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`

	RedisURL     string
	KafkaBrokers []string
	KafkaTopics  map[string]string

	// MaxDepth bounds genealogy and progress trees; 0 is unbounded.
	MaxDepth int `validate:"gte=0"`
	// MaxLevels bounds the commission upline when a request does not set one.
	MaxLevels    int `validate:"gte=0"`
	AssignFanOut int `validate:"gte=1,lte=512"`

	// TreeTimeout is the deadline for one tree build.
	TreeTimeout time.Duration `validate:"gt=0"`

	// CleanupInterval and RefreshInterval schedule the background jobs; 0 disables.
	CleanupInterval time.Duration `validate:"gte=0"`
	RefreshInterval time.Duration `validate:"gte=0"`

	Plan Plan
}

// Plan is the compensation plan seeded into storage at startup.
type Plan struct {
	Ratio    models.RatioConfig       `yaml:"ratio"`
	Levels   []models.CommissionLevel `yaml:"levels" validate:"dive"`
	Programs []models.RewardProgram   `yaml:"programs" validate:"dive"`
}

// configFile mirrors the YAML schema of config.yaml.
type configFile struct {
	Server struct {
		HTTPAddr string `yaml:"http_addr"`
		DBPath   string `yaml:"db_path"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Dependencies struct {
		RedisURL     string            `yaml:"redis_url"`
		KafkaBrokers []string          `yaml:"kafka_brokers"`
		KafkaTopics  map[string]string `yaml:"kafka_topics"`
	} `yaml:"dependencies"`
	Engine struct {
		MaxDepth        *int           `yaml:"max_depth"`
		MaxLevels       *int           `yaml:"max_levels"`
		AssignFanOut    int            `yaml:"assign_fan_out"`
		TreeTimeout     time.Duration  `yaml:"tree_timeout"`
		CleanupInterval *time.Duration `yaml:"cleanup_interval"`
		RefreshInterval *time.Duration `yaml:"refresh_interval"`
	} `yaml:"engine"`
	Plan *Plan `yaml:"plan"`
}

// Defaults returns the configuration used when no file or env is present.
func Defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		DBPath:          "./data/referralnet.db",
		LogLevel:        "info",
		LogFormat:       "text",
		MaxLevels:       10,
		AssignFanOut:    8,
		TreeTimeout:     5 * time.Second,
		CleanupInterval: time.Hour,
		Plan: Plan{
			Ratio: models.RatioConfig{Mode: models.DistributionAuto},
		},
	}
}

// Load resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if f.Server.HTTPAddr != "" {
		cfg.HTTPAddr = f.Server.HTTPAddr
	}
	if f.Server.DBPath != "" {
		cfg.DBPath = f.Server.DBPath
	}
	if f.Log.Level != "" {
		cfg.LogLevel = f.Log.Level
	}
	if f.Log.Format != "" {
		cfg.LogFormat = f.Log.Format
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if len(f.Dependencies.KafkaTopics) > 0 {
		cfg.KafkaTopics = f.Dependencies.KafkaTopics
	}
	if f.Engine.MaxDepth != nil {
		cfg.MaxDepth = *f.Engine.MaxDepth
	}
	if f.Engine.MaxLevels != nil {
		cfg.MaxLevels = *f.Engine.MaxLevels
	}
	if f.Engine.AssignFanOut > 0 {
		cfg.AssignFanOut = f.Engine.AssignFanOut
	}
	if f.Engine.TreeTimeout > 0 {
		cfg.TreeTimeout = f.Engine.TreeTimeout
	}
	if f.Engine.CleanupInterval != nil {
		cfg.CleanupInterval = *f.Engine.CleanupInterval
	}
	if f.Engine.RefreshInterval != nil {
		cfg.RefreshInterval = *f.Engine.RefreshInterval
	}
	if f.Plan != nil {
		cfg.Plan = *f.Plan
		if cfg.Plan.Ratio.Mode == "" {
			cfg.Plan.Ratio.Mode = models.DistributionAuto
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBPath = envOrDefault("DB_PATH", cfg.DBPath)
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.MaxDepth = envInt("MAX_DEPTH", cfg.MaxDepth)
	cfg.MaxLevels = envInt("MAX_LEVELS", cfg.MaxLevels)
	cfg.AssignFanOut = envInt("ASSIGN_FAN_OUT", cfg.AssignFanOut)
	cfg.TreeTimeout = envDuration("TREE_TIMEOUT", cfg.TreeTimeout)
	cfg.CleanupInterval = envDuration("CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.RefreshInterval = envDuration("REFRESH_INTERVAL", cfg.RefreshInterval)
}

// Validate checks field constraints and the plan's internal consistency.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := calculator.ValidateRatioConfig(c.Plan.Ratio); err != nil {
		return fmt.Errorf("invalid plan ratio: %w", err)
	}

	seenLevels := make(map[int]bool, len(c.Plan.Levels))
	for _, lvl := range c.Plan.Levels {
		if seenLevels[lvl.LevelNumber] {
			return fmt.Errorf("invalid plan: level %d listed twice", lvl.LevelNumber)
		}
		seenLevels[lvl.LevelNumber] = true
	}

	seenPrograms := make(map[string]bool, len(c.Plan.Programs))
	for _, p := range c.Plan.Programs {
		if seenPrograms[p.ID] {
			return fmt.Errorf("invalid plan: program %q listed twice", p.ID)
		}
		seenPrograms[p.ID] = true
		if !p.StartDate.IsZero() && !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
			return fmt.Errorf("invalid plan: program %q ends before it starts", p.ID)
		}
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
