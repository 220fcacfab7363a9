package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmynk/referralnet/internal/models"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"HTTP_ADDR", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT", "REDIS_URL", "KAFKA_BROKERS",
		"MAX_DEPTH", "MAX_LEVELS", "ASSIGN_FAN_OUT", "TREE_TIMEOUT", "CLEANUP_INTERVAL", "REFRESH_INTERVAL",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const samplePlan = `
server:
  http_addr: ":9090"
  db_path: /tmp/referralnet.db
log:
  level: debug
dependencies:
  kafka_brokers: ["kafka-1:9092", "kafka-2:9092"]
  kafka_topics:
    reward.claimed: rewards.claims
engine:
  max_depth: 6
  max_levels: 5
  assign_fan_out: 4
  tree_timeout: 2s
  cleanup_interval: 10m
plan:
  ratio:
    mode: fixed
    ratios: [40, 30, 30]
  levels:
    - {level_number: 1, commission_percentage: 10, active: true}
    - {level_number: 2, commission_percentage: 5, active: true}
  programs:
    - id: gold
      title: Gold Club
      business_threshold: 5000
      team_size_threshold: 10
      duration_days: 90
      reward_amount: 250
      start_date: 2026-01-01T00:00:00Z
      active: true
`

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Defaults()
	if cfg.HTTPAddr != want.HTTPAddr || cfg.DBPath != want.DBPath || cfg.AssignFanOut != want.AssignFanOut {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, want)
	}
	if cfg.Plan.Ratio.Mode != models.DistributionAuto {
		t.Errorf("default ratio mode = %q", cfg.Plan.Ratio.Mode)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, samplePlan))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPAddr != ":9090" || cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("unexpected server/log config: %+v", cfg)
	}
	if cfg.MaxDepth != 6 || cfg.MaxLevels != 5 || cfg.AssignFanOut != 4 {
		t.Errorf("unexpected engine config: %+v", cfg)
	}
	if cfg.TreeTimeout != 2*time.Second || cfg.CleanupInterval != 10*time.Minute || cfg.RefreshInterval != 0 {
		t.Errorf("unexpected durations: %v %v %v", cfg.TreeTimeout, cfg.CleanupInterval, cfg.RefreshInterval)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaTopics["reward.claimed"] != "rewards.claims" {
		t.Errorf("unexpected kafka config: %v %v", cfg.KafkaBrokers, cfg.KafkaTopics)
	}

	plan := cfg.Plan
	if plan.Ratio.Mode != models.DistributionFixed || len(plan.Ratio.Ratios) != 3 {
		t.Errorf("unexpected ratio: %+v", plan.Ratio)
	}
	if len(plan.Levels) != 2 || plan.Levels[1].CommissionPercentage != 5 {
		t.Errorf("unexpected levels: %+v", plan.Levels)
	}
	if len(plan.Programs) != 1 {
		t.Fatalf("expected 1 program, got %d", len(plan.Programs))
	}
	gold := plan.Programs[0]
	if gold.BusinessThreshold != 5000 || gold.DurationDays != 90 || !gold.Active {
		t.Errorf("unexpected program: %+v", gold)
	}
	if !gold.StartDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) || !gold.EndDate.IsZero() {
		t.Errorf("unexpected program window: %v - %v", gold.StartDate, gold.EndDate)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("KAFKA_BROKERS", " a:9092 , ,b:9092")
	t.Setenv("MAX_DEPTH", "3")
	t.Setenv("ASSIGN_FAN_OUT", "not-a-number")
	t.Setenv("REFRESH_INTERVAL", "15m")

	cfg, err := Load(writeConfig(t, samplePlan))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":7000" || cfg.LogLevel != "warn" || cfg.MaxDepth != 3 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.AssignFanOut != 4 {
		t.Errorf("invalid env should keep file value, got %d", cfg.AssignFanOut)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.RefreshInterval != 15*time.Minute {
		t.Errorf("refresh interval = %v", cfg.RefreshInterval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			body:    "server: [",
			wantErr: "parse config file",
		},
		{
			name:    "unknown log level",
			body:    "log:\n  level: loud\n",
			wantErr: "invalid config",
		},
		{
			name:    "ratios not summing to 100",
			body:    "plan:\n  ratio:\n    mode: fixed\n    ratios: [50, 40]\n",
			wantErr: "invalid plan ratio",
		},
		{
			name:    "level above 100 percent",
			body:    "plan:\n  levels:\n    - {level_number: 1, commission_percentage: 120, active: true}\n",
			wantErr: "invalid config",
		},
		{
			name:    "duplicate level",
			body:    "plan:\n  levels:\n    - {level_number: 1, commission_percentage: 1}\n    - {level_number: 1, commission_percentage: 2}\n",
			wantErr: "listed twice",
		},
		{
			name:    "program without title",
			body:    "plan:\n  programs:\n    - {id: p1, business_threshold: 10}\n",
			wantErr: "invalid config",
		},
		{
			name:    "program ending before start",
			body:    "plan:\n  programs:\n    - {id: p1, title: P, start_date: 2026-02-01T00:00:00Z, end_date: 2026-01-01T00:00:00Z}\n",
			wantErr: "ends before it starts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
