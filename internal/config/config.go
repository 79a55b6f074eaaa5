package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Hermes       HermesConfig       `yaml:"hermes"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Agents       AgentsConfig       `yaml:"agents"`
	Reassignment ReassignmentConfig `yaml:"reassignment"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
	RateLimit   int    `yaml:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	AuditTopic     string   `yaml:"audit_topic"`
	MaxAttempts    int      `yaml:"max_attempts"`
	WriteTimeoutMs int      `yaml:"write_timeout_ms"`
}

type AgentsConfig struct {
	ProxyURL  string `yaml:"proxy_url"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type ReassignmentConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	BusyWorkload        int     `yaml:"busy_workload"`
	OverloadedWorkload  int     `yaml:"overloaded_workload"`
	SweepIntervalMs     int     `yaml:"sweep_interval_ms"`
	StaleAfterHours     int     `yaml:"stale_after_hours"`
	SweepBatchSize      int     `yaml:"sweep_batch_size"`
	NotifyManagers      bool    `yaml:"notify_managers"`
}

type ScoringConfig struct {
	Weights    ScoringWeights    `yaml:"weights"`
	Confidence ConfidenceWeights `yaml:"confidence"`
}

type ScoringWeights struct {
	CloseRate        float64 `yaml:"close_rate"`
	AvailableBonus   float64 `yaml:"available_bonus"`
	BusyBonus        float64 `yaml:"busy_bonus"`
	SpecialtyBonus   float64 `yaml:"specialty_bonus"`
	ResponseMax      float64 `yaml:"response_max"`
	ResponseUnitSecs float64 `yaml:"response_unit_seconds"`
}

type ConfidenceWeights struct {
	Base              float64 `yaml:"base"`
	CloseRateBonus    float64 `yaml:"close_rate_bonus"`
	CloseRateMultiple float64 `yaml:"close_rate_multiple"`
	AvailableBonus    float64 `yaml:"available_bonus"`
	SpecialtyBonus    float64 `yaml:"specialty_bonus"`
}

type SchedulerConfig struct {
	PollIntervalMs    int `yaml:"poll_interval_ms"`
	BatchSize         int `yaml:"batch_size"`
	RedeliverAfterSec int `yaml:"redeliver_after_seconds"`
	MaxAttempts       int `yaml:"max_attempts"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Reassignment.SweepIntervalMs) * time.Millisecond
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Reassignment.StaleAfterHours) * time.Hour
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalMs) * time.Millisecond
}

func (c *Config) RedeliverAfter() time.Duration {
	return time.Duration(c.Scheduler.RedeliverAfterSec) * time.Second
}

func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agents.TimeoutMs) * time.Millisecond
}

func (c *Config) KafkaWriteTimeout() time.Duration {
	return time.Duration(c.Kafka.WriteTimeoutMs) * time.Millisecond
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
			RateLimit:   120,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Hermes: HermesConfig{
			URL: "nats://localhost:4222",
		},
		Kafka: KafkaConfig{
			AuditTopic:     "crm.ai_brain_logs",
			MaxAttempts:    3,
			WriteTimeoutMs: 10000,
		},
		Agents: AgentsConfig{
			ProxyURL:  "http://localhost:54321/functions/v1/relevance-ai",
			TimeoutMs: 30000,
		},
		Reassignment: ReassignmentConfig{
			ConfidenceThreshold: 0.7,
			BusyWorkload:        25,
			OverloadedWorkload:  50,
			SweepIntervalMs:     0,
			StaleAfterHours:     72,
			SweepBatchSize:      100,
			NotifyManagers:      true,
		},
		Scoring: ScoringConfig{
			Weights: ScoringWeights{
				CloseRate:        0.4,
				AvailableBonus:   30,
				BusyBonus:        15,
				SpecialtyBonus:   20,
				ResponseMax:      10,
				ResponseUnitSecs: 60,
			},
			Confidence: ConfidenceWeights{
				Base:              0.5,
				CloseRateBonus:    0.3,
				CloseRateMultiple: 1.5,
				AvailableBonus:    0.2,
				SpecialtyBonus:    0.2,
			},
		},
		Scheduler: SchedulerConfig{
			PollIntervalMs:    5000,
			BatchSize:         50,
			RedeliverAfterSec: 600,
			MaxAttempts:       5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the reassignment engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	r := c.Reassignment
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %.2f outside [0, 1]", r.ConfidenceThreshold)
	}
	if r.BusyWorkload < 0 || r.OverloadedWorkload < r.BusyWorkload {
		return fmt.Errorf("workload thresholds must satisfy 0 <= busy (%d) <= overloaded (%d)", r.BusyWorkload, r.OverloadedWorkload)
	}
	if c.Scoring.Weights.ResponseUnitSecs <= 0 {
		return fmt.Errorf("response_unit_seconds must be positive")
	}
	if r.SweepIntervalMs < 0 {
		return fmt.Errorf("sweep_interval_ms must not be negative, got %d", r.SweepIntervalMs)
	}
	s := c.Scheduler
	if s.PollIntervalMs <= 0 {
		return fmt.Errorf("scheduler poll_interval_ms must be positive, got %d", s.PollIntervalMs)
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("scheduler batch_size must be positive, got %d", s.BatchSize)
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler max_attempts must be positive, got %d", s.MaxAttempts)
	}
	if s.RedeliverAfterSec <= 0 {
		return fmt.Errorf("scheduler redeliver_after_seconds must be positive, got %d", s.RedeliverAfterSec)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REASSIGN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("REASSIGN_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("REASSIGN_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("REASSIGN_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REASSIGN_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REASSIGN_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("REASSIGN_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REASSIGN_KAFKA_AUDIT_TOPIC"); v != "" {
		cfg.Kafka.AuditTopic = v
	}
	if v := os.Getenv("REASSIGN_AGENTS_PROXY_URL"); v != "" {
		cfg.Agents.ProxyURL = v
	}
	if v := os.Getenv("REASSIGN_AGENTS_TOKEN"); v != "" {
		cfg.Agents.Token = v
	}
	if v := os.Getenv("REASSIGN_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Reassignment.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("REASSIGN_SWEEP_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reassignment.SweepIntervalMs = n
		}
	}
	if v := os.Getenv("REASSIGN_NOTIFY_MANAGERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reassignment.NotifyManagers = b
		}
	}
	if v := os.Getenv("REASSIGN_SCHEDULER_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.PollIntervalMs = n
		}
	}
	if v := os.Getenv("REASSIGN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REASSIGN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
