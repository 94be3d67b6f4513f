// Package config handles application configuration: env vars layered over
// an optional YAML file, the teacher's "file provides defaults, env wins"
// convention generalised from a handful of service endpoints to the full
// set of memory/SQL tuning knobs (spec §6.3).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every recognised option (spec §6.3) plus connection info
// the teacher's config.go already covered (GRPCPort, PostgresURL,
// TemporalHost, GeminiAPIKey).
type Config struct {
	GRPCPort     int    `yaml:"grpc_port"`
	HTTPPort     int    `yaml:"http_port"`
	PostgresURL  string `yaml:"postgres_url"`
	TemporalHost string `yaml:"temporal_host"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	LLMProvider  string `yaml:"llm_provider"`
	LLMModel     string `yaml:"llm_model"`

	// Memory tuning (spec §6.3).
	SummaryTriggerCount       int     `yaml:"summary_trigger_count"`
	MaxSessionLength          int     `yaml:"max_session_length"`
	WorkingDefaultTTLSeconds  int     `yaml:"working_default_ttl_seconds"`
	SimilarityDefaultThreshold float64 `yaml:"similarity_default_threshold"`
	TopKDefault               int     `yaml:"top_k_default"`
	SemanticDedupPrefixLen    int     `yaml:"semantic_dedup_prefix_len"`

	// SQL executor tuning (spec §6.3).
	SQLMaxExecutionTime   time.Duration `yaml:"-"`
	SQLMaxExecutionTimeS  int           `yaml:"sql_max_execution_time_seconds"`
	SQLMaxRows            int           `yaml:"sql_max_rows"`
	FeedbackBufferCapacity int          `yaml:"feedback_buffer_capacity"`

	// TTL sweep cadence (spec §4.B domain stack: cron.New()).
	TTLSweepCron string `yaml:"ttl_sweep_cron"`
}

func defaults() *Config {
	return &Config{
		GRPCPort:     9000,
		HTTPPort:     8080,
		PostgresURL:  "postgres://localhost:5432/cogmem",
		TemporalHost: "localhost:7233",
		LLMProvider:  "gemini",
		LLMModel:     "gemini-1.5-flash",

		SummaryTriggerCount:        10,
		MaxSessionLength:           10000,
		WorkingDefaultTTLSeconds:   3600,
		SimilarityDefaultThreshold: 0.7,
		TopKDefault:                10,
		SemanticDedupPrefixLen:     50,

		SQLMaxExecutionTimeS:   30,
		SQLMaxRows:             10000,
		FeedbackBufferCapacity: 1000,

		TTLSweepCron: "@every 1m",
	}
}

// Load builds a Config from defaults, layered with an optional YAML file
// at yamlPath (if it exists), layered again with environment variables —
// "env wins, file provides defaults" (spec §4.A).
func Load(yamlPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config yaml %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config yaml %s: %w", yamlPath, err)
		}
	}

	cfg.GRPCPort = getEnvInt("GRPC_PORT", cfg.GRPCPort)
	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.TemporalHost = getEnv("TEMPORAL_HOST", cfg.TemporalHost)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.LLMModel = getEnv("LLM_MODEL", cfg.LLMModel)

	cfg.SummaryTriggerCount = getEnvInt("SUMMARY_TRIGGER_COUNT", cfg.SummaryTriggerCount)
	cfg.MaxSessionLength = getEnvInt("MAX_SESSION_LENGTH", cfg.MaxSessionLength)
	cfg.WorkingDefaultTTLSeconds = getEnvInt("WORKING_DEFAULT_TTL_SECONDS", cfg.WorkingDefaultTTLSeconds)
	cfg.SimilarityDefaultThreshold = getEnvFloat("SIMILARITY_DEFAULT_THRESHOLD", cfg.SimilarityDefaultThreshold)
	cfg.TopKDefault = getEnvInt("TOP_K_DEFAULT", cfg.TopKDefault)
	cfg.SemanticDedupPrefixLen = getEnvInt("SEMANTIC_DEDUP_PREFIX_LEN", cfg.SemanticDedupPrefixLen)

	cfg.SQLMaxExecutionTimeS = getEnvInt("SQL_MAX_EXECUTION_TIME_SECONDS", cfg.SQLMaxExecutionTimeS)
	cfg.SQLMaxRows = getEnvInt("SQL_MAX_ROWS", cfg.SQLMaxRows)
	cfg.FeedbackBufferCapacity = getEnvInt("FEEDBACK_BUFFER_CAPACITY", cfg.FeedbackBufferCapacity)
	cfg.TTLSweepCron = getEnv("TTL_SWEEP_CRON", cfg.TTLSweepCron)

	cfg.SQLMaxExecutionTime = time.Duration(cfg.SQLMaxExecutionTimeS) * time.Second
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
