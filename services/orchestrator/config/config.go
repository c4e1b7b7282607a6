// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config defines the explicit Settings record for the orchestrator.
//
// # Description
//
// Settings are resolved in three layers: documented defaults, then an
// optional YAML file, then environment variables. The YAML decoder runs in
// strict mode so an unknown key fails startup instead of being silently
// ignored. Out-of-range values are corrected to their defaults with a
// warning; only contradictory or unusable combinations are hard errors.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Settings Record
// =============================================================================

// Settings carries every tunable the service reads. Each field documents
// its environment variable; the YAML key is the lower_snake form.
type Settings struct {
	// Retrieval and generation.
	EmbeddingDim             int     `yaml:"embedding_dim"`              // EMBEDDING_DIM
	EmbeddingModel           string  `yaml:"embedding_model"`            // EMBEDDING_MODEL
	ChatModel                string  `yaml:"chat_model"`                 // CHAT_MODEL
	ChatTemperature          float64 `yaml:"chat_temperature"`           // CHAT_TEMPERATURE
	QualityThreshold         float64 `yaml:"quality_threshold"`          // QUALITY_THRESHOLD
	RetrievalOversample      int     `yaml:"retrieval_oversample"`       // RETRIEVAL_OVERSAMPLE
	ConversationHistoryTurns int     `yaml:"conversation_history_turns"` // CONVERSATION_HISTORY_TURNS

	// SQL path.
	SQLTimeoutMS int `yaml:"sql_timeout_ms"` // SQL_TIMEOUT_MS
	SQLRowCap    int `yaml:"sql_row_cap"`    // SQL_ROW_CAP
	SQLMaxConns  int `yaml:"sql_max_conns"`  // SQL_MAX_CONNS

	// Request handling.
	RequestDeadlineMS int    `yaml:"request_deadline_ms"` // REQUEST_DEADLINE_MS
	Port              int    `yaml:"port"`                // SPORTSEE_PORT
	AppName           string `yaml:"app_name"`            // APP_NAME

	// Data locations.
	IndexMatrixPath    string `yaml:"index_matrix_path"`    // INDEX_MATRIX_PATH
	IndexChunksPath    string `yaml:"index_chunks_path"`    // INDEX_CHUNKS_PATH
	IndexWatch         bool   `yaml:"index_watch"`          // INDEX_WATCH
	StatsDBPath        string `yaml:"stats_db_path"`        // STATS_DB_PATH
	ConversationDBPath string `yaml:"conversation_db_path"` // CONVERSATION_DB_PATH

	// Embedding provider.
	EmbedCacheDir  string  `yaml:"embed_cache_dir"`  // EMBED_CACHE_DIR
	EmbedRateLimit float64 `yaml:"embed_rate_limit"` // EMBED_RATE_LIMIT (req/s, 0 = off)

	// Observability.
	OTelEndpoint   string `yaml:"otel_endpoint"`   // OTEL_EXPORTER_OTLP_ENDPOINT
	MetricsEnabled bool   `yaml:"metrics_enabled"` // METRICS_ENABLED

	// Conversation retention.
	RetentionEnabled      bool `yaml:"retention_enabled"`        // RETENTION_ENABLED
	RetentionMaxIdleHours int  `yaml:"retention_max_idle_hours"` // RETENTION_MAX_IDLE_HOURS
	RetentionIntervalMin  int  `yaml:"retention_interval_min"`   // RETENTION_INTERVAL_MIN

	// Provider credentials are environment-only; they never appear in YAML.
	OpenAIAPIKey  string `yaml:"-"` // OPENAI_API_KEY
	OpenAIBaseURL string `yaml:"-"` // OPENAI_BASE_URL
}

// Defaults returns the documented default for every setting.
func Defaults() Settings {
	return Settings{
		EmbeddingDim:             1536,
		EmbeddingModel:           "text-embedding-3-small",
		ChatModel:                "gpt-4o-mini",
		ChatTemperature:          0.1,
		QualityThreshold:         0.5,
		RetrievalOversample:      3,
		ConversationHistoryTurns: 5,
		SQLTimeoutMS:             2000,
		SQLRowCap:                1000,
		SQLMaxConns:              8,
		RequestDeadlineMS:        60000,
		Port:                     12310,
		AppName:                  "SportsSee",
		IndexMatrixPath:          "data/index/vectors.ssvi",
		IndexChunksPath:          "data/index/chunks.json",
		StatsDBPath:              "data/nba_stats.db",
		ConversationDBPath:       "data/conversations.db",
		MetricsEnabled:           true,
		RetentionEnabled:         false,
		RetentionMaxIdleHours:    720,
		RetentionIntervalMin:     60,
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load resolves Settings from defaults, an optional YAML file, and the
// environment, then validates the result.
//
// # Inputs
//
//   - path: YAML file path. Empty skips the file layer. A missing file at a
//     non-empty path is an error; the operator asked for it.
//
// # Outputs
//
//   - Settings: The validated record.
//   - error: Unknown YAML keys, unreadable file, or contradictory values.
func Load(path string) (Settings, error) {
	s := Defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Settings{}, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return Settings{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	s.applyEnv()

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// applyEnv overlays environment variables onto the current values.
func (s *Settings) applyEnv() {
	s.EmbeddingDim = getEnvInt("EMBEDDING_DIM", s.EmbeddingDim)
	s.EmbeddingModel = getEnvString("EMBEDDING_MODEL", s.EmbeddingModel)
	s.ChatModel = getEnvString("CHAT_MODEL", s.ChatModel)
	s.ChatTemperature = getEnvFloat("CHAT_TEMPERATURE", s.ChatTemperature)
	s.QualityThreshold = getEnvFloat("QUALITY_THRESHOLD", s.QualityThreshold)
	s.RetrievalOversample = getEnvInt("RETRIEVAL_OVERSAMPLE", s.RetrievalOversample)
	s.ConversationHistoryTurns = getEnvInt("CONVERSATION_HISTORY_TURNS", s.ConversationHistoryTurns)
	s.SQLTimeoutMS = getEnvInt("SQL_TIMEOUT_MS", s.SQLTimeoutMS)
	s.SQLRowCap = getEnvInt("SQL_ROW_CAP", s.SQLRowCap)
	s.SQLMaxConns = getEnvInt("SQL_MAX_CONNS", s.SQLMaxConns)
	s.RequestDeadlineMS = getEnvInt("REQUEST_DEADLINE_MS", s.RequestDeadlineMS)
	s.Port = getEnvInt("SPORTSEE_PORT", s.Port)
	s.AppName = getEnvString("APP_NAME", s.AppName)
	s.IndexMatrixPath = getEnvString("INDEX_MATRIX_PATH", s.IndexMatrixPath)
	s.IndexChunksPath = getEnvString("INDEX_CHUNKS_PATH", s.IndexChunksPath)
	s.IndexWatch = getEnvBool("INDEX_WATCH", s.IndexWatch)
	s.StatsDBPath = getEnvString("STATS_DB_PATH", s.StatsDBPath)
	s.ConversationDBPath = getEnvString("CONVERSATION_DB_PATH", s.ConversationDBPath)
	s.EmbedCacheDir = getEnvString("EMBED_CACHE_DIR", s.EmbedCacheDir)
	s.EmbedRateLimit = getEnvFloat("EMBED_RATE_LIMIT", s.EmbedRateLimit)
	s.OTelEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", s.OTelEndpoint)
	s.MetricsEnabled = getEnvBool("METRICS_ENABLED", s.MetricsEnabled)
	s.RetentionEnabled = getEnvBool("RETENTION_ENABLED", s.RetentionEnabled)
	s.RetentionMaxIdleHours = getEnvInt("RETENTION_MAX_IDLE_HOURS", s.RetentionMaxIdleHours)
	s.RetentionIntervalMin = getEnvInt("RETENTION_INTERVAL_MIN", s.RetentionIntervalMin)
	s.OpenAIAPIKey = getEnvString("OPENAI_API_KEY", s.OpenAIAPIKey)
	s.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", s.OpenAIBaseURL)
}

// Validate corrects out-of-range values to their defaults with a warning
// and rejects unusable combinations.
func (s *Settings) Validate() error {
	def := Defaults()

	if s.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", s.EmbeddingDim)
	}
	if s.EmbeddingModel == "" || s.ChatModel == "" {
		return fmt.Errorf("embedding_model and chat_model must be set")
	}
	if s.ChatTemperature < 0 || s.ChatTemperature > 2 {
		slog.Warn("chat_temperature out of range, using default",
			"value", s.ChatTemperature, "default", def.ChatTemperature)
		s.ChatTemperature = def.ChatTemperature
	}
	if s.QualityThreshold < 0 || s.QualityThreshold > 1 {
		slog.Warn("quality_threshold out of range, using default",
			"value", s.QualityThreshold, "default", def.QualityThreshold)
		s.QualityThreshold = def.QualityThreshold
	}
	if s.RetrievalOversample < 1 {
		slog.Warn("retrieval_oversample below 1, using default",
			"value", s.RetrievalOversample, "default", def.RetrievalOversample)
		s.RetrievalOversample = def.RetrievalOversample
	}
	if s.ConversationHistoryTurns < 1 {
		slog.Warn("conversation_history_turns below 1, using default",
			"value", s.ConversationHistoryTurns, "default", def.ConversationHistoryTurns)
		s.ConversationHistoryTurns = def.ConversationHistoryTurns
	}
	if s.SQLTimeoutMS < 1 {
		slog.Warn("sql_timeout_ms below 1, using default",
			"value", s.SQLTimeoutMS, "default", def.SQLTimeoutMS)
		s.SQLTimeoutMS = def.SQLTimeoutMS
	}
	if s.SQLRowCap < 1 || s.SQLRowCap > 1000 {
		slog.Warn("sql_row_cap outside [1,1000], using default",
			"value", s.SQLRowCap, "default", def.SQLRowCap)
		s.SQLRowCap = def.SQLRowCap
	}
	if s.SQLMaxConns < 1 {
		slog.Warn("sql_max_conns below 1, using default",
			"value", s.SQLMaxConns, "default", def.SQLMaxConns)
		s.SQLMaxConns = def.SQLMaxConns
	}
	if s.RequestDeadlineMS < 1000 {
		slog.Warn("request_deadline_ms below 1000, using default",
			"value", s.RequestDeadlineMS, "default", def.RequestDeadlineMS)
		s.RequestDeadlineMS = def.RequestDeadlineMS
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be in [1,65535], got %d", s.Port)
	}
	if s.EmbedRateLimit < 0 {
		slog.Warn("embed_rate_limit negative, disabling rate limiting",
			"value", s.EmbedRateLimit)
		s.EmbedRateLimit = 0
	}
	if s.RetentionEnabled {
		if s.RetentionMaxIdleHours < 1 {
			return fmt.Errorf("retention_max_idle_hours must be positive when retention is enabled, got %d",
				s.RetentionMaxIdleHours)
		}
		if s.RetentionIntervalMin < 1 {
			return fmt.Errorf("retention_interval_min must be positive when retention is enabled, got %d",
				s.RetentionIntervalMin)
		}
	}
	return nil
}

// =============================================================================
// Environment Helpers
// =============================================================================

// getEnvString returns the environment variable or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
