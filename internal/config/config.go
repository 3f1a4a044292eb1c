package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         string   `yaml:"port"`
		ReadTimeout  string   `yaml:"read_timeout"`
		WriteTimeout string   `yaml:"write_timeout"`
		CORSOrigins  []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Collaborator struct {
		BaseURL        string `yaml:"base_url"`
		DefinitionPath string `yaml:"definition_path"`
		SubmissionPath string `yaml:"submission_path"`
		CSRFHeader     string `yaml:"csrf_header"`
		Timeout        string `yaml:"timeout"`
	} `yaml:"collaborator"`
	Study struct {
		DefaultID      string `yaml:"default_id"`
		DefinitionFile string `yaml:"definition_file"`
		Tokenizer      string `yaml:"tokenizer"`
		DefinitionTTL  string `yaml:"definition_ttl"`
		SubmitTimeout  string `yaml:"submit_timeout"`
		IdleTimeout    string `yaml:"idle_timeout"`
	} `yaml:"study"`
	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides file values with the environment variables the
// deployment sets.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("STUDY_COLLABORATOR_URL"); v != "" {
		c.Collaborator.BaseURL = v
	}
	if v := getenv("STUDY_DEFAULT_ID"); v != "" {
		c.Study.DefaultID = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Logger builds a slog logger writing to w. Unknown levels fall back to info.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(l.Level)}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
