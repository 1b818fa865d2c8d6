package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Config holds agent and coordinator configuration. Values come from
// defaults, then an optional YAML file, then PARASITE_* environment
// variables.
type Config struct {
	// AgentID identifies this agent. When empty a persisted id from DataDir
	// is used.
	AgentID string `yaml:"agent_id"`

	// APIURL is the base URL of the coordinator. There is no default.
	APIURL string `yaml:"api_url"`

	// Goal is the objective declared at registration.
	Goal string `yaml:"goal"`

	// RequestTimeout bounds each call to the coordinator.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxRetries is the transport retry budget per call.
	MaxRetries int `yaml:"max_retries"`

	// AttachCredential sends the session credential on proposal and
	// decision calls.
	AttachCredential bool `yaml:"attach_credential"`

	// MaxInfectionsPerCycle caps the number of targets in one campaign.
	MaxInfectionsPerCycle int `yaml:"max_infections_per_cycle"`

	// DataDir holds the persisted agent id.
	DataDir string `yaml:"data_dir"`

	// LogDir, when set, receives a JSON log file next to stderr output.
	LogDir string `yaml:"log_dir"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`

	// ListenAddr is the address of the development coordinator.
	ListenAddr string `yaml:"listen_addr"`

	// RequireAPIKey makes the development coordinator reject proposals and
	// decisions without a valid X-API-Key header.
	RequireAPIKey bool `yaml:"require_api_key"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Goal:                  "Build autonomous AI agent",
		RequestTimeout:        10 * time.Second,
		MaxInfectionsPerCycle: 3,
		DataDir:               defaultDataDir(),
		ListenAddr:            "127.0.0.1:8000",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "parasite-agent")
	}
	return filepath.Join(os.TempDir(), "parasite-agent")
}

// Load builds the configuration. path names an optional YAML file; when it
// is empty PARASITE_CONFIG is consulted. Environment variables override the
// file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("PARASITE_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("PARASITE_AGENT_ID")); v != "" {
		c.AgentID = v
	}

	if v := strings.TrimSpace(os.Getenv("PARASITE_API_URL")); v != "" {
		c.APIURL = v
	}

	if v := os.Getenv("PARASITE_GOAL"); v != "" {
		c.Goal = v
	}

	if v := os.Getenv("PARASITE_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PARASITE_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}

	if v := os.Getenv("PARASITE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PARASITE_MAX_RETRIES: %w", err)
		}
		c.MaxRetries = n
	}

	if v := os.Getenv("PARASITE_MAX_INFECTIONS_PER_CYCLE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PARASITE_MAX_INFECTIONS_PER_CYCLE: %w", err)
		}
		c.MaxInfectionsPerCycle = n
	}

	c.AttachCredential = envBool("PARASITE_ATTACH_CREDENTIAL", c.AttachCredential)
	c.Debug = envBool("PARASITE_DEBUG", c.Debug)
	c.RequireAPIKey = envBool("PARASITE_REQUIRE_API_KEY", c.RequireAPIKey)

	if v := os.Getenv("PARASITE_DATA_DIR"); v != "" {
		c.DataDir = v
	}

	if v := os.Getenv("PARASITE_LOG_DIR"); v != "" {
		c.LogDir = v
	}

	if v := os.Getenv("PARASITE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}

	return nil
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v == "true" || v == "1"
}

// ValidateAgent checks the settings an agent process cannot run without.
func (c *Config) ValidateAgent() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("PARASITE_API_URL (or api_url) is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxInfectionsPerCycle <= 0 {
		return fmt.Errorf("max infections per cycle must be positive, got %d", c.MaxInfectionsPerCycle)
	}
	return nil
}

// NewLogger creates a structured logger that writes to stderr and, when
// LogDir is set, to <LogDir>/<name>.log as well.
func NewLogger(cfg *Config, name string) (*slog.Logger, error) {
	var out io.Writer = os.Stderr

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}

		logPath := filepath.Join(cfg.LogDir, name+".log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logPath, err)
		}
		out = io.MultiWriter(os.Stderr, file)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}
