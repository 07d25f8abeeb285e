package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/docswap/shield"
)

// Config is the docswap server configuration.
type Config struct {
	Addr       string `yaml:"addr"`
	LogLevel   string `yaml:"log_level"`
	StagingDir string `yaml:"staging_dir"`
	StaticDir  string `yaml:"static_dir"`

	MaxUploadBytes      int64         `yaml:"max_upload_bytes"`
	DeleteAfterDownload bool          `yaml:"delete_after_download"`
	TTL                 time.Duration `yaml:"ttl"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	Plain               bool          `yaml:"plain"` // skip the section classifier

	Renderer RendererConfig `yaml:"renderer"`
	MCP      MCPConfig      `yaml:"mcp"`

	CORSOrigins     []string                          `yaml:"cors_origins"`
	RateLimits      map[string]shield.RateLimitConfig `yaml:"rate_limits"`
	MaintenanceFlag string                            `yaml:"maintenance_flag"`

	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RendererConfig selects how PDFs are produced.
type RendererConfig struct {
	Kind      string  `yaml:"kind"`       // native | browser
	ChromeURL string  `yaml:"chrome_url"` // browser: remote DevTools endpoint; empty launches Chrome
	Margin    float64 `yaml:"margin"`
	NoFooter  bool    `yaml:"no_footer"`
}

// MCPConfig exposes the docswap tools to MCP clients.
type MCPConfig struct {
	Enabled     bool   `yaml:"enabled"`   // streamable HTTP at /mcp
	QUICAddr    string `yaml:"quic_addr"` // optional MCP-over-QUIC listener
	TLSCert     string `yaml:"tls_cert"`
	TLSKey      string `yaml:"tls_key"`
	MaxSessions int    `yaml:"max_sessions"` // QUIC sessions served at once
	Root        string `yaml:"root"`         // file tools stay under it; default staging_dir
}

// LoadConfig reads the YAML file at path (optional), applies environment
// overrides through getenv, then fills defaults.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Addr = ":" + v
	}
	if v := getenv("STAGING_DIR"); v != "" {
		c.StagingDir = v
	}
	if v := getenv("STATIC_DIR"); v != "" {
		c.StaticDir = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("RENDERER"); v != "" {
		c.Renderer.Kind = v
	}
	if v := getenv("CHROME_URL"); v != "" {
		c.Renderer.ChromeURL = v
	}
	if v := getenv("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil || mb <= 0 {
			return fmt.Errorf("MAX_UPLOAD_MB: invalid value %q", v)
		}
		c.MaxUploadBytes = mb << 20
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
	if v := getenv("MCP_ENABLED"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MCP_ENABLED: invalid value %q", v)
		}
		c.MCP.Enabled = on
	}
	if v := getenv("MCP_QUIC_ADDR"); v != "" {
		c.MCP.QUICAddr = v
	}
	if v := getenv("MCP_ROOT"); v != "" {
		c.MCP.Root = v
	}
	if v := getenv("DELETE_AFTER_DOWNLOAD"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DELETE_AFTER_DOWNLOAD: invalid value %q", v)
		}
		c.DeleteAfterDownload = on
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":3001"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StagingDir == "" {
		c.StagingDir = "uploads"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.Renderer.Kind == "" {
		c.Renderer.Kind = "native"
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{"*"}
	}
	if c.RateLimits == nil {
		c.RateLimits = shield.DefaultRateLimits()
	}
	if c.MCP.MaxSessions <= 0 {
		c.MCP.MaxSessions = 32
	}
	if c.MCP.Root == "" {
		c.MCP.Root = c.StagingDir
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Renderer.Kind {
	case "native", "browser":
	default:
		return fmt.Errorf("renderer.kind: unknown renderer %q (want native or browser)", c.Renderer.Kind)
	}
	if (c.MCP.TLSCert == "") != (c.MCP.TLSKey == "") {
		return fmt.Errorf("mcp: tls_cert and tls_key must be set together")
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
