package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Node is the configuration of the splitlog daemon. Sync and vitals
// are optional: a node without a server URL works purely locally.
type Node struct {
	Store  StoreConfig  `yaml:"store"`
	Sync   SyncConfig   `yaml:"sync"`
	Vitals VitalsConfig `yaml:"vitals"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type SyncConfig struct {
	ServerURL       string `yaml:"server_url"`
	APIKey          string `yaml:"api_key"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	ProbeSeconds    int    `yaml:"probe_seconds"`
}

type VitalsConfig struct {
	File string `yaml:"file"`
}

// Enabled reports whether the node has a sync target at all.
func (s SyncConfig) Enabled() bool {
	return s.ServerURL != ""
}

// Timeout is the budget for one sync pass.
func (s SyncConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Interval is the auto-sync ticker period.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// ProbeInterval is how often the network quality probe runs.
func (s SyncConfig) ProbeInterval() time.Duration {
	return time.Duration(s.ProbeSeconds) * time.Second
}

// Server is the configuration of the splitlogd sync server.
type Server struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// LoadNode reads daemon config from a YAML file, then applies
// environment variable overrides. Env vars use the prefix SPLITLOG_
// and underscore-separated paths:
//
//	SPLITLOG_STORE_PATH,
//	SPLITLOG_SYNC_SERVER_URL, SPLITLOG_SYNC_API_KEY,
//	SPLITLOG_VITALS_FILE
func LoadNode(path string) (*Node, error) {
	cfg := &Node{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if v := os.Getenv("SPLITLOG_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SPLITLOG_SYNC_SERVER_URL"); v != "" {
		cfg.Sync.ServerURL = v
	}
	if v := os.Getenv("SPLITLOG_SYNC_API_KEY"); v != "" {
		cfg.Sync.APIKey = v
	}
	if v := os.Getenv("SPLITLOG_VITALS_FILE"); v != "" {
		cfg.Vitals.File = v
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Node) applyDefaults() {
	if c.Sync.TimeoutSeconds == 0 {
		c.Sync.TimeoutSeconds = 30
	}
	if c.Sync.IntervalMinutes == 0 {
		c.Sync.IntervalMinutes = 15
	}
	if c.Sync.ProbeSeconds == 0 {
		c.Sync.ProbeSeconds = 30
	}
}

func (c *Node) validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Sync.Enabled() && c.Sync.APIKey == "" {
		return fmt.Errorf("sync.api_key is required when sync.server_url is set")
	}
	return nil
}

// LoadServer reads sync-server config from a YAML file, then applies
// environment variable overrides. Env vars use the prefix SPLITLOGD_
// and underscore-separated paths:
//
//	SPLITLOGD_SERVER_HOST, SPLITLOGD_SERVER_PORT,
//	SPLITLOGD_DB_HOST, SPLITLOGD_DB_PORT, SPLITLOGD_DB_NAME,
//	SPLITLOGD_DB_USER, SPLITLOGD_DB_PASSWORD, SPLITLOGD_DB_SSLMODE,
//	SPLITLOGD_AUTH_API_KEY,
//	SPLITLOGD_TS_HOSTNAME, SPLITLOGD_TS_STATE_DIR
func LoadServer(path string) (*Server, error) {
	cfg := &Server{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyServerEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyServerEnvOverrides(cfg *Server) {
	if v := os.Getenv("SPLITLOGD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SPLITLOGD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SPLITLOGD_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SPLITLOGD_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SPLITLOGD_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SPLITLOGD_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SPLITLOGD_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SPLITLOGD_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("SPLITLOGD_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("SPLITLOGD_TS_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("SPLITLOGD_TS_STATE_DIR"); v != "" {
		cfg.Tailscale.StateDir = v
	}
}

func (c *Server) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}
