package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		BasePath           string   `yaml:"base_path"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// fs | memory | postgres | redis
		Driver string `yaml:"driver"`
		Root   string `yaml:"root"`
		DSN    string `yaml:"dsn"`
		Redis  struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Pump struct {
		// espera máxima de un long poll
		Delay string `yaml:"long_poll_delay"`
		// una registración sin polls por más de esto se descarta
		Timeout string `yaml:"long_poll_timeout"`
	} `yaml:"pump"`

	Auth struct {
		// table | none
		Mode         string `yaml:"mode"`
		TableURL     string `yaml:"table_url"`
		CheckTimeout string `yaml:"check_timeout"`
	} `yaml:"auth"`

	Remote struct {
		RetryBackoff   string `yaml:"retry_backoff"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"remote"`

	// Rate limita POST /oplog por usuario.
	Rate struct {
		Enabled bool `yaml:"enabled"`
		// memory | redis (usa storage.redis.addr)
		Backend     string `yaml:"backend"`
		MaxRequests int    `yaml:"max_requests"`
		Window      string `yaml:"window"`
	} `yaml:"rate"`
}

// Load lee el YAML en path (si existe), aplica defaults y overrides por env.
// Un archivo inexistente no es error: quedan los defaults + env.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// root relativo se resuelve contra el directorio del YAML
	if path != "" && c.Storage.Driver == "fs" && !filepath.IsAbs(c.Storage.Root) {
		if _, err := os.Stat(path); err == nil {
			c.Storage.Root = filepath.Clean(filepath.Join(filepath.Dir(path), c.Storage.Root))
		}
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		if c.App.Env == "prod" {
			c.Log.Format = "json"
		} else {
			c.Log.Format = "console"
		}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.Driver == "fs" && c.Storage.Root == "" {
		c.Storage.Root = "./data/gigsync"
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "gig"
	}
	if c.Pump.Delay == "" {
		c.Pump.Delay = "5s"
	}
	if c.Pump.Timeout == "" {
		c.Pump.Timeout = "2m"
	}
	if c.Auth.Mode == "" {
		if c.Auth.TableURL != "" {
			c.Auth.Mode = "table"
		} else {
			c.Auth.Mode = "none"
		}
	}
	if c.Auth.CheckTimeout == "" {
		c.Auth.CheckTimeout = "10s"
	}
	if c.Remote.RetryBackoff == "" {
		c.Remote.RetryBackoff = "1s"
	}
	if c.Remote.RequestTimeout == "" {
		c.Remote.RequestTimeout = "30s"
	}
	if c.Rate.Backend == "" {
		c.Rate.Backend = "memory"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 600
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	} else if v, ok := getEnvStr("PORT"); ok {
		c.Server.Addr = ":" + v
	}
	if v, ok := getEnvStr("SERVER_BASE_PATH"); ok {
		c.Server.BasePath = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_ROOT"); ok {
		c.Storage.Root = v
	} else if v, ok := getEnvStr("GIGFS_DATA"); ok {
		c.Storage.Root = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Storage.Redis.Prefix = v
	}

	// PUMP
	if v, ok := getEnvStr("PUMP_LONG_POLL_DELAY"); ok {
		c.Pump.Delay = v
	}
	if v, ok := getEnvStr("PUMP_LONG_POLL_TIMEOUT"); ok {
		c.Pump.Timeout = v
	}

	// AUTH
	if v, ok := getEnvStr("AUTH_MODE"); ok {
		c.Auth.Mode = strings.ToLower(v)
	}
	if v, ok := getEnvStr("AUTH_TABLE_URL"); ok {
		c.Auth.TableURL = v
	}
	if v, ok := getEnvStr("AUTH_CHECK_TIMEOUT"); ok {
		c.Auth.CheckTimeout = v
	}

	// REMOTE
	if v, ok := getEnvStr("REMOTE_RETRY_BACKOFF"); ok {
		c.Remote.RetryBackoff = v
	}
	if v, ok := getEnvStr("REMOTE_REQUEST_TIMEOUT"); ok {
		c.Remote.RequestTimeout = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_BACKEND"); ok {
		c.Rate.Backend = strings.ToLower(v)
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
}

// Validate revisa drivers, modos y duraciones.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "fs", "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("config: storage.dsn is required for postgres")
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Redis.Addr) == "" {
			return errors.New("config: storage.redis.addr is required for redis")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Auth.Mode {
	case "none":
		if c.App.Env == "prod" {
			return errors.New("config: auth.mode none is not allowed in prod")
		}
	case "table":
		if strings.TrimSpace(c.Auth.TableURL) == "" {
			return errors.New("config: auth.table_url is required for auth.mode table")
		}
	default:
		return fmt.Errorf("config: unknown auth.mode %q", c.Auth.Mode)
	}

	if c.Rate.Enabled {
		switch c.Rate.Backend {
		case "memory":
		case "redis":
			if strings.TrimSpace(c.Storage.Redis.Addr) == "" {
				return errors.New("config: rate.backend redis needs storage.redis.addr")
			}
		default:
			return fmt.Errorf("config: unknown rate.backend %q", c.Rate.Backend)
		}
		if c.Rate.MaxRequests <= 0 {
			return errors.New("config: rate.max_requests must be positive")
		}
	}

	for name, v := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"pump.long_poll_delay":    c.Pump.Delay,
		"pump.long_poll_timeout":  c.Pump.Timeout,
		"auth.check_timeout":      c.Auth.CheckTimeout,
		"remote.retry_backoff":    c.Remote.RetryBackoff,
		"remote.request_timeout":  c.Remote.RequestTimeout,
		"rate.window":             c.Rate.Window,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// Dur parsea una duración ya validada; cae a def si está vacía o mal formada.
func Dur(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return d
}
