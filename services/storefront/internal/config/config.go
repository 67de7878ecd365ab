package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when no path is given and STOREFRONT_CONFIG is unset.
const ConfigPath = "config.yaml"

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// DevBackendConfig configures the local development backend.
type DevBackendConfig struct {
	Port                   string `yaml:"port"`
	TokenSecret            string `yaml:"tokenSecret"`
	TokenTTL               string `yaml:"tokenTTL"`
	AuthRateLimitPerMinute int    `yaml:"authRateLimitPerMinute"`
	DemoEmail              string `yaml:"demoEmail"`
	DemoPassword           string `yaml:"demoPassword"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	LogLevel       string           `yaml:"logLevel"`
	APIBaseURL     string           `yaml:"apiBaseURL"`
	RequestTimeout string           `yaml:"requestTimeout"`
	AcceptLanguage string           `yaml:"acceptLanguage"`
	ClientVersion  string           `yaml:"clientVersion"`
	SearchDebounce string           `yaml:"searchDebounce"`
	StorageDriver  string           `yaml:"storageDriver"`
	StorageDir     string           `yaml:"storageDir"`
	SQLitePath     string           `yaml:"sqlitePath"`
	PollInterval   string           `yaml:"pollInterval"`
	RedisAddr      string           `yaml:"redisAddr"`
	RedisPassword  string           `yaml:"redisPassword"`
	RedisDB        int              `yaml:"redisDb"`
	RedisPrefix    string           `yaml:"redisPrefix"`
	MetricsAddr    string           `yaml:"metricsAddr"`
	DevBackend     DevBackendConfig `yaml:"devBackend"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() FileConfig {
	return FileConfig{
		LogLevel:       "info",
		APIBaseURL:     "http://localhost:3000/api",
		RequestTimeout: "10s",
		SearchDebounce: "400ms",
		StorageDriver:  DriverFile,
		StorageDir:     ".storefront",
		SQLitePath:     ".storefront/storefront.db",
		PollInterval:   "500ms",
		RedisPrefix:    "storefront",
		DevBackend: DevBackendConfig{
			Port:                   "3000",
			TokenTTL:               "24h",
			AuthRateLimitPerMinute: 20,
		},
	}
}

// Load reads config from path over Defaults and applies environment
// overrides. An empty path means $STOREFRONT_CONFIG, then config.yaml; only
// a missing config.yaml is tolerated.
func Load(path string) (FileConfig, error) {
	cfg := Defaults()
	if path == "" {
		path = strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG"))
	}
	explicit := path != ""
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("VITE_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STOREFRONT_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_SEARCH_DEBOUNCE"); v != "" {
		cfg.SearchDebounce = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("STOREFRONT_STORAGE_DIR"); v != "" {
		cfg.StorageDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("DEV_BACKEND_PORT"); v != "" {
		cfg.DevBackend.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("DEV_BACKEND_TOKEN_SECRET"); v != "" {
		cfg.DevBackend.TokenSecret = v
	}
	if v := os.Getenv("DEV_BACKEND_AUTH_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.DevBackend.AuthRateLimitPerMinute = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	u, err := url.Parse(strings.TrimSpace(cfg.APIBaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("config: apiBaseURL must be an absolute http(s) URL (set in config.yaml or STOREFRONT_API_BASE_URL)")
	}
	for name, value := range map[string]string{
		"requestTimeout":      cfg.RequestTimeout,
		"searchDebounce":      cfg.SearchDebounce,
		"pollInterval":        cfg.PollInterval,
		"devBackend.tokenTTL": cfg.DevBackend.TokenTTL,
	} {
		if _, err := ParseDuration(name, value); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	switch cfg.StorageDriver {
	case DriverMemory:
	case DriverFile:
		if strings.TrimSpace(cfg.StorageDir) == "" {
			return errors.New("config: storageDir is required for the file storage driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return errors.New("config: sqlitePath is required for the sqlite storage driver")
		}
	case DriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis storage driver")
		}
	default:
		return fmt.Errorf("config: unknown storageDriver %q (memory, file, sqlite or redis)", cfg.StorageDriver)
	}
	if cfg.RedisDB < 0 {
		return errors.New("config: redisDb must be >= 0")
	}
	if cfg.DevBackend.AuthRateLimitPerMinute < 0 {
		return errors.New("config: devBackend.authRateLimitPerMinute must be >= 0")
	}
	return nil
}

// ParseDuration parses an optional duration field. Empty means zero.
func ParseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return d, nil
}

// Durations holds the parsed duration fields.
type Durations struct {
	RequestTimeout time.Duration
	SearchDebounce time.Duration
	PollInterval   time.Duration
	TokenTTL       time.Duration
}

// Durations parses every duration field of cfg.
func (cfg FileConfig) Durations() (Durations, error) {
	var d Durations
	var err error
	if d.RequestTimeout, err = ParseDuration("requestTimeout", cfg.RequestTimeout); err != nil {
		return d, err
	}
	if d.SearchDebounce, err = ParseDuration("searchDebounce", cfg.SearchDebounce); err != nil {
		return d, err
	}
	if d.PollInterval, err = ParseDuration("pollInterval", cfg.PollInterval); err != nil {
		return d, err
	}
	if d.TokenTTL, err = ParseDuration("devBackend.tokenTTL", cfg.DevBackend.TokenTTL); err != nil {
		return d, err
	}
	return d, nil
}
