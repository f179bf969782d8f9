package mediaproxy

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort         = 8005
	defaultExpiration   = 10 * time.Minute
	defaultOriginTime   = 30 * time.Second
	defaultMaxBody      = "4mb"
	defaultDeviceCookie = "__enketo_meta_deviceid"
	defaultLevelDBPath  = "./data/leveldb"
)

type Config struct {
	Server struct {
		Port     int    `yaml:"port"`
		BasePath string `yaml:"basePath"`
	} `yaml:"server"`

	Media struct {
		Expiration   string `yaml:"expiration"`
		DeviceCookie string `yaml:"deviceCookie"`
	} `yaml:"media"`

	Origin struct {
		Timeout     string `yaml:"timeout"`
		MaxBodySize string `yaml:"maxBodySize"`
	} `yaml:"origin"`

	Store struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		Redis  struct {
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Admin struct {
		APIKey string `yaml:"apiKey"`
	} `yaml:"admin"`

	Logging struct {
		Level         string `yaml:"level"`
		Format        string `yaml:"format"`
		LogStatsEvery string `yaml:"logStatsEvery"`
	} `yaml:"logging"`

	// compiled
	expirationDur    time.Duration
	originTimeoutDur time.Duration
	maxBodyBytes     int64
	logStatsEveryDur time.Duration
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(b)
}

// ParseConfig applies defaults and validates a YAML document.
func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	cfg.Server.BasePath = normalizeBasePath(cfg.Server.BasePath)

	var err error
	if cfg.expirationDur, err = parseDurationDefault(cfg.Media.Expiration, defaultExpiration); err != nil {
		return fmt.Errorf("media.expiration: %w", err)
	}
	if cfg.expirationDur <= 0 {
		return fmt.Errorf("media.expiration must be positive")
	}
	if cfg.Media.DeviceCookie == "" {
		cfg.Media.DeviceCookie = defaultDeviceCookie
	}

	if cfg.originTimeoutDur, err = parseDurationDefault(cfg.Origin.Timeout, defaultOriginTime); err != nil {
		return fmt.Errorf("origin.timeout: %w", err)
	}
	if cfg.Origin.MaxBodySize == "" {
		cfg.Origin.MaxBodySize = defaultMaxBody
	}
	if cfg.maxBodyBytes, err = parseBytes(cfg.Origin.MaxBodySize); err != nil {
		return fmt.Errorf("origin.maxBodySize: %w", err)
	}

	switch cfg.Store.Driver {
	case "", "leveldb":
		cfg.Store.Driver = "leveldb"
		if cfg.Store.Path == "" {
			cfg.Store.Path = defaultLevelDBPath
		}
	case "redis":
		if cfg.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address is required for the redis driver")
		}
	default:
		return fmt.Errorf("store.driver: unsupported %q", cfg.Store.Driver)
	}

	if cfg.logStatsEveryDur, err = parseDurationDefault(cfg.Logging.LogStatsEvery, 0); err != nil {
		return fmt.Errorf("logging.logStatsEvery: %w", err)
	}
	return nil
}

func parseDurationDefault(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// normalizeBasePath yields "" or "/prefix" without a trailing slash.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func (cfg Config) Expiration() time.Duration { return cfg.expirationDur }
