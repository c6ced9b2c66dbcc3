package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	DefaultBaseDir           = "pasture-data"
	DefaultHTTPHost          = "0.0.0.0"
	DefaultHTTPPort          = 7000
	DefaultPlanCacheMaxBytes = 64 * 1024 * 1024
	DefaultCheckpointPeriod  = 5 * time.Minute
	DefaultMaxLogSize        = 64 * 1024 * 1024
	DefaultWALSegmentSize    = 16 * 1024 * 1024
	DefaultLogLevel          = "INFO"
	DefaultLogFormat         = "text"
)

// Config holds the already-resolved values the engine is constructed with
type Config struct {
	NodeID            string
	BaseDir           string
	HTTPHost          string
	HTTPPort          int
	ZMQPort           int // 0 disables the ZeroMQ front
	TLSEnabled        bool
	TLSCertFile       string
	TLSKeyFile        string
	PlanCacheMaxBytes int64
	CheckpointPeriod  time.Duration
	MaxLogSize        int64
	WALSegmentSize    int64
	LogLevel          string
	LogFormat         string
	LogFile           string
}

// LoadConfig reads .env when present, then the environment, then applies defaults
func LoadConfig() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		NodeID:      os.Getenv("NODE_ID"),
		BaseDir:     os.Getenv("BASE_DIR"),
		HTTPHost:    os.Getenv("HTTP_HOST"),
		TLSCertFile: os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:  os.Getenv("TLS_KEY_FILE"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		LogFormat:   os.Getenv("LOG_FORMAT"),
		LogFile:     os.Getenv("LOG_FILE"),
	}

	var err error
	if cfg.HTTPPort, err = envInt("HTTP_PORT"); err != nil {
		return Config{}, err
	}
	if cfg.ZMQPort, err = envInt("ZMQ_PORT"); err != nil {
		return Config{}, err
	}
	if cfg.TLSEnabled, err = envBool("TLS_ENABLED"); err != nil {
		return Config{}, err
	}
	if cfg.PlanCacheMaxBytes, err = envInt64("PLAN_CACHE_MAX_BYTES"); err != nil {
		return Config{}, err
	}
	if cfg.MaxLogSize, err = envInt64("MAX_LOG_SIZE"); err != nil {
		return Config{}, err
	}
	if cfg.WALSegmentSize, err = envInt64("WAL_SEGMENT_SIZE"); err != nil {
		return Config{}, err
	}
	if period := os.Getenv("CHECKPOINT_PERIOD"); period != "" {
		if cfg.CheckpointPeriod, err = time.ParseDuration(period); err != nil {
			return Config{}, fmt.Errorf("invalid CHECKPOINT_PERIOD %q: %w", period, err)
		}
	}

	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// ApplyDefaults fills every unset field
func (c *Config) ApplyDefaults() {
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
	if c.BaseDir == "" {
		c.BaseDir = DefaultBaseDir
	}
	if c.HTTPHost == "" {
		c.HTTPHost = DefaultHTTPHost
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.PlanCacheMaxBytes == 0 {
		c.PlanCacheMaxBytes = DefaultPlanCacheMaxBytes
	}
	if c.CheckpointPeriod == 0 {
		c.CheckpointPeriod = DefaultCheckpointPeriod
	}
	if c.MaxLogSize == 0 {
		c.MaxLogSize = DefaultMaxLogSize
	}
	if c.WALSegmentSize == 0 {
		c.WALSegmentSize = DefaultWALSegmentSize
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

func (c Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.HTTPPort)
	}
	if c.ZMQPort < 0 || c.ZMQPort > 65535 {
		return fmt.Errorf("invalid ZMQ port %d", c.ZMQPort)
	}
	if c.TLSEnabled && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return fmt.Errorf("TLS enabled but TLS_CERT_FILE or TLS_KEY_FILE is missing")
	}
	if c.PlanCacheMaxBytes < 0 || c.MaxLogSize < 0 || c.WALSegmentSize < 0 {
		return fmt.Errorf("sizes must not be negative")
	}
	if c.CheckpointPeriod < 0 {
		return fmt.Errorf("checkpoint period must not be negative")
	}
	return nil
}

// Address is host:port of the HTTP front
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// ZMQEndpoint is the endpoint the REP socket binds, on the HTTP host
func (c Config) ZMQEndpoint() string {
	host := c.HTTPHost
	if host == "0.0.0.0" || host == "" {
		host = "*"
	}
	return fmt.Sprintf("tcp://%s:%d", host, c.ZMQPort)
}

func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envInt64(key string) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envBool(key string) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
