package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"charger-monitor/reliability/internal/reliability"
)

type Config struct {
	// HTTP
	HTTPPort    string
	CORSOrigins []string

	// Logging
	LogLevel  string
	LogFormat string

	// TimescaleDB
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	// Pipeline channels
	DBChannelSize    int
	StateChannelSize int
	AlertChannelSize int

	// Batch writer tuning
	DBBatchSize       int
	DBFlushIntervalMS int

	// Worker counts
	DBWriterWorkers    int
	StateWriterWorkers int
	AlertWorkers       int

	AlertDedupTTL time.Duration

	// Reliability engine
	PingCadence    time.Duration
	PingGapFactor  float64
	MaxPingGap     time.Duration
	MergeTolerance time.Duration
	DefaultWindow  time.Duration
	ReportCacheTTL time.Duration
	ComputeWorkers int
}

// Tuning is the optional YAML file named by RELIABILITY_CONFIG. Environment
// variables still win over it.
type Tuning struct {
	PingCadence    time.Duration `yaml:"ping_cadence"`
	PingGapFactor  float64       `yaml:"ping_gap_factor"`
	MaxPingGap     time.Duration `yaml:"max_ping_gap"`
	MergeTolerance time.Duration `yaml:"merge_tolerance"`
	DefaultWindow  time.Duration `yaml:"default_window"`
	ReportCacheTTL time.Duration `yaml:"report_cache_ttl"`
	ComputeWorkers int           `yaml:"compute_workers"`
}

func Load() (*Config, error) {
	t := Tuning{
		PingCadence:    reliability.DefaultPingCadence,
		PingGapFactor:  reliability.DefaultPingGapFactor,
		DefaultWindow:  7 * 24 * time.Hour,
		ReportCacheTTL: time.Minute,
		ComputeWorkers: 8,
	}
	if path := os.Getenv("RELIABILITY_CONFIG"); path != "" {
		if err := LoadTuning(path, &t); err != nil {
			return nil, err
		}
	}

	// Engine keys fail fast; a typo here would silently change every report.
	cadence, err := strictDuration("PING_CADENCE", "ping_cadence", t.PingCadence)
	if err != nil {
		return nil, err
	}
	gapFactor, err := strictFloat("PING_GAP_FACTOR", "ping_gap_factor", t.PingGapFactor)
	if err != nil {
		return nil, err
	}
	maxGap, err := strictDuration("MAX_PING_GAP", "max_ping_gap", t.MaxPingGap)
	if err != nil {
		return nil, err
	}
	mergeTol, err := strictDuration("MERGE_TOLERANCE", "merge_tolerance", t.MergeTolerance)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8001"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "charger_user"),
		DBPassword:         getEnv("DB_PASSWORD", "charger_password"),
		DBName:             getEnv("DB_NAME", "ev_charging"),
		DBMaxConns:         int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		MQTTBroker:         getEnv("MQTT_BROKER", ""),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "reliability-api"),
		MQTTTopic:          getEnv("MQTT_TOPIC", "chargers/+/status"),
		DBChannelSize:      getEnvInt("DB_CHANNEL_SIZE", 10000),
		StateChannelSize:   getEnvInt("STATE_CHANNEL_SIZE", 50000),
		AlertChannelSize:   getEnvInt("ALERT_CHANNEL_SIZE", 10000),
		DBBatchSize:        getEnvInt("DB_BATCH_SIZE", 500),
		DBFlushIntervalMS:  getEnvInt("DB_FLUSH_INTERVAL_MS", 100),
		DBWriterWorkers:    getEnvInt("DB_WRITER_WORKERS", 4),
		StateWriterWorkers: getEnvInt("STATE_WRITER_WORKERS", 2),
		AlertWorkers:       getEnvInt("ALERT_WORKERS", 2),
		AlertDedupTTL:      getEnvDuration("ALERT_DEDUP_TTL", 5*time.Minute),
		PingCadence:        cadence,
		PingGapFactor:      gapFactor,
		MaxPingGap:         maxGap,
		MergeTolerance:     mergeTol,
		DefaultWindow:      getEnvDuration("DEFAULT_WINDOW", t.DefaultWindow),
		ReportCacheTTL:     getEnvDuration("REPORT_CACHE_TTL", t.ReportCacheTTL),
		ComputeWorkers:     getEnvInt("COMPUTE_WORKERS", t.ComputeWorkers),
	}, nil
}

// LoadTuning overlays the non-zero fields of a YAML file onto t.
func LoadTuning(path string, t *Tuning) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return nil
}

// DatabaseURL is the pgx connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBMaxConns,
	)
}

// EngineParams derives the engine parameters. Explicit MAX_PING_GAP and
// MERGE_TOLERANCE win over the cadence-derived defaults.
func (c *Config) EngineParams() (reliability.Params, error) {
	if c.PingCadence <= 0 {
		return reliability.Params{}, &reliability.ConfigError{Field: "ping_cadence", Reason: "must be positive"}
	}
	if c.PingGapFactor < 1 {
		return reliability.Params{}, &reliability.ConfigError{Field: "ping_gap_factor", Reason: "must be at least 1"}
	}
	p := reliability.ParamsForCadence(c.PingCadence, c.PingGapFactor)
	if c.MaxPingGap != 0 {
		p.MaxPingGap = c.MaxPingGap
	}
	if c.MergeTolerance != 0 {
		p.MergeTolerance = c.MergeTolerance
	}
	if err := p.Validate(); err != nil {
		return reliability.Params{}, err
	}
	return p, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func strictDuration(key, field string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &reliability.ConfigError{Field: field, Reason: fmt.Sprintf("%s=%q is not a duration", key, v)}
	}
	return d, nil
}

func strictFloat(key, field string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &reliability.ConfigError{Field: field, Reason: fmt.Sprintf("%s=%q is not a number", key, v)}
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
