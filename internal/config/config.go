package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tepstack/tep-sentinel/internal/utils"
)

// Config captures the settings required to train, evaluate, and serve the
// fault sentinel. Components receive the slices they need by value; nothing
// reads configuration globally after startup.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Models   ModelsConfig   `yaml:"models"`
	Training TrainingConfig `yaml:"training"`
	Stream   StreamConfig   `yaml:"stream"`
	Report   ReportConfig   `yaml:"report"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DataConfig locates the labelled simulation dataset.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// ModelsConfig locates persisted model artifacts.
type ModelsConfig struct {
	Dir               string `yaml:"dir"`
	DetectorFile      string `yaml:"detectorFile"`
	DiagnosticianFile string `yaml:"diagnosticianFile"`
}

// DetectorPath returns the full path of the detector artifact.
func (m ModelsConfig) DetectorPath() string {
	return filepath.Join(m.Dir, m.DetectorFile)
}

// DiagnosticianPath returns the full path of the diagnostician artifact.
func (m ModelsConfig) DiagnosticianPath() string {
	return filepath.Join(m.Dir, m.DiagnosticianFile)
}

// ForestConfig sizes one random-forest stage.
type ForestConfig struct {
	Trees    int `yaml:"trees"`
	MaxDepth int `yaml:"maxDepth"`
}

// TrainingConfig controls the offline training job.
type TrainingConfig struct {
	Seed          int64        `yaml:"seed"`
	EvalFraction  float64      `yaml:"evalFraction"`
	Workers       int          `yaml:"workers"`
	Detector      ForestConfig `yaml:"detector"`
	Diagnostician ForestConfig `yaml:"diagnostician"`
}

// StreamConfig tunes the event-detector state machine. These are the knobs
// that trade detection latency for noise resilience.
type StreamConfig struct {
	StabilizationSamples int     `yaml:"stabilizationSamples"`
	PersistenceThreshold int     `yaml:"persistenceThreshold"`
	DiagnosisWindow      int     `yaml:"diagnosisWindow"`
	DiagnosisMajority    float64 `yaml:"diagnosisMajority"`
	SnapshotSessions     bool    `yaml:"snapshotSessions"`
}

// ReportConfig locates the evaluation metrics artifact.
type ReportConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed publication of reports and optional
// session snapshots.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	ReportTTL    time.Duration `yaml:"reportTTL"`
	SessionTTL   time.Duration `yaml:"sessionTTL"`
}

// Load initialises Config from a YAML file, applies environment overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, utils.ConfigurationError("config.Load", fmt.Sprintf("config file %s not found", path), err)
			}
			return nil, utils.ConfigurationError("config.Load", "read config", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, utils.ConfigurationError("config.Load", "parse config", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration. Stream defaults follow the
// simulator: 3-minute sampling, one hour of stabilization (20 samples).
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Data: DataConfig{Dir: "data/processed"},
		Models: ModelsConfig{
			Dir:               "artifacts/models",
			DetectorFile:      "tep_detector.model",
			DiagnosticianFile: "tep_diagnostician.model",
		},
		Training: TrainingConfig{
			Seed:          42,
			EvalFraction:  0.2,
			Detector:      ForestConfig{Trees: 50, MaxDepth: 10},
			Diagnostician: ForestConfig{Trees: 100, MaxDepth: 20},
		},
		Stream: StreamConfig{
			StabilizationSamples: 20,
			PersistenceThreshold: 3,
			DiagnosisWindow:      5,
			DiagnosisMajority:    0.6,
		},
		Report:  ReportConfig{Path: "artifacts/metrics.json"},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			ReportTTL:    10 * time.Minute,
			SessionTTL:   time.Hour,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	const op = "config.Validate"
	if c.Stream.PersistenceThreshold < 1 {
		return utils.ConfigurationError(op, fmt.Sprintf("persistence threshold must be >= 1, got %d", c.Stream.PersistenceThreshold), nil)
	}
	if c.Stream.DiagnosisMajority <= 0 || c.Stream.DiagnosisMajority > 1 {
		return utils.ConfigurationError(op, fmt.Sprintf("diagnosis majority must be in (0,1], got %g", c.Stream.DiagnosisMajority), nil)
	}
	if c.Stream.DiagnosisWindow < 1 {
		return utils.ConfigurationError(op, fmt.Sprintf("diagnosis window must be >= 1, got %d", c.Stream.DiagnosisWindow), nil)
	}
	if c.Stream.StabilizationSamples < 0 {
		return utils.ConfigurationError(op, fmt.Sprintf("stabilization window must be >= 0, got %d", c.Stream.StabilizationSamples), nil)
	}
	if c.Training.EvalFraction <= 0 || c.Training.EvalFraction >= 1 {
		return utils.ConfigurationError(op, fmt.Sprintf("eval fraction must be in (0,1), got %g", c.Training.EvalFraction), nil)
	}
	if c.Training.Detector.Trees < 1 || c.Training.Diagnostician.Trees < 1 {
		return utils.ConfigurationError(op, "forest sizes must be >= 1 tree", nil)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINEL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTINEL_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("SENTINEL_MODELS_DIR"); v != "" {
		cfg.Models.Dir = v
	}
	if v := os.Getenv("SENTINEL_REPORT_PATH"); v != "" {
		cfg.Report.Path = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTINEL_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Training.Seed = seed
		}
	}
	if v := os.Getenv("SENTINEL_STREAM_PERSISTENCE"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Stream.PersistenceThreshold = p
		}
	}
	if v := os.Getenv("SENTINEL_STREAM_STABILIZATION"); v != "" {
		if w, err := strconv.Atoi(v); err == nil {
			cfg.Stream.StabilizationSamples = w
		}
	}
	if v := os.Getenv("SENTINEL_STREAM_DIAGNOSIS_WINDOW"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Stream.DiagnosisWindow = k
		}
	}
	if v := os.Getenv("SENTINEL_STREAM_DIAGNOSIS_MAJORITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Stream.DiagnosisMajority = f
		}
	}
	if v := os.Getenv("SENTINEL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SENTINEL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SENTINEL_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SENTINEL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SENTINEL_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SENTINEL_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SENTINEL_CACHE_REPORT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReportTTL = d
		}
	}
	if v := os.Getenv("SENTINEL_CACHE_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SessionTTL = d
		}
	}
}
