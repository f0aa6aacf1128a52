package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"diabetesdx/db"
	"diabetesdx/logger"
	"diabetesdx/ml"
	"diabetesdx/report"

	"gopkg.in/yaml.v2"
)

const (
	DefaultPath = "config.yaml"
	EnvPath     = "CONFIG_PATH"
	EnvDSN      = "DATABASE_DSN"
	EnvDriver   = "DATABASE_DRIVER"
)

type Config struct {
	Server   ServerConfig       `yaml:"server"`
	Database DatabaseConfig     `yaml:"database"`
	ML       MLConfig           `yaml:"ml"`
	Report   report.Config      `yaml:"report"`
	Storage  report.MinioConfig `yaml:"storage"`
	Log      logger.Config      `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// Enabled is false when no store is configured; diagnoses are then scored
// but not persisted.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.DSN) != ""
}

type MLConfig struct {
	ModelType   string          `yaml:"model_type"`
	ModelPath   string          `yaml:"model_path"`
	DatasetPath string          `yaml:"dataset_path"`
	Threshold   float64         `yaml:"threshold"`
	TestRatio   float64         `yaml:"test_ratio"`
	Watch       bool            `yaml:"watch"`
	CacheSize   int             `yaml:"cache_size"`
	Forest      ml.ForestParams `yaml:"forest"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:      db.DriverSQLite,
			DSN:         "data/diabetes.db",
			AutoMigrate: true,
		},
		ML: MLConfig{
			ModelType:   ml.ModelTypeRandomForest,
			ModelPath:   "models/model_rf.json",
			DatasetPath: "data/diabetes.csv",
			Threshold:   ml.DefaultThreshold,
			TestRatio:   0.2,
			Watch:       true,
			CacheSize:   4,
			Forest:      ml.DefaultForestParams(),
		},
		Report: report.Config{
			Dir:      "reportes",
			LogoPath: "assets/logo.png",
		},
		Log: logger.Config{
			Level:      "info",
			File:       "logs/diabetesdx.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Console:    true,
		},
	}
}

// ResolvePath picks the config file: the flag value, then CONFIG_PATH, then
// config.yaml.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads path over the defaults. A missing file is only an error when the
// path was asked for explicitly.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv lets non-empty DATABASE_DSN and DATABASE_DRIVER replace the file
// values. An empty variable never disables the store.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvDriver); v != "" {
		c.Database.Driver = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Database.Enabled() {
		if _, err := db.NormalizeDriver(c.Database.Driver); err != nil {
			errs = append(errs, fmt.Errorf("database.driver: %w", err))
		}
	}
	switch c.ML.ModelType {
	case ml.ModelTypeRandomForest, ml.ModelTypeDecisionTree:
	default:
		errs = append(errs, fmt.Errorf("ml.model_type %q is not %s or %s",
			c.ML.ModelType, ml.ModelTypeRandomForest, ml.ModelTypeDecisionTree))
	}
	if c.ML.ModelPath == "" {
		errs = append(errs, errors.New("ml.model_path is required"))
	}
	if c.ML.Threshold < 0 || c.ML.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("ml.threshold %v outside [0,1)", c.ML.Threshold))
	}
	if c.ML.TestRatio <= 0 || c.ML.TestRatio >= 1 {
		errs = append(errs, fmt.Errorf("ml.test_ratio %v outside (0,1)", c.ML.TestRatio))
	}
	if c.ML.Forest.NEstimators <= 0 {
		errs = append(errs, errors.New("ml.forest.n_estimators must be positive"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TrainingConfig derives the trainer input from the ml section.
func (c *Config) TrainingConfig() ml.TrainingConfig {
	return ml.TrainingConfig{
		DatasetPath: c.ML.DatasetPath,
		ModelType:   c.ML.ModelType,
		ModelPath:   c.ML.ModelPath,
		TestRatio:   c.ML.TestRatio,
		Threshold:   c.ML.Threshold,
		Params:      c.ML.Forest,
	}
}
