// Package config loads runtime settings from an optional .env file and
// EIGHTBALL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvAddr            = "EIGHTBALL_ADDR"
	EnvDataDir         = "EIGHTBALL_DATA_DIR"
	EnvDBPath          = "EIGHTBALL_DB_PATH"
	EnvStaticDir       = "EIGHTBALL_STATIC_DIR"
	EnvCamera          = "EIGHTBALL_CAMERA"
	EnvVideo           = "EIGHTBALL_VIDEO"
	EnvProfile         = "EIGHTBALL_PROFILE"
	EnvMotionThreshold = "EIGHTBALL_MOTION_THRESHOLD"
	EnvMaxDimension    = "EIGHTBALL_MAX_DIMENSION"
	EnvDetectRate      = "EIGHTBALL_DETECT_RATE"
	EnvDetectBurst     = "EIGHTBALL_DETECT_BURST"
	EnvLogLevel        = "EIGHTBALL_LOG_LEVEL"
	EnvLogFile         = "EIGHTBALL_LOG_FILE"
)

// Config holds the application settings.
type Config struct {
	Addr            string
	DataDir         string
	DBPath          string
	StaticDir       string
	CameraID        int
	VideoPath       string
	Profile         string
	MotionThreshold float64
	MaxDimension    int
	DetectRate      float64
	DetectBurst     int
	LogLevel        string
	LogFile         string
}

// Default returns the settings used when nothing is configured.
// DataDir defaults to ~/.eightball.
func Default() Config {
	dataDir := ".eightball"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".eightball")
	}

	return Config{
		Addr:            ":8080",
		DataDir:         dataDir,
		MotionThreshold: 1.0,
		MaxDimension:    1920,
		DetectRate:      5,
		DetectBurst:     10,
		LogLevel:        "info",
	}
}

// Load reads envFile if it exists, then overlays EIGHTBALL_* variables on the
// defaults. Variables already present in the environment win over the file.
// An empty envFile skips the file step.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := Default()

	str(EnvAddr, &cfg.Addr)
	str(EnvDataDir, &cfg.DataDir)
	str(EnvDBPath, &cfg.DBPath)
	str(EnvStaticDir, &cfg.StaticDir)
	str(EnvVideo, &cfg.VideoPath)
	str(EnvProfile, &cfg.Profile)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvLogFile, &cfg.LogFile)

	if err := integer(EnvCamera, &cfg.CameraID); err != nil {
		return Config{}, err
	}
	if err := integer(EnvMaxDimension, &cfg.MaxDimension); err != nil {
		return Config{}, err
	}
	if err := integer(EnvDetectBurst, &cfg.DetectBurst); err != nil {
		return Config{}, err
	}
	if err := float(EnvMotionThreshold, &cfg.MotionThreshold); err != nil {
		return Config{}, err
	}
	if err := float(EnvDetectRate, &cfg.DetectRate); err != nil {
		return Config{}, err
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "eightball.db")
	}

	return cfg, cfg.Validate()
}

// Validate checks numeric settings for sane values.
func (c Config) Validate() error {
	if c.CameraID < 0 {
		return fmt.Errorf("camera id must not be negative, got %d", c.CameraID)
	}
	if c.MotionThreshold <= 0 || c.MotionThreshold > 100 {
		return fmt.Errorf("motion threshold must be in (0, 100], got %v", c.MotionThreshold)
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("max dimension must not be negative, got %d", c.MaxDimension)
	}
	if c.DetectRate <= 0 {
		return fmt.Errorf("detect rate must be positive, got %v", c.DetectRate)
	}
	if c.DetectBurst < 1 {
		return fmt.Errorf("detect burst must be at least 1, got %d", c.DetectBurst)
	}
	return nil
}

// EnsureDataDir creates the directory holding the database file.
func (c Config) EnsureDataDir() error {
	dir := filepath.Dir(c.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func integer(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func float(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
