package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Display sources
const (
	SourceSynthetic = "synthetic"
	SourceDesktop   = "desktop"
	SourceADB       = "adb"
)

// Screenshot outputs
const (
	OutputStdout  = "-"
	OutputStorage = "storage"
)

// AutoRotation takes the rotation from the display at startup
const AutoRotation = -1

// Config holds all application configuration
type Config struct {
	// HTTP control API
	HTTPAddr string `yaml:"httpAddr"`
	APIKey   string `yaml:"apiKey"` // empty leaves the API open

	// Frame server
	ListenAddr     string `yaml:"listenAddr"`
	SessionHistory int    `yaml:"sessionHistory"`

	// Display source
	Source              string        `yaml:"source"`
	ADBPath             string        `yaml:"adbPath"`
	ADBSerial           string        `yaml:"adbSerial"`
	DisplayIndex        int           `yaml:"displayIndex"`
	PollInterval        time.Duration `yaml:"pollInterval"`
	SyntheticWidth      int           `yaml:"syntheticWidth"`
	SyntheticHeight     int           `yaml:"syntheticHeight"`
	SyntheticInterval   time.Duration `yaml:"syntheticInterval"`
	SyntheticRowPadding int           `yaml:"syntheticRowPadding"`

	// Capture
	BaseWidth  int     `yaml:"baseWidth"` // 0 uses the display size
	BaseHeight int     `yaml:"baseHeight"`
	Rotation   int     `yaml:"rotation"` // -1 reads it from the display
	Quality    int     `yaml:"quality"`
	FrameRate  float64 `yaml:"frameRate"` // 0 is unbounded
	Debug      bool    `yaml:"debug"`     // close each session after one frame
	Layer      int     `yaml:"layer"`

	// Screenshot mode
	Screenshot       bool   `yaml:"screenshot"`
	ScreenshotOutput string `yaml:"screenshotOutput"`

	// Storage
	StorageType       string        `yaml:"storageType"` // "local" or "gcs"
	StorageDir        string        `yaml:"storageDir"`
	GCSProjectID      string        `yaml:"gcsProjectId"`
	GCSBucketName     string        `yaml:"gcsBucketName"`
	GCSBaseDir        string        `yaml:"gcsBaseDir"`
	SnapshotRetention time.Duration `yaml:"snapshotRetention"` // 0 keeps everything

	// Logging
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"` // "text" or "json"
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		HTTPAddr:          ":8080",
		ListenAddr:        ":1717",
		SessionHistory:    16,
		Source:            SourceSynthetic,
		ADBPath:           "adb",
		PollInterval:      100 * time.Millisecond,
		SyntheticWidth:    720,
		SyntheticHeight:   1280,
		SyntheticInterval: 16 * time.Millisecond,
		Rotation:          AutoRotation,
		Quality:           100,
		ScreenshotOutput:  OutputStdout,
		StorageType:       "local",
		StorageDir:        "./data/screenshots",
		GCSBaseDir:        "screenshots",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load loads configuration from the optional CONFIG_FILE, then environment
// variables, and validates the result
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.APIKey = getEnv("API_KEY", c.APIKey)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.SessionHistory = getIntEnv("SESSION_HISTORY", c.SessionHistory)

	c.Source = getEnv("SOURCE", c.Source)
	c.ADBPath = getEnv("ADB_PATH", c.ADBPath)
	c.ADBSerial = getEnv("ADB_SERIAL", c.ADBSerial)
	c.DisplayIndex = getIntEnv("DISPLAY_INDEX", c.DisplayIndex)
	c.PollInterval = getDurationEnv("POLL_INTERVAL", c.PollInterval)
	c.SyntheticWidth = getIntEnv("SYNTHETIC_WIDTH", c.SyntheticWidth)
	c.SyntheticHeight = getIntEnv("SYNTHETIC_HEIGHT", c.SyntheticHeight)
	c.SyntheticInterval = getDurationEnv("SYNTHETIC_INTERVAL", c.SyntheticInterval)
	c.SyntheticRowPadding = getIntEnv("SYNTHETIC_ROW_PADDING", c.SyntheticRowPadding)

	c.BaseWidth = getIntEnv("BASE_WIDTH", c.BaseWidth)
	c.BaseHeight = getIntEnv("BASE_HEIGHT", c.BaseHeight)
	c.Rotation = getIntEnv("ROTATION", c.Rotation)
	c.Quality = getIntEnv("QUALITY", c.Quality)
	c.FrameRate = getFloatEnv("FRAME_RATE", c.FrameRate)
	c.Debug = getBoolEnv("DEBUG", c.Debug)
	c.Layer = getIntEnv("LAYER", c.Layer)

	c.Screenshot = getBoolEnv("SCREENSHOT", c.Screenshot)
	c.ScreenshotOutput = getEnv("SCREENSHOT_OUTPUT", c.ScreenshotOutput)

	c.StorageType = getEnv("STORAGE_TYPE", c.StorageType)
	c.StorageDir = getEnv("STORAGE_DIR", c.StorageDir)
	c.GCSProjectID = getEnv("GCS_PROJECT_ID", c.GCSProjectID)
	c.GCSBucketName = getEnv("GCS_BUCKET_NAME", c.GCSBucketName)
	c.GCSBaseDir = getEnv("GCS_BASE_DIR", c.GCSBaseDir)
	c.SnapshotRetention = getDurationEnv("SNAPSHOT_RETENTION", c.SnapshotRetention)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Source {
	case SourceSynthetic, SourceDesktop, SourceADB:
	default:
		result = multierror.Append(result, fmt.Errorf("SOURCE must be synthetic, desktop or adb, got %q", c.Source))
	}
	if c.Source == SourceSynthetic && (c.SyntheticWidth <= 0 || c.SyntheticHeight <= 0) {
		result = multierror.Append(result, fmt.Errorf("synthetic display size %dx%d must be positive", c.SyntheticWidth, c.SyntheticHeight))
	}
	if c.SyntheticRowPadding < 0 || c.SyntheticRowPadding%4 != 0 {
		result = multierror.Append(result, fmt.Errorf("SYNTHETIC_ROW_PADDING must be a non-negative multiple of 4, got %d", c.SyntheticRowPadding))
	}
	if c.BaseWidth < 0 || c.BaseHeight < 0 || (c.BaseWidth == 0) != (c.BaseHeight == 0) {
		result = multierror.Append(result, fmt.Errorf("BASE_WIDTH and BASE_HEIGHT must both be set or both be 0, got %dx%d", c.BaseWidth, c.BaseHeight))
	}
	if c.Rotation < AutoRotation || c.Rotation > 3 {
		result = multierror.Append(result, fmt.Errorf("ROTATION must be between -1 and 3, got %d", c.Rotation))
	}
	if c.Quality < 1 || c.Quality > 100 {
		result = multierror.Append(result, fmt.Errorf("QUALITY must be between 1 and 100, got %d", c.Quality))
	}
	if c.FrameRate < 0 {
		result = multierror.Append(result, fmt.Errorf("FRAME_RATE must not be negative, got %v", c.FrameRate))
	}
	if c.ScreenshotOutput != OutputStdout && c.ScreenshotOutput != OutputStorage {
		result = multierror.Append(result, fmt.Errorf("SCREENSHOT_OUTPUT must be %q or %q, got %q", OutputStdout, OutputStorage, c.ScreenshotOutput))
	}

	switch c.StorageType {
	case "local":
		if c.StorageDir == "" {
			result = multierror.Append(result, errors.New("STORAGE_DIR must be set when STORAGE_TYPE=local"))
		}
	case "gcs":
		if c.GCSProjectID == "" || c.GCSBucketName == "" {
			result = multierror.Append(result, errors.New("GCS_PROJECT_ID and GCS_BUCKET_NAME must be set when STORAGE_TYPE=gcs"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("STORAGE_TYPE must be local or gcs, got %q", c.StorageType))
	}
	if c.SnapshotRetention < 0 {
		result = multierror.Append(result, errors.New("SNAPSHOT_RETENTION must not be negative"))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		result = multierror.Append(result, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return result.ErrorOrNil()
}

// ConfigureLogging applies the log level and format
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
