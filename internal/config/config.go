package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int      `yaml:"port"`
	Password    string   `yaml:"password"`
	CORSOrigins []string `yaml:"cors_origins"`

	// Camera
	CameraURL    string        `yaml:"camera_url"` // device index, file, rtsp/http URL or udp://host:port
	CameraName   string        `yaml:"camera_name"`
	OpenAttempts int           `yaml:"open_attempts"`
	OpenBackoff  time.Duration `yaml:"open_backoff"`

	// Object detection
	ModelPath           string        `yaml:"model_path"`
	ConfigPath          string        `yaml:"config_path"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	WeaponLabels        []string      `yaml:"weapon_labels"`
	TrackedLabels       []string      `yaml:"tracked_labels"`
	DetectTimeout       time.Duration `yaml:"detect_timeout"`

	// Anomaly detection
	DiffThreshold  int     `yaml:"diff_threshold"`
	FlowThreshold  float64 `yaml:"flow_threshold"`
	MinConsecutive int     `yaml:"min_consecutive"`
	PixelThreshold int     `yaml:"pixel_threshold"`

	// Loops
	IdleBackoff    time.Duration `yaml:"idle_backoff"`    // Detection loop wait when no new frame arrives
	StreamInterval time.Duration `yaml:"stream_interval"` // Consumer poll cadence (~30 fps)

	// Alerts
	TelegramToken    string        `yaml:"telegram_token"`
	TelegramChatID   int64         `yaml:"telegram_chat_id"`
	WebhookURL       string        `yaml:"webhook_url"`
	DispatchWorkers  int           `yaml:"dispatch_workers"`
	DispatchQueue    int           `yaml:"dispatch_queue"`
	DispatchTimeout  time.Duration `yaml:"dispatch_timeout"`
	AlertJournalSize int           `yaml:"alert_journal_size"`

	LogDirectory string `yaml:"log_dir"`
	LogLevel     string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:                8000,
		CORSOrigins:         []string{"http://localhost:8080"},
		CameraURL:           "0",
		CameraName:          "camera",
		OpenAttempts:        5,
		OpenBackoff:         time.Second,
		ModelPath:           filepath.Join(".", "models", "frozen_inference_graph.pb"),
		ConfigPath:          filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt"),
		ConfidenceThreshold: 0.5,
		WeaponLabels:        []string{"knife", "gun", "pistol", "rifle"},
		TrackedLabels:       []string{"person"},
		DetectTimeout:       2 * time.Second,
		DiffThreshold:       5000,
		FlowThreshold:       5,
		MinConsecutive:      5,
		PixelThreshold:      30,
		IdleBackoff:         10 * time.Millisecond,
		StreamInterval:      33 * time.Millisecond,
		DispatchWorkers:     2,
		DispatchQueue:       32,
		DispatchTimeout:     10 * time.Second,
		AlertJournalSize:    100,
		LogDirectory:        filepath.Join(".", "logs"),
		LogLevel:            "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE and the environment (an optional .env file is read first).
// Environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Password = getEnv("PASSWORD", c.Password)
	c.CORSOrigins = getEnvAsList("CORS_ORIGINS", c.CORSOrigins)

	c.CameraURL = getEnv("CAMERA_URL", c.CameraURL)
	c.CameraName = getEnv("CAMERA_NAME", c.CameraName)
	c.OpenAttempts = getEnvAsInt("OPEN_ATTEMPTS", c.OpenAttempts)
	c.OpenBackoff = getEnvAsDuration("OPEN_BACKOFF", c.OpenBackoff)

	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.ConfigPath = getEnv("CONFIG_PATH", c.ConfigPath)
	c.ConfidenceThreshold = getEnvAsFloat("CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
	c.WeaponLabels = getEnvAsList("WEAPON_LABELS", c.WeaponLabels)
	c.TrackedLabels = getEnvAsList("TRACKED_LABELS", c.TrackedLabels)
	c.DetectTimeout = getEnvAsDuration("DETECT_TIMEOUT", c.DetectTimeout)

	c.DiffThreshold = getEnvAsInt("DIFF_THRESHOLD", c.DiffThreshold)
	c.FlowThreshold = getEnvAsFloat("FLOW_THRESHOLD", c.FlowThreshold)
	c.MinConsecutive = getEnvAsInt("MIN_CONSECUTIVE", c.MinConsecutive)
	c.PixelThreshold = getEnvAsInt("PIXEL_THRESHOLD", c.PixelThreshold)

	c.IdleBackoff = getEnvAsDuration("IDLE_BACKOFF", c.IdleBackoff)
	c.StreamInterval = getEnvAsDuration("STREAM_INTERVAL", c.StreamInterval)

	c.TelegramToken = getEnv("TELEGRAM_TOKEN", c.TelegramToken)
	c.TelegramChatID = getEnvAsInt64("TELEGRAM_CHAT_ID", c.TelegramChatID)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.DispatchWorkers = getEnvAsInt("DISPATCH_WORKERS", c.DispatchWorkers)
	c.DispatchQueue = getEnvAsInt("DISPATCH_QUEUE", c.DispatchQueue)
	c.DispatchTimeout = getEnvAsDuration("DISPATCH_TIMEOUT", c.DispatchTimeout)
	c.AlertJournalSize = getEnvAsInt("ALERT_JOURNAL_SIZE", c.AlertJournalSize)

	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks that the configuration can drive the pipeline.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.CameraURL == "" {
		errs = append(errs, errors.New("camera url is required"))
	}
	if c.OpenAttempts < 1 {
		errs = append(errs, fmt.Errorf("open attempts must be at least 1, got %d", c.OpenAttempts))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence threshold must be in [0,1], got %v", c.ConfidenceThreshold))
	}
	if c.MinConsecutive < 1 {
		errs = append(errs, fmt.Errorf("min consecutive must be at least 1, got %d", c.MinConsecutive))
	}
	if c.DiffThreshold < 0 || c.FlowThreshold < 0 {
		errs = append(errs, errors.New("anomaly thresholds must not be negative"))
	}
	if c.PixelThreshold < 0 || c.PixelThreshold > 255 {
		errs = append(errs, fmt.Errorf("pixel threshold must be in [0,255], got %d", c.PixelThreshold))
	}
	if c.StreamInterval <= 0 || c.IdleBackoff <= 0 || c.DetectTimeout <= 0 || c.DispatchTimeout <= 0 {
		errs = append(errs, errors.New("intervals and timeouts must be positive"))
	}
	if c.DispatchWorkers < 1 || c.DispatchQueue < 1 {
		errs = append(errs, errors.New("dispatch workers and queue size must be positive"))
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("telegram chat id is required when a token is set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
