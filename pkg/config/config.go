package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Sampling SamplingConfig `yaml:"sampling"`
	Detector DetectorConfig `yaml:"detector"`
	Rate     RateConfig     `yaml:"rate"`
	Session  SessionConfig  `yaml:"session"`
	Storage  StorageConfig  `yaml:"storage"`
	Publish  PublishConfig  `yaml:"publish"`
	Display  DisplayConfig  `yaml:"display"`
	Mock     MockConfig     `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SamplingConfig contains acquisition parameters.
type SamplingConfig struct {
	RateHz        int `yaml:"rate_hz"`        // ADC sampling frequency
	QueueCapacity int `yaml:"queue_capacity"` // Samples buffered between producer and analysis loop
}

// DetectorConfig contains peak detector parameters.
type DetectorConfig struct {
	ThresholdRatio float64 `yaml:"threshold_ratio"` // Fraction of the amplitude below max where the threshold sits
	WindowSamples  int     `yaml:"window_samples"`  // Samples used to compute min/max
}

// RateConfig contains heart rate validation and smoothing parameters.
type RateConfig struct {
	MinIBI         int `yaml:"min_ibi_ms"`
	MaxIBI         int `yaml:"max_ibi_ms"`
	MinHR          int `yaml:"min_hr"`
	MaxHR          int `yaml:"max_hr"`
	SmoothingBeats int `yaml:"smoothing_beats"` // Beats averaged into one published HR
}

// SessionConfig contains HRV capture parameters.
type SessionConfig struct {
	Duration       time.Duration `yaml:"duration"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Path    string `yaml:"path"`
}

// PublishConfig contains the result publisher configuration.
type PublishConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Topic   string `yaml:"topic"`
}

// DisplayConfig contains UI parameters.
type DisplayConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"` // Main loop period
	ConfirmDebounce time.Duration `yaml:"confirm_debounce"` // Minimum time between confirm events
	WebSocketAddr   string        `yaml:"websocket_addr"`   // Empty disables the live view server
	LogFile         string        `yaml:"log_file"`
}

// MockConfig contains simulated sensor configuration.
type MockConfig struct {
	HeartRate   float64 `yaml:"heart_rate"`  // Beats per minute
	Variability float64 `yaml:"variability"` // Beat-to-beat jitter as a fraction of the period
	Baseline    float64 `yaml:"baseline"`    // DC level in ADC counts
	Amplitude   float64 `yaml:"amplitude"`   // Pulse height in ADC counts
	NoiseLevel  float64 `yaml:"noise_level"` // Noise amplitude in ADC counts
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Sampling: SamplingConfig{
			RateHz:        250,
			QueueCapacity: 500,
		},
		Detector: DetectorConfig{
			ThresholdRatio: 0.2,
			WindowSamples:  500,
		},
		Rate: RateConfig{
			MinIBI:         250,
			MaxIBI:         2000,
			MinHR:          30,
			MaxHR:          240,
			SmoothingBeats: 5,
		},
		Session: SessionConfig{
			Duration:       30 * time.Second,
			PublishTimeout: 2 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "history.json",
		},
		Publish: PublishConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Topic:   "pulse.hrv",
		},
		Display: DisplayConfig{
			RefreshInterval: 20 * time.Millisecond,
			ConfirmDebounce: 500 * time.Millisecond,
			WebSocketAddr:   "",
			LogFile:         "gopulse.log",
		},
		Mock: MockConfig{
			HeartRate:   72,
			Variability: 0.03,
			Baseline:    30000,
			Amplitude:   12000,
			NoiseLevel:  100,
		},
	}
}

// SamplePeriod returns the time between two consecutive samples.
func (c *Config) SamplePeriod() time.Duration {
	if c.Sampling.RateHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Sampling.RateHz)
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sampling.RateHz <= 0 {
		c.Sampling.RateHz = def.Sampling.RateHz
	}
	if c.Sampling.QueueCapacity <= 0 {
		c.Sampling.QueueCapacity = def.Sampling.QueueCapacity
	}

	if c.Detector.ThresholdRatio <= 0 || c.Detector.ThresholdRatio >= 1 {
		c.Detector.ThresholdRatio = def.Detector.ThresholdRatio
	}
	if c.Detector.WindowSamples <= 0 {
		c.Detector.WindowSamples = def.Detector.WindowSamples
	}

	if c.Rate.MinIBI == 0 {
		c.Rate.MinIBI = def.Rate.MinIBI
	}
	if c.Rate.MaxIBI == 0 {
		c.Rate.MaxIBI = def.Rate.MaxIBI
	}
	if c.Rate.MinHR == 0 {
		c.Rate.MinHR = def.Rate.MinHR
	}
	if c.Rate.MaxHR == 0 {
		c.Rate.MaxHR = def.Rate.MaxHR
	}
	if c.Rate.SmoothingBeats <= 0 {
		c.Rate.SmoothingBeats = def.Rate.SmoothingBeats
	}

	if c.Session.Duration == 0 {
		c.Session.Duration = def.Session.Duration
	}
	if c.Session.PublishTimeout == 0 {
		c.Session.PublishTimeout = def.Session.PublishTimeout
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}

	if c.Publish.URL == "" {
		c.Publish.URL = def.Publish.URL
	}
	if c.Publish.Topic == "" {
		c.Publish.Topic = def.Publish.Topic
	}

	if c.Display.RefreshInterval == 0 {
		c.Display.RefreshInterval = def.Display.RefreshInterval
	}
	if c.Display.ConfirmDebounce == 0 {
		c.Display.ConfirmDebounce = def.Display.ConfirmDebounce
	}

	if c.Mock.HeartRate == 0 {
		c.Mock.HeartRate = def.Mock.HeartRate
	}
	if c.Mock.Baseline == 0 {
		c.Mock.Baseline = def.Mock.Baseline
	}
	if c.Mock.Amplitude == 0 {
		c.Mock.Amplitude = def.Mock.Amplitude
	}
}
