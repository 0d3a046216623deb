package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a config file read by Load.
const MaxConfigFileBytes = 64 << 10

// Camera backend types.
const (
	CameraMock   = "mock"
	CameraScreen = "screen"
	CameraWebcam = "webcam"
)

// Permission modes.
const (
	PermissionPrompt  = "prompt"
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

// CameraConfig selects and tunes the host camera backend.
type CameraConfig struct {
	Type             string `yaml:"type"`               // mock, screen or webcam
	Device           int    `yaml:"device"`             // webcam index (0 = first/back camera)
	Width            int    `yaml:"width"`              // requested frame width (px)
	Height           int    `yaml:"height"`             // requested frame height (px)
	PreviewFPS       int    `yaml:"preview_fps"`        // live preview frame rate
	JPEGQuality      int    `yaml:"jpeg_quality"`       // 1-100
	CaptureTimeoutMs int    `yaml:"capture_timeout_ms"` // upper bound for one still capture
	BindTimeoutMs    int    `yaml:"bind_timeout_ms"`    // upper bound for starting the preview
}

// DisplayConfig bounds the captured still shown on the review surface.
type DisplayConfig struct {
	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`
}

// PermissionConfig describes how camera access is granted.
type PermissionConfig struct {
	Mode string `yaml:"mode"` // prompt, granted or denied
}

// IndicatorConfig is optional GPIO feedback: a tally LED while previewing
// and a flash LED pulsed on every still.
type IndicatorConfig struct {
	Enabled  bool `yaml:"enabled"`
	TallyPin int  `yaml:"tally_pin"` // 0 = not used. Active HIGH.
	FlashPin int  `yaml:"flash_pin"` // 0 = not used. Active HIGH.
	FlashMs  int  `yaml:"flash_ms"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Display    DisplayConfig    `yaml:"display"`
	Permission PermissionConfig `yaml:"permission"`
	Indicator  IndicatorConfig  `yaml:"indicator"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are not a .yaml file directly inside
// a configs/ directory, or that try to climb out of it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the validated configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and fills in defaults.
func (c *Config) Validate() error {
	switch c.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case CameraMock, CameraScreen, CameraWebcam:
	default:
		return fmt.Errorf("unsupported camera.type: %s", c.Camera.Type)
	}
	if c.Camera.Device < 0 {
		return fmt.Errorf("camera.device must be >= 0, got %d", c.Camera.Device)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("camera.width/height must be >= 0, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.Width == 0 {
		c.Camera.Width = 1280
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = 720
	}
	if c.Camera.PreviewFPS < 0 || c.Camera.PreviewFPS > 60 {
		return fmt.Errorf("camera.preview_fps must be between 1 and 60, got %d", c.Camera.PreviewFPS)
	}
	if c.Camera.PreviewFPS == 0 {
		c.Camera.PreviewFPS = 10
	}
	if c.Camera.JPEGQuality < 0 || c.Camera.JPEGQuality > 100 {
		return fmt.Errorf("camera.jpeg_quality must be between 1 and 100, got %d", c.Camera.JPEGQuality)
	}
	if c.Camera.JPEGQuality == 0 {
		c.Camera.JPEGQuality = 85
	}
	if c.Camera.CaptureTimeoutMs <= 0 {
		c.Camera.CaptureTimeoutMs = 5000
	}
	if c.Camera.BindTimeoutMs <= 0 {
		c.Camera.BindTimeoutMs = 5000
	}

	if c.Display.MaxWidth <= 0 {
		c.Display.MaxWidth = 1280
	}
	if c.Display.MaxHeight <= 0 {
		c.Display.MaxHeight = 720
	}

	switch c.Permission.Mode {
	case "":
		c.Permission.Mode = PermissionPrompt
	case PermissionPrompt, PermissionGranted, PermissionDenied:
	default:
		return fmt.Errorf("unsupported permission.mode: %s", c.Permission.Mode)
	}

	if c.Indicator.Enabled && c.Indicator.TallyPin == 0 && c.Indicator.FlashPin == 0 {
		return fmt.Errorf("indicator enabled but neither tally_pin nor flash_pin is set")
	}
	if c.Indicator.TallyPin != 0 && c.Indicator.TallyPin == c.Indicator.FlashPin {
		return fmt.Errorf("indicator tally_pin and flash_pin must differ, both %d", c.Indicator.TallyPin)
	}
	if c.Indicator.FlashMs <= 0 {
		c.Indicator.FlashMs = 80
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// PreviewInterval returns the delay between two live preview frames.
func (c *Config) PreviewInterval() time.Duration {
	if c.Camera.PreviewFPS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Second / time.Duration(c.Camera.PreviewFPS)
}

// CaptureTimeout returns the upper bound for a single still capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Camera.CaptureTimeoutMs) * time.Millisecond
}

// BindTimeout returns the upper bound for starting the live preview.
func (c *Config) BindTimeout() time.Duration {
	return time.Duration(c.Camera.BindTimeoutMs) * time.Millisecond
}

// FlashDuration returns how long the flash LED stays lit per still.
func (c *Config) FlashDuration() time.Duration {
	return time.Duration(c.Indicator.FlashMs) * time.Millisecond
}
