package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/rover.control/internal/motion"
)

// DefaultConfigPath is the path to the canonical control defaults file.
const DefaultConfigPath = "config/control.defaults.json"

// Built-in defaults used when a field is absent from the file.
const (
	DefaultCenter                 = 512
	DefaultDeadzone               = 100
	DefaultSignificantSpeedChange = motion.DefaultSignificantSpeedChange
	DefaultArmSpeed               = motion.DefaultArmSpeed
	DefaultCarSpeed               = motion.MaxSpeed
	DefaultOscillationInterval    = time.Second
	DefaultRequestTimeout         = 2 * time.Second
	DefaultCarURL                 = "http://192.168.4.1"
	DefaultSerialPort             = "/dev/serial0"
	DefaultBaudRate               = 115200
)

// ControlConfig holds the operator-tunable settings. Every field is optional;
// the Get* methods supply defaults for anything left out, so partial files
// are safe.
type ControlConfig struct {
	// Stick calibration
	CenterX  *int `json:"center_x,omitempty"`
	CenterY  *int `json:"center_y,omitempty"`
	Deadzone *int `json:"deadzone,omitempty"`

	// Debounce
	SignificantSpeedChange *int `json:"significant_speed_change,omitempty"`
	ArmSpeed               *int `json:"arm_speed,omitempty"`

	// Car
	CarSpeed            *int    `json:"car_speed,omitempty"`
	OscillationInterval *string `json:"oscillation_interval,omitempty"` // duration string like "1s"
	CarURL              *string `json:"car_url,omitempty"`
	RequestTimeout      *string `json:"request_timeout,omitempty"`
	BridgeCar           *bool   `json:"bridge_car,omitempty"`

	// Serial
	SerialPort        *string `json:"serial_port,omitempty"`
	BaudRate          *int    `json:"baud_rate,omitempty"`
	ThumbstickEnabled *bool   `json:"thumbstick_enabled,omitempty"`
}

func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }
func ptrBool(v bool) *bool       { return &v }

// EmptyControlConfig returns a ControlConfig with every field unset.
func EmptyControlConfig() *ControlConfig {
	return &ControlConfig{}
}

// DefaultControlConfig returns a ControlConfig with every field set to its
// built-in default.
func DefaultControlConfig() *ControlConfig {
	return &ControlConfig{
		CenterX:                ptrInt(DefaultCenter),
		CenterY:                ptrInt(DefaultCenter),
		Deadzone:               ptrInt(DefaultDeadzone),
		SignificantSpeedChange: ptrInt(DefaultSignificantSpeedChange),
		ArmSpeed:               ptrInt(DefaultArmSpeed),
		CarSpeed:               ptrInt(DefaultCarSpeed),
		OscillationInterval:    ptrString(DefaultOscillationInterval.String()),
		CarURL:                 ptrString(DefaultCarURL),
		RequestTimeout:         ptrString(DefaultRequestTimeout.String()),
		BridgeCar:              ptrBool(true),
		SerialPort:             ptrString(DefaultSerialPort),
		BaudRate:               ptrInt(DefaultBaudRate),
		ThumbstickEnabled:      ptrBool(false),
	}
}

// LoadControlConfig loads a ControlConfig from a JSON file. The file must
// have a .json extension and be under 1MB. Unknown keys are rejected so a
// typo does not silently fall back to a default.
func LoadControlConfig(path string) (*ControlConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg := EmptyControlConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the working
// directory and its parents. It panics if the file cannot be loaded and is
// intended for test setup.
func MustLoadDefaultConfig() *ControlConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadControlConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid, including that
// the stick calibration leaves room for proportional speed.
func (c *ControlConfig) Validate() error {
	for name, v := range map[string]*int{"center_x": c.CenterX, "center_y": c.CenterY} {
		if v != nil && (*v < 0 || *v > motion.AxisMax) {
			return fmt.Errorf("%s must be between 0 and %d, got %d", name, motion.AxisMax, *v)
		}
	}
	if c.Deadzone != nil && *c.Deadzone < 0 {
		return fmt.Errorf("deadzone must be non-negative, got %d", *c.Deadzone)
	}
	if r := c.AxisParams().MaxRange(); r <= 0 {
		return fmt.Errorf("deadzone %d leaves no usable stick range (max range %d)", c.GetDeadzone(), r)
	}

	if c.SignificantSpeedChange != nil && *c.SignificantSpeedChange < 1 {
		return fmt.Errorf("significant_speed_change must be at least 1, got %d", *c.SignificantSpeedChange)
	}
	if c.ArmSpeed != nil && (*c.ArmSpeed < 1 || *c.ArmSpeed > motion.MaxSpeed) {
		return fmt.Errorf("arm_speed must be between 1 and %d, got %d", motion.MaxSpeed, *c.ArmSpeed)
	}
	if c.CarSpeed != nil && (*c.CarSpeed < 0 || *c.CarSpeed > motion.MaxSpeed) {
		return fmt.Errorf("car_speed must be between 0 and %d, got %d", motion.MaxSpeed, *c.CarSpeed)
	}

	for name, v := range map[string]*string{"oscillation_interval": c.OscillationInterval, "request_timeout": c.RequestTimeout} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.CarURL != nil {
		u, err := url.Parse(*c.CarURL)
		if err != nil {
			return fmt.Errorf("invalid car_url %q: %w", *c.CarURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("car_url must be an absolute http(s) URL, got %q", *c.CarURL)
		}
	}

	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	return nil
}

// AxisParams returns the stick calibration.
func (c *ControlConfig) AxisParams() motion.AxisParams {
	return motion.AxisParams{CenterX: c.GetCenterX(), CenterY: c.GetCenterY(), Deadzone: c.GetDeadzone()}
}

// DebounceConfig returns the debounce thresholds.
func (c *ControlConfig) DebounceConfig() motion.DebounceConfig {
	return motion.DebounceConfig{SignificantSpeedChange: c.GetSignificantSpeedChange(), ArmSpeed: c.GetArmSpeed()}
}

// GetCenterX returns the center_x value or the default.
func (c *ControlConfig) GetCenterX() int {
	if c.CenterX == nil {
		return DefaultCenter
	}
	return *c.CenterX
}

// GetCenterY returns the center_y value or the default.
func (c *ControlConfig) GetCenterY() int {
	if c.CenterY == nil {
		return DefaultCenter
	}
	return *c.CenterY
}

// GetDeadzone returns the deadzone value or the default.
func (c *ControlConfig) GetDeadzone() int {
	if c.Deadzone == nil {
		return DefaultDeadzone
	}
	return *c.Deadzone
}

// GetSignificantSpeedChange returns the significant_speed_change value or the default.
func (c *ControlConfig) GetSignificantSpeedChange() int {
	if c.SignificantSpeedChange == nil {
		return DefaultSignificantSpeedChange
	}
	return *c.SignificantSpeedChange
}

// GetArmSpeed returns the arm_speed value or the default.
func (c *ControlConfig) GetArmSpeed() int {
	if c.ArmSpeed == nil {
		return DefaultArmSpeed
	}
	return *c.ArmSpeed
}

// GetCarSpeed returns the car_speed value or the default.
func (c *ControlConfig) GetCarSpeed() int {
	if c.CarSpeed == nil {
		return DefaultCarSpeed
	}
	return *c.CarSpeed
}

// GetOscillationInterval parses and returns the oscillation_interval.
func (c *ControlConfig) GetOscillationInterval() time.Duration {
	return parseDurationOr(c.OscillationInterval, DefaultOscillationInterval)
}

// GetRequestTimeout parses and returns the request_timeout.
func (c *ControlConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, DefaultRequestTimeout)
}

// GetCarURL returns the car_url value or the default.
func (c *ControlConfig) GetCarURL() string {
	if c.CarURL == nil || *c.CarURL == "" {
		return DefaultCarURL
	}
	return *c.CarURL
}

// GetBridgeCar returns the bridge_car value or the default.
func (c *ControlConfig) GetBridgeCar() bool {
	if c.BridgeCar == nil {
		return true
	}
	return *c.BridgeCar
}

// GetSerialPort returns the serial_port value or the default.
func (c *ControlConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return DefaultSerialPort
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *ControlConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return DefaultBaudRate
	}
	return *c.BaudRate
}

// GetThumbstickEnabled returns the thumbstick_enabled value or the default.
func (c *ControlConfig) GetThumbstickEnabled() bool {
	if c.ThumbstickEnabled == nil {
		return false
	}
	return *c.ThumbstickEnabled
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
