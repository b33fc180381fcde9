// Package config provides YAML configuration loading for snapstream
// deployments: snapshot cadence, per-camera stream quality, and decode
// worker tuning. The decode core trusts these values as given; validation
// happens here, once, at load time.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Quality selects the camera stream quality requested from a device.
type Quality int

const (
	QualityLow    Quality = 1
	QualityMedium Quality = 2
	QualityHigh   Quality = 3
)

// String returns the lowercase quality name.
func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

func (q Quality) valid() bool {
	return q >= QualityLow && q <= QualityHigh
}

// Config is the full deployment configuration.
type Config struct {
	Camera  CameraConfig  `yaml:"camera"`
	Decoder DecoderConfig `yaml:"decoder"`
}

// CameraConfig carries the per-deployment camera settings.
type CameraConfig struct {
	// FrameIntervalMs is the minimum spacing between forwarded snapshots.
	FrameIntervalMs int `yaml:"frame_interval"`
	// Qualities maps device IDs to their requested stream quality.
	Qualities map[string]Quality `yaml:"camera_qualities"`
	// DefaultQuality applies to devices absent from Qualities.
	DefaultQuality Quality `yaml:"default_quality"`
}

// DecoderConfig tunes the decode worker.
type DecoderConfig struct {
	BufferCapacity   int  `yaml:"buffer_capacity"`
	TakeTimeoutMs    int  `yaml:"take_timeout_ms"`
	JPEGQuality      int  `yaml:"jpeg_quality"`
	SnapshotMaxWidth int  `yaml:"snapshot_max_width"`
	Audio            bool `yaml:"audio"`
	HWAccel          bool `yaml:"hw_accel"`
	DispatchQueue    int  `yaml:"dispatch_queue"`
}

// Defaults returns the configuration used when no file overrides it.
func Defaults() Config {
	return Config{
		Camera: CameraConfig{
			FrameIntervalMs: 2000,
			DefaultQuality:  QualityMedium,
		},
		Decoder: DecoderConfig{
			BufferCapacity: 20,
			TakeTimeoutMs:  200,
			JPEGQuality:    90,
			Audio:          true,
			HWAccel:        true,
			DispatchQueue:  64,
		},
	}
}

// LoadFromFile reads path as YAML over the defaults and validates the
// result.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges. It is called by LoadFromFile; callers
// building a Config in code should call it themselves.
func (c Config) Validate() error {
	if c.Camera.FrameIntervalMs < 0 {
		return fmt.Errorf("config: frame_interval %d must not be negative", c.Camera.FrameIntervalMs)
	}
	if !c.Camera.DefaultQuality.valid() {
		return fmt.Errorf("config: default_quality %d out of range 1..3", int(c.Camera.DefaultQuality))
	}
	for did, q := range c.Camera.Qualities {
		if !q.valid() {
			return fmt.Errorf("config: camera_qualities[%s] = %d out of range 1..3", did, int(q))
		}
	}
	if c.Decoder.BufferCapacity < 0 {
		return fmt.Errorf("config: buffer_capacity %d must not be negative", c.Decoder.BufferCapacity)
	}
	if c.Decoder.TakeTimeoutMs < 0 {
		return fmt.Errorf("config: take_timeout_ms %d must not be negative", c.Decoder.TakeTimeoutMs)
	}
	if c.Decoder.JPEGQuality < 0 || c.Decoder.JPEGQuality > 100 {
		return fmt.Errorf("config: jpeg_quality %d out of range 0..100", c.Decoder.JPEGQuality)
	}
	return nil
}

// FrameInterval returns the snapshot spacing as a duration.
func (c CameraConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// QualityFor returns the stream quality for a device, falling back to the
// default for unknown devices.
func (c CameraConfig) QualityFor(did string) Quality {
	if q, ok := c.Qualities[did]; ok {
		return q
	}
	return c.DefaultQuality
}

// TakeTimeout returns the buffer poll timeout as a duration.
func (c DecoderConfig) TakeTimeout() time.Duration {
	return time.Duration(c.TakeTimeoutMs) * time.Millisecond
}
