package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateExtractor(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCapture() error {
	if c.Capture.SequenceLength < 1 {
		return fmt.Errorf("capture.sequence_length must be >= 1, got %d", c.Capture.SequenceLength)
	}
	if c.Capture.MinLength < 1 || c.Capture.MinLength > c.Capture.SequenceLength {
		return fmt.Errorf("capture.min_length must be between 1 and sequence_length (%d), got %d",
			c.Capture.SequenceLength, c.Capture.MinLength)
	}
	if c.Capture.KeypointDim < 1 {
		return fmt.Errorf("capture.keypoint_dim must be >= 1, got %d", c.Capture.KeypointDim)
	}
	if c.Capture.DefaultTarget < 1 {
		return fmt.Errorf("capture.default_target must be >= 1, got %d", c.Capture.DefaultTarget)
	}
	d, err := time.ParseDuration(c.Capture.Countdown)
	if err != nil {
		return fmt.Errorf("capture.countdown: invalid duration %q (use '1s', '500ms')", c.Capture.Countdown)
	}
	if d < 0 {
		return errors.New("capture.countdown must not be negative")
	}
	if c.Capture.MaxReadFailures < 1 {
		return fmt.Errorf("capture.max_read_failures must be >= 1, got %d", c.Capture.MaxReadFailures)
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch c.Camera.Source {
	case "ffmpeg", "opencv":
	default:
		return fmt.Errorf("camera.source: unsupported value %q (want ffmpeg or opencv)", c.Camera.Source)
	}
	if c.Camera.FPS < 1 {
		return fmt.Errorf("camera.fps must be >= 1, got %d", c.Camera.FPS)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return errors.New("camera.width and camera.height must not be negative")
	}
	return nil
}

func (c *Config) validateExtractor() error {
	d, err := time.ParseDuration(c.Extractor.ReadTimeout)
	if err != nil {
		return fmt.Errorf("extractor.read_timeout: invalid duration %q", c.Extractor.ReadTimeout)
	}
	if d <= 0 {
		return errors.New("extractor.read_timeout must be positive")
	}
	for name, v := range map[string]float64{
		"extractor.min_detection_confidence": c.Extractor.MinDetection,
		"extractor.min_tracking_confidence":  c.Extractor.MinTracking,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0, got %f", name, v)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
