package config

import (
	"fmt"
	"os"
	"strings"
)

// Normalize expands paths, fills blanks with defaults and resolves
// environment fallbacks. It is called by Load and again after flag overrides.
func (c *Config) Normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCamera()
	c.normalizeExtractor()
	c.normalizeCatalog()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DatasetDir) == "" {
		c.Paths.DatasetDir = defaultDatasetDir
	}
	if c.Paths.DatasetDir, err = expandPath(c.Paths.DatasetDir); err != nil {
		return fmt.Errorf("paths.dataset_dir: %w", err)
	}
	if c.Paths.LabelsFile, err = expandPath(strings.TrimSpace(c.Paths.LabelsFile)); err != nil {
		return fmt.Errorf("paths.labels_file: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCamera() {
	c.Camera.Source = strings.ToLower(strings.TrimSpace(c.Camera.Source))
	if c.Camera.Source == "" {
		c.Camera.Source = defaultCameraSource
	}
	c.Camera.Device = strings.TrimSpace(c.Camera.Device)
	if c.Camera.Device == "" {
		c.Camera.Device = defaultCameraDevice
	}
	c.Camera.Format = strings.TrimSpace(c.Camera.Format)
	if c.Video.FPS <= 0 {
		c.Video.FPS = c.Camera.FPS
	}
	if strings.TrimSpace(c.Video.Codec) == "" {
		c.Video.Codec = defaultVideoCodec
	}
}

func (c *Config) normalizeExtractor() {
	if strings.TrimSpace(c.Extractor.Python) == "" {
		c.Extractor.Python = defaultPython
	}
	if strings.TrimSpace(c.Extractor.Script) == "" {
		c.Extractor.Script = defaultExtractorScript
	}
	if strings.TrimSpace(c.Extractor.ReadTimeout) == "" {
		c.Extractor.ReadTimeout = defaultReadTimeout
	}
	if strings.TrimSpace(c.Capture.Countdown) == "" {
		c.Capture.Countdown = defaultCountdown
	}
}

// normalizeCatalog builds a PostgreSQL URL from the environment when one is
// not configured explicitly.
func (c *Config) normalizeCatalog() {
	c.Catalog.URL = strings.TrimSpace(c.Catalog.URL)
	if c.Catalog.URL != "" {
		return
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	c.Catalog.URL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		port,
		os.Getenv("POSTGRES_DB"),
	)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
