package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains dataset and auxiliary file locations.
type Paths struct {
	DatasetDir string `toml:"dataset_dir"`
	LabelsFile string `toml:"labels_file"`
	LogDir     string `toml:"log_dir"`
}

// Capture holds the sequence shape and session timing.
type Capture struct {
	SequenceLength  int    `toml:"sequence_length"`
	MinLength       int    `toml:"min_length"`
	KeypointDim     int    `toml:"keypoint_dim"`
	DefaultTarget   int    `toml:"default_target"`
	Countdown       string `toml:"countdown"`
	MaxReadFailures int    `toml:"max_read_failures"`
}

// Camera selects and configures the frame source.
type Camera struct {
	// Source is "ffmpeg" or "opencv" (the latter requires the opencv build tag).
	Source string `toml:"source"`
	// Device is a V4L2 path, an OpenCV camera index, or a video file.
	Device string `toml:"device"`
	Format string `toml:"format"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	FPS    int    `toml:"fps"`
	Mirror bool   `toml:"mirror"`
}

// Extractor configures the landmark extraction worker.
type Extractor struct {
	Python            string  `toml:"python"`
	Script            string  `toml:"script"`
	ReadTimeout       string  `toml:"read_timeout"`
	MinDetection      float64 `toml:"min_detection_confidence"`
	MinTracking       float64 `toml:"min_tracking_confidence"`
	AnnotateLandmarks bool    `toml:"annotate_landmarks"`
}

// Video configures the optional per-label video artifact.
type Video struct {
	Codec string `toml:"codec"`
	FPS   int    `toml:"fps"`
}

// Catalog selects where capture attempts are journaled. An empty URL uses
// the SQLite file inside the dataset directory.
type Catalog struct {
	URL      string `toml:"url"`
	Disabled bool   `toml:"disabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for signcap.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Capture   Capture   `toml:"capture"`
	Camera    Camera    `toml:"camera"`
	Extractor Extractor `toml:"extractor"`
	Video     Video     `toml:"video"`
	Catalog   Catalog   `toml:"catalog"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: defaults are used and exists reports false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("signcap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// CountdownDuration returns the parsed pre-sequence countdown.
func (c *Config) CountdownDuration() time.Duration {
	d, _ := time.ParseDuration(c.Capture.Countdown)
	return d
}

// ReadTimeout returns the parsed per-frame extractor timeout.
func (c *Config) ReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Extractor.ReadTimeout)
	return d
}

// CatalogPath is the SQLite journal used when no catalog URL is configured.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DatasetDir, ".signcap.sqlite")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for flag values.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
