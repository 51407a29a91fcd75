package config

const (
	defaultConfigPath      = "~/.config/signcap/config.toml"
	defaultDatasetDir      = "dataset"
	defaultLabelsFile      = "labels.txt"
	defaultSequenceLength  = 35
	defaultMinLength       = 10
	defaultKeypointDim     = 258
	defaultTarget          = 30
	defaultCountdown       = "1s"
	defaultMaxReadFailures = 30
	defaultCameraSource    = "ffmpeg"
	defaultCameraDevice    = "/dev/video0"
	defaultCameraFormat    = "mjpeg"
	defaultCameraWidth     = 1280
	defaultCameraHeight    = 720
	defaultCameraFPS       = 30
	defaultPython          = "python3"
	defaultExtractorScript = "python/keypoint_worker.py"
	defaultReadTimeout     = "30s"
	defaultVideoCodec      = "libx264"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DatasetDir: defaultDatasetDir,
			LabelsFile: defaultLabelsFile,
		},
		Capture: Capture{
			SequenceLength:  defaultSequenceLength,
			MinLength:       defaultMinLength,
			KeypointDim:     defaultKeypointDim,
			DefaultTarget:   defaultTarget,
			Countdown:       defaultCountdown,
			MaxReadFailures: defaultMaxReadFailures,
		},
		Camera: Camera{
			Source: defaultCameraSource,
			Device: defaultCameraDevice,
			Format: defaultCameraFormat,
			Width:  defaultCameraWidth,
			Height: defaultCameraHeight,
			FPS:    defaultCameraFPS,
			Mirror: true,
		},
		Extractor: Extractor{
			Python:            defaultPython,
			Script:            defaultExtractorScript,
			ReadTimeout:       defaultReadTimeout,
			MinDetection:      0.5,
			MinTracking:       0.5,
			AnnotateLandmarks: true,
		},
		Video: Video{
			Codec: defaultVideoCodec,
			FPS:   defaultCameraFPS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
