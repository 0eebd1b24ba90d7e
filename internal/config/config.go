// Package config provides configuration management for the VoxReel Agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".voxreel"

	// Environment variable names
	EnvPort     = "VOXREEL_PORT"
	EnvLogLevel = "VOXREEL_LOG_LEVEL"
	EnvDataDir  = "VOXREEL_DATA_DIR"
	EnvHeadless = "VOXREEL_HEADLESS"

	// Toolchain environment variable names
	EnvFFmpegPath  = "VOXREEL_FFMPEG"
	EnvFFprobePath = "VOXREEL_FFPROBE"

	// Collaborator environment variable names
	EnvSpeechURL    = "VOXREEL_SPEECH_URL"
	EnvSpeechToken  = "VOXREEL_SPEECH_TOKEN"
	EnvCaptionsURL  = "VOXREEL_CAPTIONS_URL"
	EnvCaptionToken = "VOXREEL_CAPTIONS_TOKEN"

	// Export environment variable names
	EnvPreprocessConcurrency = "VOXREEL_PREPROCESS_CONCURRENCY"
	EnvRetryAttempts         = "VOXREEL_RETRY_ATTEMPTS"
	EnvRetryBackoff          = "VOXREEL_RETRY_BACKOFF"
	EnvBestEffort            = "VOXREEL_BEST_EFFORT"
	EnvMaxConcurrentEncodes  = "VOXREEL_MAX_CONCURRENT_ENCODES"
	EnvDefaultPreset         = "VOXREEL_DEFAULT_PRESET"
	EnvNarrationGain         = "VOXREEL_NARRATION_GAIN"
	EnvMusicReduction        = "VOXREEL_MUSIC_REDUCTION"

	// Database filename
	DBFilename = "voxreel.db"

	// Export defaults
	DefaultFFmpegPath            = "ffmpeg"
	DefaultFFprobePath           = "ffprobe"
	DefaultPreprocessConcurrency = 4
	DefaultRetryAttempts         = 3
	DefaultRetryBackoff          = 500 * time.Millisecond
	DefaultMaxConcurrentEncodes  = 1
	DefaultPreset                = PresetStandard
	DefaultOriginalVolume        = 1.0
	DefaultNarrationGain         = 1.5
	DefaultMusicReduction        = 0.3

	// Timeouts
	DefaultDoctorTimeout  = 10 * time.Second
	DefaultProbeTimeout   = 30 * time.Second
	DefaultSpeechTimeout  = 2 * time.Minute
	DefaultCaptionTimeout = time.Minute
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ArtifactsDir() string
	WorkDir() string
	ExportsDir() string
	Headless() bool
	FFmpegPath() string
	FFprobePath() string
	SpeechURL() string
	SpeechToken() string
	CaptionsURL() string
	CaptionsToken() string
	PreprocessConcurrency() int
	RetryAttempts() int
	RetryBackoff() time.Duration
	BestEffort() bool
	MaxConcurrentEncodes() int
	DefaultPreset() Preset
	NarrationGain() float64
	MusicReduction() float64
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	ffmpegPath  string
	ffprobePath string

	speechURL     string
	speechToken   string
	captionsURL   string
	captionsToken string

	preprocessConcurrency int
	retryAttempts         int
	retryBackoff          time.Duration
	bestEffort            bool
	maxConcurrentEncodes  int
	defaultPreset         Preset
	narrationGain         float64
	musicReduction        float64
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:                  DefaultPort,
		logLevel:              DefaultLogLevel,
		dataDir:               defaultDataDir(),
		ffmpegPath:            DefaultFFmpegPath,
		ffprobePath:           DefaultFFprobePath,
		preprocessConcurrency: DefaultPreprocessConcurrency,
		retryAttempts:         DefaultRetryAttempts,
		retryBackoff:          DefaultRetryBackoff,
		bestEffort:            true,
		maxConcurrentEncodes:  DefaultMaxConcurrentEncodes,
		defaultPreset:         DefaultPreset,
		narrationGain:         DefaultNarrationGain,
		musicReduction:        DefaultMusicReduction,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if v := os.Getenv(EnvHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = b
	}

	if v := os.Getenv(EnvFFmpegPath); v != "" {
		cfg.ffmpegPath = v
	}
	if v := os.Getenv(EnvFFprobePath); v != "" {
		cfg.ffprobePath = v
	}

	cfg.speechURL = strings.TrimRight(os.Getenv(EnvSpeechURL), "/")
	cfg.speechToken = os.Getenv(EnvSpeechToken)
	cfg.captionsURL = strings.TrimRight(os.Getenv(EnvCaptionsURL), "/")
	cfg.captionsToken = os.Getenv(EnvCaptionToken)

	var err error
	if cfg.preprocessConcurrency, err = positiveInt(EnvPreprocessConcurrency, cfg.preprocessConcurrency); err != nil {
		return nil, err
	}
	if cfg.retryAttempts, err = positiveInt(EnvRetryAttempts, cfg.retryAttempts); err != nil {
		return nil, err
	}
	if cfg.maxConcurrentEncodes, err = positiveInt(EnvMaxConcurrentEncodes, cfg.maxConcurrentEncodes); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvRetryBackoff); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRetryBackoff, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", EnvRetryBackoff)
		}
		cfg.retryBackoff = d
	}

	if v := os.Getenv(EnvBestEffort); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvBestEffort, err)
		}
		cfg.bestEffort = b
	}

	if v := os.Getenv(EnvDefaultPreset); v != "" {
		p, err := ParsePreset(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvDefaultPreset, err)
		}
		cfg.defaultPreset = p
	}

	if cfg.narrationGain, err = nonNegativeFloat(EnvNarrationGain, cfg.narrationGain); err != nil {
		return nil, err
	}
	if cfg.musicReduction, err = nonNegativeFloat(EnvMusicReduction, cfg.musicReduction); err != nil {
		return nil, err
	}

	return cfg, nil
}

func positiveInt(env string, def int) (int, error) {
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", env, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s: must be at least 1", env)
	}
	return n, nil
}

func nonNegativeFloat(env string, def float64) (float64, error) {
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", env, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", env)
	}
	return f, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ArtifactsDir holds synthesized narration audio and caption files.
func (c *EnvConfig) ArtifactsDir() string {
	return filepath.Join(c.dataDir, "artifacts")
}

// WorkDir is the parent of per-job scratch directories.
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

// ExportsDir is the default destination for finished exports.
func (c *EnvConfig) ExportsDir() string {
	return filepath.Join(c.dataDir, "exports")
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) SpeechURL() string {
	return c.speechURL
}

func (c *EnvConfig) SpeechToken() string {
	return c.speechToken
}

func (c *EnvConfig) CaptionsURL() string {
	return c.captionsURL
}

func (c *EnvConfig) CaptionsToken() string {
	return c.captionsToken
}

func (c *EnvConfig) PreprocessConcurrency() int {
	return c.preprocessConcurrency
}

func (c *EnvConfig) RetryAttempts() int {
	return c.retryAttempts
}

func (c *EnvConfig) RetryBackoff() time.Duration {
	return c.retryBackoff
}

// BestEffort reports whether a narration segment that still fails after
// retries is skipped instead of failing the export.
func (c *EnvConfig) BestEffort() bool {
	return c.bestEffort
}

func (c *EnvConfig) MaxConcurrentEncodes() int {
	return c.maxConcurrentEncodes
}

func (c *EnvConfig) DefaultPreset() Preset {
	return c.defaultPreset
}

func (c *EnvConfig) NarrationGain() float64 {
	return c.narrationGain
}

func (c *EnvConfig) MusicReduction() float64 {
	return c.musicReduction
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
