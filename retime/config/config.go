package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/RyanBlaney/sonido-sync/algorithms/common"
	"github.com/RyanBlaney/sonido-sync/algorithms/stats"
	"github.com/RyanBlaney/sonido-sync/algorithms/windowing"
)

// ErrInvalidConfig is returned by Validate for out-of-range options.
var ErrInvalidConfig = errors.New("invalid retime config")

// EnvPrefix prefixes every environment variable LoadFromEnv reads.
const EnvPrefix = "SONIDO_SYNC_"

// Config configures one alignment run. Build it once and pass it to the engine.
type Config struct {
	// Feature extraction
	FrameLengthMs      float64 `json:"frame_length_ms"`
	HopLengthMs        float64 `json:"hop_length_ms"`
	NumCoefficients    int     `json:"n_coefficients"`
	AnalysisSampleRate int     `json:"analysis_sample_rate"`
	NumMelFilters      int     `json:"n_mel_filters"`
	PreEmphasis        float64 `json:"pre_emphasis"`
	NormalizeFeatures  bool    `json:"normalize_features"` // cepstral mean normalisation
	DeltaOrder         int     `json:"delta_order"`        // 0, 1 (deltas) or 2 (deltas + delta-deltas)
	WindowType         string  `json:"window_type"`

	// Alignment
	DistanceMetric   string  `json:"distance_metric"`
	BandRadius       int     `json:"band_radius"`        // frames; negative = full matrix
	MaxDurationRatio float64 `json:"max_duration_ratio"` // 0 disables the check

	// Time map and resampling
	InterpolationOrder string `json:"interpolation_order"`
	StrictRange        bool   `json:"strict_range"`
	AnchorEndpoints    bool   `json:"anchor_endpoints"`

	// Input handling
	Downmix bool `json:"downmix"`
}

// DefaultConfig returns the defaults for speech alignment
func DefaultConfig() Config {
	return Config{
		FrameLengthMs:      25,
		HopLengthMs:        10,
		NumCoefficients:    13,
		AnalysisSampleRate: 16000,
		NumMelFilters:      26,
		PreEmphasis:        0.97,
		NormalizeFeatures:  true,
		DeltaOrder:         0,
		WindowType:         windowing.Hamming.String(),

		DistanceMetric:   stats.EuclideanDistance.String(),
		BandRadius:       -1,
		MaxDurationRatio: 4.0,

		InterpolationOrder: common.Linear.String(),
		StrictRange:        false,
		AnchorEndpoints:    true,

		Downmix: true,
	}
}

// Validate checks every option and returns an error wrapping ErrInvalidConfig
func (c Config) Validate() error {
	switch {
	case c.FrameLengthMs <= 0:
		return errors.Wrapf(ErrInvalidConfig, "frame_length_ms must be positive, got %g", c.FrameLengthMs)
	case c.HopLengthMs <= 0:
		return errors.Wrapf(ErrInvalidConfig, "hop_length_ms must be positive, got %g", c.HopLengthMs)
	case c.FrameLengthMs < c.HopLengthMs:
		return errors.Wrapf(ErrInvalidConfig, "frame_length_ms (%g) must be >= hop_length_ms (%g)", c.FrameLengthMs, c.HopLengthMs)
	case c.NumCoefficients <= 0:
		return errors.Wrapf(ErrInvalidConfig, "n_coefficients must be positive, got %d", c.NumCoefficients)
	case c.AnalysisSampleRate <= 0:
		return errors.Wrapf(ErrInvalidConfig, "analysis_sample_rate must be positive, got %d", c.AnalysisSampleRate)
	case c.NumMelFilters < c.NumCoefficients:
		return errors.Wrapf(ErrInvalidConfig, "n_mel_filters (%d) must be >= n_coefficients (%d)", c.NumMelFilters, c.NumCoefficients)
	case c.PreEmphasis < 0 || c.PreEmphasis >= 1:
		return errors.Wrapf(ErrInvalidConfig, "pre_emphasis must be in [0, 1), got %g", c.PreEmphasis)
	case c.DeltaOrder < 0 || c.DeltaOrder > 2:
		return errors.Wrapf(ErrInvalidConfig, "delta_order must be 0, 1 or 2, got %d", c.DeltaOrder)
	case c.MaxDurationRatio != 0 && c.MaxDurationRatio < 1:
		return errors.Wrapf(ErrInvalidConfig, "max_duration_ratio must be 0 or >= 1, got %g", c.MaxDurationRatio)
	}

	if frameSamples := c.FrameLengthMs * float64(c.AnalysisSampleRate) / 1000; frameSamples < 2 {
		return errors.Wrapf(ErrInvalidConfig, "frame_length_ms %g is shorter than two samples at %d Hz", c.FrameLengthMs, c.AnalysisSampleRate)
	}

	if _, err := c.Metric(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if _, err := c.Interpolation(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if _, err := c.Window(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// Metric resolves DistanceMetric
func (c Config) Metric() (stats.DistanceMetric, error) {
	return stats.ParseDistanceMetric(c.DistanceMetric)
}

// Interpolation resolves InterpolationOrder
func (c Config) Interpolation() (common.InterpolationType, error) {
	return common.ParseInterpolation(c.InterpolationOrder)
}

// Window resolves WindowType
func (c Config) Window() (windowing.Type, error) {
	return windowing.ParseType(c.WindowType)
}

// LoadFromEnv starts from DefaultConfig, loads the given dotenv files (or
// ./.env when none are given) and overlays SONIDO_SYNC_* variables. A missing
// default .env is not an error; a missing explicit file is.
func LoadFromEnv(paths ...string) (Config, error) {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(); err != nil {
				return Config{}, errors.Wrap(err, "failed to load .env")
			}
		}
	} else if err := godotenv.Load(paths...); err != nil {
		return Config{}, errors.Wrapf(err, "failed to load env files %v", paths)
	}

	cfg := DefaultConfig()
	env := &envReader{}

	cfg.FrameLengthMs = env.getFloatEnvOrDefault("FRAME_LENGTH_MS", cfg.FrameLengthMs)
	cfg.HopLengthMs = env.getFloatEnvOrDefault("HOP_LENGTH_MS", cfg.HopLengthMs)
	cfg.NumCoefficients = env.getIntEnvOrDefault("N_COEFFICIENTS", cfg.NumCoefficients)
	cfg.AnalysisSampleRate = env.getIntEnvOrDefault("ANALYSIS_SAMPLE_RATE", cfg.AnalysisSampleRate)
	cfg.NumMelFilters = env.getIntEnvOrDefault("N_MEL_FILTERS", cfg.NumMelFilters)
	cfg.PreEmphasis = env.getFloatEnvOrDefault("PRE_EMPHASIS", cfg.PreEmphasis)
	cfg.NormalizeFeatures = env.getBoolEnvOrDefault("NORMALIZE_FEATURES", cfg.NormalizeFeatures)
	cfg.DeltaOrder = env.getIntEnvOrDefault("DELTA_ORDER", cfg.DeltaOrder)
	cfg.WindowType = getEnvOrDefault("WINDOW_TYPE", cfg.WindowType)

	cfg.DistanceMetric = getEnvOrDefault("DISTANCE_METRIC", cfg.DistanceMetric)
	cfg.BandRadius = env.getIntEnvOrDefault("BAND_RADIUS", cfg.BandRadius)
	cfg.MaxDurationRatio = env.getFloatEnvOrDefault("MAX_DURATION_RATIO", cfg.MaxDurationRatio)

	cfg.InterpolationOrder = getEnvOrDefault("INTERPOLATION_ORDER", cfg.InterpolationOrder)
	cfg.StrictRange = env.getBoolEnvOrDefault("STRICT_RANGE", cfg.StrictRange)
	cfg.AnchorEndpoints = env.getBoolEnvOrDefault("ANCHOR_ENDPOINTS", cfg.AnchorEndpoints)

	cfg.Downmix = env.getBoolEnvOrDefault("DOWNMIX", cfg.Downmix)

	if len(env.invalid) > 0 {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "unparsable environment values: %s", strings.Join(env.invalid, ", "))
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and records the ones that do not parse
type envReader struct {
	invalid []string
}

func (r *envReader) reject(key, value string) {
	r.invalid = append(r.invalid, fmt.Sprintf("%s%s=%q", EnvPrefix, key, value))
}

func (r *envReader) getIntEnvOrDefault(key string, defaultValue int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		r.reject(key, value)
		return defaultValue
	}
	return intVal
}

func (r *envReader) getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.reject(key, value)
		return defaultValue
	}
	return floatVal
}

func (r *envReader) getBoolEnvOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		r.reject(key, value)
		return defaultValue
	}
	return boolVal
}
