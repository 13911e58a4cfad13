package correspondence

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ErrInvalidThreshold is returned for matcher thresholds outside of their valid range.
var ErrInvalidThreshold = errors.New("invalid correspondence threshold")

// NewInvalidThresholdError is used when a threshold of the config at path is out of range.
func NewInvalidThresholdError(path, field string, value float64, want string) error {
	return errors.Wrapf(ErrInvalidThreshold, "%s.%s is %v, must be %s", path, field, value, want)
}

// RatioTest selects whose second best distance a candidate pair is compared against.
type RatioTest string

const (
	// RatioTestFixed compares against the fixed feature's second best moving candidate.
	RatioTestFixed RatioTest = "fixed"
	// RatioTestMoving compares against the moving feature's second best fixed candidate.
	RatioTestMoving RatioTest = "moving"
	// RatioTestBoth requires both comparisons to pass.
	RatioTestBoth RatioTest = "both"
)

// Config holds the thresholds of a Finder.
type Config struct {
	MaximumDescriptorDistance        float64   `json:"maximum_descriptor_distance"`
	MaximumDistanceRatioToSecondBest float64   `json:"maximum_distance_ratio_to_second_best"`
	MinimumMatchingRatio             float64   `json:"minimum_matching_ratio"`
	RatioTest                        RatioTest `json:"ratio_test"`
	Parallel                         bool      `json:"parallel"`
}

// DefaultConfig returns the thresholds used for 256 bit binary descriptors.
func DefaultConfig() *Config {
	return &Config{
		MaximumDescriptorDistance:        50,
		MaximumDistanceRatioToSecondBest: 0.9,
		MinimumMatchingRatio:             0.25,
		RatioTest:                        RatioTestBoth,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if !(cfg.MaximumDescriptorDistance > 0) {
		return NewInvalidThresholdError(path, "maximum_descriptor_distance", cfg.MaximumDescriptorDistance, "> 0")
	}
	if !(cfg.MaximumDistanceRatioToSecondBest > 0 && cfg.MaximumDistanceRatioToSecondBest <= 1) {
		return NewInvalidThresholdError(path, "maximum_distance_ratio_to_second_best",
			cfg.MaximumDistanceRatioToSecondBest, "in (0, 1]")
	}
	if !(cfg.MinimumMatchingRatio >= 0 && cfg.MinimumMatchingRatio <= 1) {
		return NewInvalidThresholdError(path, "minimum_matching_ratio", cfg.MinimumMatchingRatio, "in [0, 1]")
	}
	switch cfg.RatioTest {
	case RatioTestFixed, RatioTestMoving, RatioTestBoth:
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("ratio_test must be one of %q, %q or %q, got %q", RatioTestFixed, RatioTestMoving, RatioTestBoth, cfg.RatioTest))
	}
	return nil
}

// LoadConfig reads a Config from a json file. Missing fields keep their defaults.
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig()
	//nolint:gosec
	configFile, err := os.Open(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse correspondence config %q", file)
	}
	if err := cfg.Validate(file); err != nil {
		return nil, err
	}
	return cfg, nil
}
