package features

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// BuilderConfig selects the images a Builder fuses and how raw depth maps to meters.
type BuilderConfig struct {
	TopicRGB                   string  `json:"topic_rgb"`
	TopicDepth                 string  `json:"topic_depth"`
	DepthScalingFactorToMeters float64 `json:"depth_scaling_factor_to_meters"`
}

// DefaultBuilderConfig returns the topics of a typical RGB-D driver with millimeter depth.
func DefaultBuilderConfig() *BuilderConfig {
	return &BuilderConfig{
		TopicRGB:                   "/camera/rgb/image_color",
		TopicDepth:                 "/camera/depth/image",
		DepthScalingFactorToMeters: 1e-3,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *BuilderConfig) Validate(path string) error {
	if cfg.TopicRGB == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "topic_rgb")
	}
	if cfg.TopicDepth == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "topic_depth")
	}
	if cfg.TopicRGB == cfg.TopicDepth {
		return utils.NewConfigValidationError(path, errors.New("topic_rgb and topic_depth must differ"))
	}
	if cfg.DepthScalingFactorToMeters <= 0 {
		return utils.NewConfigValidationError(path, errors.New("depth_scaling_factor_to_meters must be positive"))
	}
	return nil
}

// LoadBuilderConfig reads a BuilderConfig from a json file. Missing fields keep their defaults.
func LoadBuilderConfig(file string) (*BuilderConfig, error) {
	cfg := DefaultBuilderConfig()
	//nolint:gosec
	configFile, err := os.Open(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse builder config %q", file)
	}
	if err := cfg.Validate(file); err != nil {
		return nil, err
	}
	return cfg, nil
}
