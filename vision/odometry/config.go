package odometry

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/slamfront/rimage/transform"
	"go.viam.com/slamfront/vision/correspondence"
	"go.viam.com/slamfront/vision/features"
	"go.viam.com/slamfront/vision/keypoints"
)

// Config contains the parameters needed to track features and motion across RGB-D frames.
type Config struct {
	Preprocessor  *features.BuilderConfig            `json:"preprocessor"`
	KeyPointCfg   *keypoints.ORBConfig               `json:"kps"`
	MatchingCfg   *correspondence.Config             `json:"correspondence_finder"`
	CamIntrinsics *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters,omitempty"`
}

// DefaultConfig returns a Config without intrinsics; motion is then not estimated.
func DefaultConfig() *Config {
	return &Config{
		Preprocessor: features.DefaultBuilderConfig(),
		KeyPointCfg:  keypoints.DefaultORBConfig(),
		MatchingCfg:  correspondence.DefaultConfig(),
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Preprocessor == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "preprocessor")
	}
	if err := cfg.Preprocessor.Validate(path + ".preprocessor"); err != nil {
		return err
	}
	if cfg.KeyPointCfg == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "kps")
	}
	if err := cfg.KeyPointCfg.Validate(path + ".kps"); err != nil {
		return err
	}
	if cfg.MatchingCfg == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "correspondence_finder")
	}
	if err := cfg.MatchingCfg.Validate(path + ".correspondence_finder"); err != nil {
		return err
	}
	if cfg.CamIntrinsics != nil {
		if err := cfg.CamIntrinsics.CheckValid(); err != nil {
			return utils.NewConfigValidationError(path+".intrinsic_parameters", err)
		}
	}
	return nil
}

// LoadConfig loads a tracking configuration from a json file. Sections that are missing keep
// their defaults.
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig()
	//nolint:gosec
	configFile, err := os.Open(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse odometry config %q", file)
	}
	if err := cfg.Validate(file); err != nil {
		return nil, err
	}
	return cfg, nil
}
