package keypoints

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/slamfront/rimage"
)

// ORBConfig contains the parameters / configs needed to compute ORB features.
type ORBConfig struct {
	Layers          int          `json:"n_layers"`
	DownscaleFactor int          `json:"downscale_factor"`
	FastConf        *FASTConfig  `json:"fast"`
	BRIEFConf       *BRIEFConfig `json:"brief"`
}

// DefaultORBConfig returns a single octave ORB setup with the default FAST and BRIEF parameters.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		Layers:          1,
		DownscaleFactor: 2,
		FastConf:        DefaultFASTConfig(),
		BRIEFConf:       DefaultBRIEFConfig(),
	}
}

// LoadORBConfiguration loads a ORBConfig from a json file.
func LoadORBConfiguration(file string) (*ORBConfig, error) {
	var config ORBConfig
	filePath := filepath.Clean(file)
	//nolint:gosec
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.Layers < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_layers should be >= 1"))
	}
	if config.DownscaleFactor <= 1 {
		return utils.NewConfigValidationError(path, errors.New("downscale_factor should be greater than 1"))
	}
	if config.FastConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "fast")
	}
	if config.BRIEFConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "brief")
	}
	if err := config.FastConf.Validate(path + ".fast"); err != nil {
		return err
	}
	return config.BRIEFConf.Validate(path + ".brief")
}

// filterBorderKeypoints drops keypoints closer than margin to the image border, along with
// their orientations.
func filterBorderKeypoints(kps *FASTKeypoints, bounds image.Rectangle, margin int) *FASTKeypoints {
	inner := bounds.Inset(margin)
	filtered := &FASTKeypoints{Points: make(KeyPoints, 0, len(kps.Points))}
	if kps.Orientations != nil {
		filtered.Orientations = make([]float64, 0, len(kps.Points))
	}
	for i, kp := range kps.Points {
		if !kp.In(inner) {
			continue
		}
		filtered.Points = append(filtered.Points, kp)
		if kps.Orientations != nil {
			filtered.Orientations = append(filtered.Orientations, kps.Orientations[i])
		}
	}
	return filtered
}

// ComputeORBKeypoints compute ORB keypoints on gray image. Keypoints are returned in the
// coordinates of the full resolution image, octave by octave. The sample pairs must be shared
// by every image whose descriptors will be compared.
func ComputeORBKeypoints(im *image.Gray, sp *SamplePairs, cfg *ORBConfig) (Descriptors, KeyPoints, error) {
	if cfg.Layers <= 0 {
		return nil, nil, errors.New("number of layers should be > 0")
	}
	if cfg.DownscaleFactor <= 1 {
		return nil, nil, errors.New("downscale factor should be >= 2")
	}
	if sp.N != cfg.BRIEFConf.N {
		return nil, nil, errors.Errorf("sample pairs hold %d samples, BRIEF expects %d", sp.N, cfg.BRIEFConf.N)
	}
	pyramid, err := rimage.GetImagePyramid(im, cfg.DownscaleFactor)
	if err != nil {
		return nil, nil, err
	}
	if len(pyramid.Scales) < cfg.Layers {
		return nil, nil, errors.New("more layers than actual number of octaves in image pyramid")
	}
	orbDescriptors := make(Descriptors, 0)
	orbPoints := make(KeyPoints, 0)
	for i := 0; i < cfg.Layers; i++ {
		currentImage := pyramid.Images[i]
		currentScale := pyramid.Scales[i]
		fastKps := NewFASTKeypointsFromImage(currentImage, cfg.FastConf)
		fastKps = filterBorderKeypoints(fastKps, currentImage.Bounds(), cfg.BRIEFConf.Margin())
		descs, err := ComputeBRIEFDescriptors(currentImage, sp, fastKps, cfg.BRIEFConf)
		if err != nil {
			return nil, nil, err
		}
		orbPoints = append(orbPoints, RescaleKeypoints(fastKps.Points, currentScale)...)
		orbDescriptors = append(orbDescriptors, descs...)
	}
	return orbDescriptors, orbPoints, nil
}
