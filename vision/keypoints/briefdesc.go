package keypoints

import (
	"encoding/json"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/slamfront/rimage"
	"go.viam.com/slamfront/utils/matrix"
)

// SamplingType stores 0 if a sampling of image points for BRIEF is uniform, 1 if gaussian.
type SamplingType int

const (
	uniform SamplingType = iota // 0
	normal                      // 1
	fixed                       // 2
)

// UnmarshalJSON accepts either the integer value or one of "uniform", "normal" and "fixed".
func (s *SamplingType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var v int
		if err := json.Unmarshal(data, &v); err != nil {
			return errors.Wrap(err, "sampling must be a string or an integer")
		}
		*s = SamplingType(v)
		return nil
	}
	switch strings.ToLower(name) {
	case "uniform":
		*s = uniform
	case "normal", "gaussian":
		*s = normal
	case "fixed":
		*s = fixed
	default:
		return errors.Errorf("unknown sampling %q", name)
	}
	return nil
}

// SamplePairs are N pairs of points used to create the BRIEF Descriptors of a patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs generates n samples for a patch size with the chosen Sampling Type.
func GenerateSamplePairs(dist SamplingType, n, patchSize int) *SamplePairs {
	var xs0, ys0, xs1, ys1 []int
	if dist == fixed {
		xs0 = sampleIntegers(patchSize, n, dist)
		// shift the other sequences so the pairs are not all on the diagonal
		ys0 = rotateInts(sampleIntegers(patchSize, n, dist), n/3+1)
		xs1 = rotateInts(sampleIntegers(patchSize, n, dist), 2*n/3+1)
		for i := 0; i < n; i++ {
			ys1 = append(ys1, -ys0[i])
			if i%2 == 0 {
				xs0[i] = 2 * xs0[i] / 3
				xs1[i] = -2 * xs1[i] / 3
				ys1[i] = ys0[i]
			}
		}
	} else {
		xs0 = sampleIntegers(patchSize, n, dist)
		ys0 = sampleIntegers(patchSize, n, dist)
		xs1 = sampleIntegers(patchSize, n, dist)
		ys1 = sampleIntegers(patchSize, n, dist)
	}
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: xs0[i], Y: ys0[i]})
		p1 = append(p1, image.Point{X: xs1[i], Y: ys1[i]})
	}

	return &SamplePairs{P0: p0, P1: p1, N: n}
}

func rotateInts(s []int, k int) []int {
	if len(s) == 0 {
		return s
	}
	k %= len(s)
	out := make([]int, 0, len(s))
	return append(append(out, s[k:]...), s[:k]...)
}

func sampleIntegers(patchSize, n int, sampling SamplingType) []int {
	vMin := math.Round(-(float64(patchSize) - 2) / 2.)
	vMax := math.Round(float64(patchSize) / 2.)
	switch sampling {
	case uniform:
		return matrix.SampleNIntegersUniform(n, vMin, vMax)
	case normal:
		return matrix.SampleNIntegersNormal(n, vMin, vMax)
	case fixed:
		return matrix.SampleNRegularlySpaced(n, vMin, vMax)
	default:
		return matrix.SampleNIntegersUniform(n, vMin, vMax)
	}
}

// BRIEFConfig stores the parameters.
type BRIEFConfig struct {
	N              int          `json:"n"` // number of samples taken
	Sampling       SamplingType `json:"sampling"`
	UseOrientation bool         `json:"use_orientation"`
	PatchSize      int          `json:"patch_size"`
}

// DefaultBRIEFConfig returns a 256 bit, orientation aware BRIEF setup with a deterministic pattern.
func DefaultBRIEFConfig() *BRIEFConfig {
	return &BRIEFConfig{
		N:              256,
		Sampling:       fixed,
		UseOrientation: true,
		PatchSize:      48,
	}
}

// Validate ensures all parts of the BRIEFConfig are valid.
func (config *BRIEFConfig) Validate(path string) error {
	if config.N <= 0 || config.N%64 != 0 {
		return utils.NewConfigValidationError(path, errors.New("n should be a positive multiple of 64"))
	}
	if config.PatchSize < 4 {
		return utils.NewConfigValidationError(path, errors.New("patch_size should be >= 4"))
	}
	return nil
}

// Margin is the distance to the image border under which a keypoint's rotated sampling
// pattern could leave the image.
func (config *BRIEFConfig) Margin() int {
	half := float64(config.PatchSize) / 2
	if config.UseOrientation {
		return int(math.Ceil(half*math.Sqrt2)) + 1
	}
	return int(half) + 1
}

// LoadBRIEFConfiguration loads a BRIEFConfig from a json file.
func LoadBRIEFConfiguration(file string) (*BRIEFConfig, error) {
	var config BRIEFConfig
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

// ComputeBRIEFDescriptors computes BRIEF descriptors on image img at keypoints kps.
func ComputeBRIEFDescriptors(img *image.Gray, sp *SamplePairs, kps *FASTKeypoints, cfg *BRIEFConfig) (Descriptors, error) {
	if kps.Orientations != nil && len(kps.Orientations) != len(kps.Points) {
		return nil, errors.Errorf("got %d orientations for %d keypoints", len(kps.Orientations), len(kps.Points))
	}
	// blur image
	kernel := rimage.GetGaussian5()
	normalized := kernel.Normalize()
	blurred, err := rimage.ConvolveGray(img, normalized, image.Point{2, 2}, rimage.BorderReflect)
	if err != nil {
		return nil, err
	}

	descs := make(Descriptors, len(kps.Points))
	for k, kp := range kps.Points {
		// Divide by 64 since we store a descriptor as a uint64 array.
		descriptor := make(Descriptor, sp.N/64)
		cosTheta := 1.0
		sinTheta := 0.0
		// if use orientation and keypoints are oriented, compute rotation matrix
		if cfg.UseOrientation && kps.Orientations != nil {
			angle := kps.Orientations[k]
			cosTheta = math.Cos(angle)
			sinTheta = math.Sin(angle)
		}
		for i := 0; i < sp.N; i++ {
			x0, y0 := float64(sp.P0[i].X), float64(sp.P0[i].Y)
			x1, y1 := float64(sp.P1[i].X), float64(sp.P1[i].Y)
			// compute rotated sampled coordinates (Identity matrix if no orientation s)
			outx0 := int(math.Round(cosTheta*x0 - sinTheta*y0))
			outy0 := int(math.Round(sinTheta*x0 + cosTheta*y0))
			outx1 := int(math.Round(cosTheta*x1 - sinTheta*y1))
			outy1 := int(math.Round(sinTheta*x1 + cosTheta*y1))
			// out of bounds samples read as black
			p0Val := blurred.GrayAt(kp.X+outx0, kp.Y+outy0).Y
			p1Val := blurred.GrayAt(kp.X+outx1, kp.Y+outy1).Y
			if p0Val > p1Val {
				descriptor[i/64] |= 1 << (i % 64)
			}
		}
		descs[k] = descriptor
	}
	return descs, nil
}
