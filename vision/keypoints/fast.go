package keypoints

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

type (
	// PixelType stores 0 if a pixel is darker than center pixel, and 1 if brighter.
	PixelType int
	// FASTPixel stores coordinates of an image point in a neighborhood and its PixelType.
	FASTPixel struct {
		Point image.Point
		Type  PixelType
	}

	// FASTKeypoints stores keypoint locations and orientations (nil if not oriented).
	FASTKeypoints OrientedKeypoints
)

const (
	darker PixelType = iota
	brighter
)

// fastBorder is the radius of the Bresenham circle; no corner is reported closer to the image edge.
const fastBorder = 3

var (
	// CrossIdx contains the neighbors coordinates in a 3-cross neighborhood.
	CrossIdx = []image.Point{{3, 0}, {0, 3}, {-3, 0}, {0, -3}}
	// CircleIdx contains the neighbors coordinates of the 16 pixel Bresenham circle of radius 3,
	// clockwise starting from the top.
	CircleIdx = []image.Point{
		{0, -3}, {1, -3}, {2, -2}, {3, -1},
		{3, 0}, {3, 1}, {2, 2}, {1, 3},
		{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
		{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
	}
)

// FASTConfig holds the parameters necessary to compute the FAST keypoints.
type FASTConfig struct {
	NMatchesCircle int     `json:"n_matches"`
	NMSWinSize     int     `json:"nms_win_size"`
	Threshold      float64 `json:"threshold"`
	Oriented       bool    `json:"oriented"`
}

// DefaultFASTConfig returns the usual FAST-9 parameters.
func DefaultFASTConfig() *FASTConfig {
	return &FASTConfig{
		NMatchesCircle: 9,
		NMSWinSize:     7,
		Threshold:      20,
		Oriented:       true,
	}
}

// Validate ensures all parts of the FASTConfig are valid.
func (config *FASTConfig) Validate(path string) error {
	if config.NMatchesCircle < 1 || config.NMatchesCircle > len(CircleIdx) {
		return utils.NewConfigValidationError(path, errors.Errorf("n_matches should be in [1, %d]", len(CircleIdx)))
	}
	if config.NMSWinSize < 1 || config.NMSWinSize%2 == 0 {
		return utils.NewConfigValidationError(path, errors.New("nms_win_size should be a positive odd number"))
	}
	if config.Threshold < 0 {
		return utils.NewConfigValidationError(path, errors.New("threshold should be >= 0"))
	}
	return nil
}

// LoadFASTConfiguration loads a FASTConfig from a json file.
func LoadFASTConfiguration(file string) (*FASTConfig, error) {
	var config FASTConfig
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

// NewFASTKeypointsFromImage returns a pointer to a FASTKeypoints struct containing keypoints locations and
// orientations if Oriented is set to true in the configuration.
func NewFASTKeypointsFromImage(img *image.Gray, cfg *FASTConfig) *FASTKeypoints {
	kps := ComputeFAST(img, cfg)
	var orientations []float64
	if cfg.Oriented {
		orientations = computeKeypointsOrientations(img, kps)
	}
	return &FASTKeypoints{
		kps,
		orientations,
	}
}

// IsOriented returns true if FASTKeypoints contains orientations.
func (kps *FASTKeypoints) IsOriented() bool {
	return kps.Orientations != nil
}

// GetPointValuesInNeighborhood returns a slice of floats containing the values of neighborhood pixels in image img.
func GetPointValuesInNeighborhood(img *image.Gray, coords image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i := 0; i < len(neighborhood); i++ {
		c := img.GrayAt(coords.X+neighborhood[i].X, coords.Y+neighborhood[i].Y).Y
		vals[i] = float64(c)
	}
	return vals
}

// isValidSliceVals returns whether s holds a circular run of at least n ones.
func isValidSliceVals(s []float64, n int) bool {
	if n <= 0 {
		return true
	}
	run := 0
	for i := 0; i < 2*len(s); i++ {
		if s[i%len(s)] > 0 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func sumOfPositiveValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

func sumOfNegativeValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// getBrighterValues returns a slice of 1 where s[i] > t, 0 elsewhere.
func getBrighterValues(s []float64, t float64) []float64 {
	brighterValues := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			brighterValues[i] = 1
		}
	}
	return brighterValues
}

// getDarkerValues returns a slice of 1 where s[i] < t, 0 elsewhere.
func getDarkerValues(s []float64, t float64) []float64 {
	darkerValues := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			darkerValues[i] = 1
		}
	}
	return darkerValues
}

// cornerScore is the summed absolute difference, beyond the threshold, between the center
// and the circle pixels on the side (brighter or darker) that made the point a corner.
func cornerScore(circleVals []float64, center, threshold float64, kind PixelType) float64 {
	diffs := make([]float64, len(circleVals))
	for i, v := range circleVals {
		diffs[i] = v - center
	}
	if kind == brighter {
		return sumOfPositiveValuesSlice(getShifted(diffs, -threshold))
	}
	return -sumOfNegativeValuesSlice(getShifted(diffs, threshold))
}

func getShifted(s []float64, shift float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v + shift
	}
	return out
}

// fastCornerAt tests whether (x, y) is a FAST corner and returns its score.
func fastCornerAt(img *image.Gray, p image.Point, cfg *FASTConfig) (float64, bool) {
	center := float64(img.GrayAt(p.X, p.Y).Y)
	high := center + cfg.Threshold
	low := center - cfg.Threshold

	// high speed test on the cross: a contiguous arc of n pixels covers at least that many of them
	minCross := cfg.NMatchesCircle / 4
	crossVals := GetPointValuesInNeighborhood(img, p, CrossIdx)
	nBrighter := int(sumOfPositiveValuesSlice(getBrighterValues(crossVals, high)))
	nDarker := int(sumOfPositiveValuesSlice(getDarkerValues(crossVals, low)))
	if nBrighter < minCross && nDarker < minCross {
		return 0, false
	}

	circleVals := GetPointValuesInNeighborhood(img, p, CircleIdx)
	if nBrighter >= minCross && isValidSliceVals(getBrighterValues(circleVals, high), cfg.NMatchesCircle) {
		return cornerScore(circleVals, center, cfg.Threshold, brighter), true
	}
	if nDarker >= minCross && isValidSliceVals(getDarkerValues(circleVals, low), cfg.NMatchesCircle) {
		return cornerScore(circleVals, center, cfg.Threshold, darker), true
	}
	return 0, false
}

// ComputeFAST computes the location of FAST keypoints. Keypoints are returned in raster order
// after non maximum suppression over a NMSWinSize window.
func ComputeFAST(img *image.Gray, cfg *FASTConfig) KeyPoints {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 2*fastBorder || h <= 2*fastBorder {
		return KeyPoints{}
	}
	scores := make([]float64, w*h)
	candidates := make(KeyPoints, 0)
	for y := fastBorder; y < h-fastBorder; y++ {
		for x := fastBorder; x < w-fastBorder; x++ {
			p := image.Point{bounds.Min.X + x, bounds.Min.Y + y}
			if score, ok := fastCornerAt(img, p, cfg); ok {
				scores[y*w+x] = score
				candidates = append(candidates, image.Point{x, y})
			}
		}
	}

	half := cfg.NMSWinSize / 2
	kps := make(KeyPoints, 0, len(candidates))
	for _, c := range candidates {
		score := scores[c.Y*w+c.X]
		isMax := true
		for dy := -half; dy <= half && isMax; dy++ {
			for dx := -half; dx <= half; dx++ {
				nx, ny := c.X+dx, c.Y+dy
				if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				other := scores[ny*w+nx]
				// ties go to the neighbor that comes first in raster order
				if other > score || (other == score && (dy < 0 || (dy == 0 && dx < 0))) {
					isMax = false
					break
				}
			}
		}
		if isMax {
			kps = append(kps, c.Add(bounds.Min))
		}
	}
	return kps
}
